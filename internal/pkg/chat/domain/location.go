package chat

// SharedLocation is a place value exchanged inside a conversation. It
// is always flattened into message text before transmission; Latitude
// and Longitude are zero when the value was recovered from text that
// only carried a map URL.
type SharedLocation struct {
	Label     string
	Address   string
	MapURL    string
	Latitude  float64
	Longitude float64
}
