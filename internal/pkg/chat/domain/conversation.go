package chat

import "github.com/shopspring/decimal"

// Role is the viewer's side of a conversation.
type Role int16

const (
	RoleBuyer  Role = 0
	RoleSeller Role = 1
)

// Conversation identifies a buyer/seller pair bound to one listing.
// Identity fields are immutable; the client only ever mutates
// UnreadCount (via the synchronizer) and LastMessage (list previews).
type Conversation struct {
	ID       int64 `json:"id"`
	BuyerID  int64 `json:"buyer"`
	SellerID int64 `json:"seller"`

	ListingID      int64           `json:"listing"`
	ListingTitle   string          `json:"listing_title"`
	ListingType    string          `json:"listing_type"`
	ListingCity    string          `json:"listing_city"`
	ListingPincode string          `json:"listing_pincode"`
	ListingImage   string          `json:"listing_image"`
	ListingPrice   decimal.Decimal `json:"listing_price"`

	BuyerName    string `json:"buyer_name"`
	SellerName   string `json:"seller_name"`
	BuyerAvatar  string `json:"buyer_profile_picture"`
	SellerAvatar string `json:"seller_profile_picture"`

	UnreadCount int      `json:"unread_count"`
	LastMessage *Message `json:"last_message,omitempty"`
}

// RoleOf returns the side the given user occupies. A user id matching
// the seller is the seller; anyone else is treated as the buyer.
func (c Conversation) RoleOf(userID int64) Role {
	if userID == c.SellerID {
		return RoleSeller
	}
	return RoleBuyer
}

// CounterpartName is the display name of the other participant.
func (c Conversation) CounterpartName(userID int64) string {
	if userID == c.BuyerID {
		return c.SellerName
	}
	return c.BuyerName
}

// CounterpartAvatar is the avatar reference of the other participant.
func (c Conversation) CounterpartAvatar(userID int64) string {
	if userID == c.BuyerID {
		return c.SellerAvatar
	}
	return c.BuyerAvatar
}
