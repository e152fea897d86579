// Package intent derives seller-facing suggestions from buyer messages
// with a keyword scan. Classification is a pure function of a single
// message; no state is kept across calls.
package intent

import (
	"strings"

	chat "github.com/Srirag-c-r/dealGOAT/internal/pkg/chat/domain"
)

// Suggestion is the outcome of classifying one inbound message.
type Suggestion int16

const (
	SuggestNone     Suggestion = 0
	SuggestLocation Suggestion = 1
	SuggestContact  Suggestion = 2
)

func (s Suggestion) String() string {
	switch s {
	case SuggestLocation:
		return "location"
	case SuggestContact:
		return "contact"
	default:
		return "none"
	}
}

var locationKeywords = []string{
	"location", "place", "where", "meet", "address", "city", "pincode", "area", "map",
}

var contactKeywords = []string{
	"phone", "number", "call", "whatsapp", "contact", "mobile",
}

// Classify inspects msg for buyer intent. Only a seller viewing a
// message they did not author can receive a suggestion; every other
// combination yields SuggestNone. Location keywords are checked first,
// so a message matching both families yields SuggestLocation.
func Classify(msg chat.Message, viewer chat.User, viewerRole chat.Role) Suggestion {
	if viewerRole != chat.RoleSeller {
		return SuggestNone
	}
	if msg.SentBy(viewer.Email) {
		return SuggestNone
	}

	content := strings.ToLower(msg.Content)
	if containsAny(content, locationKeywords) {
		return SuggestLocation
	}
	if containsAny(content, contactKeywords) {
		return SuggestContact
	}
	return SuggestNone
}

func containsAny(content string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(content, k) {
			return true
		}
	}
	return false
}
