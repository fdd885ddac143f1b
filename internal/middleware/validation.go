package middleware

import (
	"errors"
	"unicode/utf8"
)

// ValidateMessageText validates outgoing message text.
func ValidateMessageText(text string) error {
	if len(text) == 0 {
		return errors.New("text cannot be empty")
	}
	if len(text) > 100000 { // ~100KB limit
		return errors.New("text exceeds maximum length")
	}
	if !utf8.ValidString(text) {
		return errors.New("text must be valid UTF-8")
	}
	return nil
}

// ValidateConversationID validates a conversation ID. Ids are opaque
// server-assigned identifiers, so only shape is checked.
func ValidateConversationID(id string) error {
	if len(id) == 0 {
		return errors.New("conversation ID cannot be empty")
	}
	if len(id) > 128 {
		return errors.New("conversation ID exceeds maximum length")
	}
	return nil
}

// ValidateSortDirection validates the sort control value.
func ValidateSortDirection(dir string) error {
	if dir != "newest" && dir != "oldest" {
		return errors.New("sort direction must be newest or oldest")
	}
	return nil
}

// ValidateStatusFilter validates the list status filter.
func ValidateStatusFilter(status string) error {
	switch status {
	case "open", "closed", "auto":
		return nil
	}
	return errors.New("status must be open, closed or auto")
}
