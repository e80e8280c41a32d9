// Package models defines the core data structures for MindCare.
//
// It includes session records, transcript entries, profiles, delivery
// receipts and the JSON envelope shared by the API and messaging layers.
package models

import (
	"errors"
	"strings"
	"time"

	"github.com/BTreeMap/MindCare/internal/screening"
)

// Validation constants for input validation
const (
	// MaxTextLength is the maximum accepted length of a free-text message.
	MaxTextLength = 4096
	// MaxDisplayNameLength is the maximum length of a profile display name.
	MaxDisplayNameLength = 64
	// MaxUserIDLength is the maximum length of a user identifier.
	MaxUserIDLength = 128
)

// Error variables for better error handling and testability
var (
	ErrEmptyUserID        = errors.New("user_id cannot be empty")
	ErrUserIDTooLong      = errors.New("user_id exceeds maximum length")
	ErrTextTooLong        = errors.New("text exceeds maximum length")
	ErrMissingChoice      = errors.New("value is required")
	ErrDisplayNameTooLong = errors.New("display_name exceeds maximum length")
)

// Speaker identifies who produced a transcript entry.
type Speaker string

const (
	// SpeakerSystem marks an utterance produced by MindCare.
	SpeakerSystem Speaker = "system"
	// SpeakerUser marks user input.
	SpeakerUser Speaker = "user"
)

// SessionRecord is a persisted screening session.
type SessionRecord struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id,omitempty"`
	Session   screening.Session `json:"session"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// TranscriptEntry is one line of the conversation log. Entries are append-only.
type TranscriptEntry struct {
	SessionID string    `json:"session_id"`
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Profile is the identity information used to personalise the greeting.
type Profile struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MessageStatus represents the delivery status of a message.
type MessageStatus string

const (
	// MessageStatusSent indicates the message was sent.
	MessageStatusSent MessageStatus = "sent"
	// MessageStatusDelivered indicates the message was delivered.
	MessageStatusDelivered MessageStatus = "delivered"
	// MessageStatusRead indicates the message was read.
	MessageStatusRead MessageStatus = "read"
	// MessageStatusFailed indicates the message failed to send.
	MessageStatusFailed MessageStatus = "failed"
)

// Receipt records the delivery status of an outbound chat message.
type Receipt struct {
	To     string        `json:"to"`
	Status MessageStatus `json:"status"`
	Time   int64         `json:"time"`
}

// Response represents an incoming chat message from a user.
type Response struct {
	ID   string `json:"id,omitempty"` // transport message ID, used for redelivery dedup
	From string `json:"from"`
	Body string `json:"body"`
	Time int64  `json:"time"`
}

// StartSessionRequest is the payload for creating a session.
type StartSessionRequest struct {
	UserID string `json:"user_id,omitempty"`
}

// Validate checks a StartSessionRequest. The user is optional.
func (r *StartSessionRequest) Validate() error {
	if len(r.UserID) > MaxUserIDLength {
		return ErrUserIDTooLong
	}
	return nil
}

// TextRequest is the payload for free-text submissions.
type TextRequest struct {
	Text string `json:"text"`
}

// Validate checks a TextRequest. Empty text is allowed and classified as neutral.
func (r *TextRequest) Validate() error {
	if len(r.Text) > MaxTextLength {
		return ErrTextTooLong
	}
	return nil
}

// ChoiceRequest is the payload for fixed-choice answers.
type ChoiceRequest struct {
	Value *int `json:"value"`
}

// Validate checks a ChoiceRequest. Range checking belongs to the active instrument.
func (r *ChoiceRequest) Validate() error {
	if r.Value == nil {
		return ErrMissingChoice
	}
	return nil
}

// ProfileRequest is the payload for registering a display name.
type ProfileRequest struct {
	DisplayName string `json:"display_name"`
}

// Validate trims and checks a ProfileRequest.
func (r *ProfileRequest) Validate() error {
	r.DisplayName = strings.TrimSpace(r.DisplayName)
	if len(r.DisplayName) > MaxDisplayNameLength {
		return ErrDisplayNameTooLong
	}
	return nil
}

// ValidateUserID checks a user identifier taken from a path or message sender.
func ValidateUserID(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrEmptyUserID
	}
	if len(id) > MaxUserIDLength {
		return ErrUserIDTooLong
	}
	return nil
}
