// Package domain defines the core domain models for the draft lifecycle.
package domain

import "time"

// DraftState represents the lifecycle state of a draft reply.
type DraftState string

const (
	// DraftStateGenerated means the reply text is the generator's output,
	// untouched by the reviewer.
	DraftStateGenerated DraftState = "GENERATED"
	// DraftStateEdited means the reviewer has replaced the reply text.
	DraftStateEdited DraftState = "EDITED"
	// DraftStateSent is terminal; no operation may modify the draft again.
	DraftStateSent DraftState = "SENT"
)

// Draft is the stored candidate reply for one inbound message. Sender,
// Subject and Snippet are captured once at generation time and never
// re-fetched.
type Draft struct {
	MessageID string     `json:"message_id"`
	Sender    string     `json:"sender"`
	Subject   string     `json:"subject"`
	Snippet   string     `json:"snippet"`
	ReplyText string     `json:"reply_text"`
	State     DraftState `json:"state"`
	CreatedAt time.Time  `json:"created_at"`
}

// Sent reports whether the draft has reached its terminal state.
func (d *Draft) Sent() bool {
	return d.State == DraftStateSent
}

// MessageSummary is one entry of a Gmail unread listing.
type MessageSummary struct {
	MessageID string `json:"message_id"`
	ThreadID  string `json:"thread_id,omitempty"`
}

// Message is the full source message a reply is generated for.
type Message struct {
	MessageID string `json:"message_id"`
	Sender    string `json:"sender"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

// SkippedMessage records a message for which draft generation failed during
// an inbox refresh. The refresh continues past it.
type SkippedMessage struct {
	MessageID string `json:"message_id"`
	Reason    string `json:"reason"`
}
