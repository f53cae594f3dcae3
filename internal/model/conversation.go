package model

import "time"

// Conversation represents the single message thread bound to one application.
type Conversation struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"application_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// ConversationSummary is a conversation enriched for the inbox view.
type ConversationSummary struct {
	Conversation
	JobTitle         string   `json:"job_title,omitempty"`
	OtherParticipant string   `json:"other_participant"`
	LastMessage      *Message `json:"last_message,omitempty"`
	CallerIsEmployer bool     `json:"caller_is_employer"`
}
