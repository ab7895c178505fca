package models

import "time"

// TypingIndicatorRecord marks a member as composing a message in a channel.
// At most one live record exists per (ChannelID, MemberID) pair; a repeated
// report refreshes LastTyped on the existing record. Records older than the
// read-side staleness threshold are treated as absent even before the delete
// or sweep catches up.
type TypingIndicatorRecord struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	MemberID  string    `json:"member_id"`
	LastTyped time.Time `json:"last_typed"`
}

// TypingEvent is published on the typing pub/sub channel on every upsert and
// delete.
type TypingEvent struct {
	ChannelID string `json:"channel_id"`
	MemberID  string `json:"member_id"`
	Typing    bool   `json:"typing"`
}

type TypingListResponse struct {
	ChannelID string                  `json:"channel_id"`
	Count     int                     `json:"count"`
	Typers    []TypingIndicatorRecord `json:"typers"`
}
