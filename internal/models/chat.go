package models

import (
	"strings"
	"time"
)

// Origin tells who authored a chat turn
type Origin string

const (
	OriginUser      Origin = "user"
	OriginAssistant Origin = "assistant"
)

// ChatTurn is one message of the transcript. Turns are never modified after creation.
type ChatTurn struct {
	ID        uint64    `json:"id"`
	Content   string    `json:"content"`
	Origin    Origin    `json:"origin"`
	CreatedAt time.Time `json:"created_at"`
}

// Lines splits the content for multi-line display
func (t ChatTurn) Lines() []string {
	return strings.Split(t.Content, "\n")
}

func (t ChatTurn) FromUser() bool {
	return t.Origin == OriginUser
}
