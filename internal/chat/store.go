// Package chat keeps the assistant conversation: an append-only transcript
// and the one-request-at-a-time send flow that grows it.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/netty/analyst/internal/models"
)

// FallbackReply is recorded as the assistant turn whenever a chat request fails
const FallbackReply = "Sorry, I encountered an error while processing your request. Please try again."

const Greeting = `Hello! I've analyzed your network capture. Ask me anything about the traffic, for example:
- What are the top talkers in this capture?
- Were there any anomalies or suspicious activity?
- Which protocols generated the most traffic?
- How many TCP connections failed?`

var (
	ErrEmptyMessage = errors.New("chat: message is empty")
	ErrInFlight     = errors.New("chat: a reply is still pending")
)

// Responder answers one user message
type Responder interface {
	Chat(ctx context.Context, message string) (string, error)
}

// ReplyMsg carries the outcome of the pending chat request back to the event loop
type ReplyMsg struct {
	Text string
	Err  error
}

// Store is the transcript. It is only mutated from the event loop, through
// AppendUser, AppendAssistant, SendAndAwait and Handle.
type Store struct {
	svc     Responder
	logger  *log.Logger
	now     func() time.Time
	turns   []models.ChatTurn
	nextID  uint64
	pending bool
}

// NewStore returns a store seeded with greeting as the first assistant turn,
// or an empty one when greeting is blank.
func NewStore(svc Responder, logger *log.Logger, greeting string) *Store {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	s := &Store{
		svc:    svc,
		logger: logger,
		now:    time.Now,
	}
	if strings.TrimSpace(greeting) != "" {
		s.AppendAssistant(greeting)
	}
	return s
}

func (s *Store) append(origin models.Origin, content string) models.ChatTurn {
	s.nextID++
	turn := models.ChatTurn{
		ID:        s.nextID,
		Content:   content,
		Origin:    origin,
		CreatedAt: s.now(),
	}
	s.turns = append(s.turns, turn)
	return turn
}

func (s *Store) AppendUser(text string) (models.ChatTurn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.ChatTurn{}, ErrEmptyMessage
	}
	return s.append(models.OriginUser, text), nil
}

func (s *Store) AppendAssistant(text string) models.ChatTurn {
	return s.append(models.OriginAssistant, text)
}

// SendAndAwait records text as a user turn right away and returns the command
// that asks the responder. The assistant turn is appended when the resulting
// ReplyMsg reaches Handle.
func (s *Store) SendAndAwait(ctx context.Context, text string) (tea.Cmd, error) {
	if s.pending {
		return nil, ErrInFlight
	}
	turn, err := s.AppendUser(text)
	if err != nil {
		return nil, err
	}
	s.pending = true

	svc := s.svc
	message := turn.Content
	return func() (msg tea.Msg) {
		defer func() {
			if r := recover(); r != nil {
				msg = ReplyMsg{Err: fmt.Errorf("chat: %v", r)}
			}
		}()
		if svc == nil {
			return ReplyMsg{Err: errors.New("chat: no responder configured")}
		}
		reply, err := svc.Chat(ctx, message)
		return ReplyMsg{Text: reply, Err: err}
	}, nil
}

// Handle applies a ReplyMsg and reports whether msg was one
func (s *Store) Handle(msg tea.Msg) bool {
	reply, ok := msg.(ReplyMsg)
	if !ok {
		return false
	}
	if !s.pending {
		s.logger.Warn("Dropping chat reply with no pending request")
		return true
	}
	s.pending = false

	text := strings.TrimSpace(reply.Text)
	switch {
	case reply.Err != nil:
		s.logger.Error("Chat request failed", "error", reply.Err)
		text = FallbackReply
	case text == "":
		s.logger.Warn("Chat reply was empty")
		text = FallbackReply
	}
	s.AppendAssistant(text)
	return true
}

// Turns returns a copy of the transcript in append order
func (s *Store) Turns() []models.ChatTurn {
	out := make([]models.ChatTurn, len(s.turns))
	copy(out, s.turns)
	return out
}

func (s *Store) Len() int { return len(s.turns) }

// Pending reports whether a reply is outstanding
func (s *Store) Pending() bool { return s.pending }
