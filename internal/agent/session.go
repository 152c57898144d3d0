package agent

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Session carries the state of one conversation between turns. Turn
// takes a session and returns its successor; sessions are never
// mutated in place.
type Session struct {
	// ID identifies the session in the journal and event stream.
	ID string
	// Name is the default conversation name for saves and loads.
	Name string
	// Transcript accumulates "User:" and "Assistant:" lines.
	Transcript string
	// Turns counts completed model calls.
	Turns int
	// AutoRounds counts consecutive automatic round-trips since the
	// human last spoke.
	AutoRounds int
	// StartedAt is when the session was created.
	StartedAt time.Time
}

// NewSession starts a session. An empty name is replaced with one
// derived from the start time.
func NewSession(name string) (*Session, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate session ID: %w", err)
	}
	now := time.Now()
	if name == "" {
		name = SessionName(now)
	}
	return &Session{
		ID:        id.String(),
		Name:      name,
		StartedAt: now,
	}, nil
}

// SessionName formats the default conversation name for a session
// started at t.
func SessionName(t time.Time) string {
	return "conversation_" + t.Format("20060102-150405.000000")
}

// appendExchange records one human input and the assistant's reply.
func appendExchange(transcript, input, message string) string {
	return transcript + "User: " + input + "\nAssistant: " + message + "\n"
}
