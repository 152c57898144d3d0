// Package agent runs the command-interpretation loop: it sends the
// conversation to a model, decodes the structured reply, executes the
// commands it contains and prepares the next input.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nugget/quill/internal/command"
	"github.com/nugget/quill/internal/config"
	"github.com/nugget/quill/internal/events"
	"github.com/nugget/quill/internal/llm"
	"github.com/nugget/quill/internal/memory"
	"github.com/nugget/quill/internal/prompts"
)

// State is the loop's position within a turn.
type State int32

// Loop states. A turn moves AwaitingInput → InFlight → Settling and
// back to AwaitingInput.
const (
	AwaitingInput State = iota
	InFlight
	Settling
)

func (s State) String() string {
	switch s {
	case AwaitingInput:
		return "awaiting_input"
	case InFlight:
		return "in_flight"
	case Settling:
		return "settling"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// TurnJournal records completed turns. A nil journal disables
// recording.
type TurnJournal interface {
	RecordTurn(ctx context.Context, rec *memory.TurnRecord) error
}

// Options configures a Loop.
type Options struct {
	Client        llm.Client
	Model         string
	Router        *command.Router
	Conversations command.Conversations
	Journal       TurnJournal
	Bus           *events.Bus
	Logger        *slog.Logger
	// MaxAutoRounds caps consecutive automatic round-trips. Zero uses
	// config.DefaultMaxAutoRounds.
	MaxAutoRounds int
}

// Loop is the turn orchestrator.
type Loop struct {
	client        llm.Client
	model         string
	router        *command.Router
	convs         command.Conversations
	journal       TurnJournal
	bus           *events.Bus
	logger        *slog.Logger
	maxAutoRounds int

	state atomic.Int32
}

// NewLoop creates a turn loop.
func NewLoop(opts Options) *Loop {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxAuto := opts.MaxAutoRounds
	if maxAuto <= 0 {
		maxAuto = config.DefaultMaxAutoRounds
	}
	return &Loop{
		client:        opts.Client,
		model:         opts.Model,
		router:        opts.Router,
		convs:         opts.Conversations,
		journal:       opts.Journal,
		bus:           opts.Bus,
		logger:        logger.With("component", "agent"),
		maxAutoRounds: maxAuto,
	}
}

// State reports where the loop is within the current turn.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Reply is what one turn produces.
type Reply struct {
	// Message is the text shown to the human.
	Message string
	// Raw is the model's unprocessed reply.
	Raw string
	// Outcome holds command errors and results.
	Outcome Outcome
	// ReturnToModel reports whether the loop wants another round-trip
	// before the human speaks again.
	ReturnToModel bool
	// Feedback is the input for that round-trip. Empty when nothing
	// ran, nothing was rejected, and the reply decoded.
	Feedback string
}

// Turn runs one human-initiated turn.
func (l *Loop) Turn(ctx context.Context, sess *Session, input string) (Reply, *Session, error) {
	return l.turn(ctx, sess, input, false)
}

// Converse runs a human turn followed by automatic round-trips while
// the model wants to see results, up to the configured limit. onReply,
// if non-nil, is called after every turn. The returned session has its
// automatic round counter reset for the next human input. When an
// automatic round fails, the session is returned with the error and
// still carries every turn that completed.
func (l *Loop) Converse(ctx context.Context, sess *Session, input string, onReply func(Reply)) (*Session, error) {
	reply, next, err := l.turn(ctx, sess, input, false)
	if err != nil {
		return sess, err
	}
	if onReply != nil {
		onReply(reply)
	}

	for reply.ReturnToModel && reply.Feedback != "" {
		if next.AutoRounds >= l.maxAutoRounds {
			l.logger.Info("automatic round limit reached",
				"session_id", next.ID,
				"rounds", next.AutoRounds,
			)
			break
		}
		reply, next, err = l.turn(ctx, next, reply.Feedback, true)
		if err != nil {
			// next still holds every completed turn.
			return settle(next), err
		}
		if onReply != nil {
			onReply(reply)
		}
	}

	return settle(next), nil
}

// settle returns a copy of sess ready for the next human input.
func settle(sess *Session) *Session {
	settled := *sess
	settled.AutoRounds = 0
	return &settled
}

func (l *Loop) turn(ctx context.Context, sess *Session, input string, auto bool) (Reply, *Session, error) {
	start := time.Now()
	turnNum := sess.Turns + 1
	log := l.logger.With("session_id", sess.ID, "turn", turnNum)

	l.bus.Emit(events.SourceAgent, events.KindTurnStart, map[string]any{
		"session_id":   sess.ID,
		"conversation": sess.Name,
		"turn":         turnNum,
		"auto":         auto,
	})

	l.state.Store(int32(InFlight))
	defer l.state.Store(int32(AwaitingInput))

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: prompts.SystemPrompt(l.router.Registry().Advertise())},
		{Role: llm.RoleUser, Content: sess.Transcript + "User: " + input},
	}

	log.Debug("sending prompt", "model", l.model, "auto", auto, "input_len", len(input))
	l.bus.Emit(events.SourceAgent, events.KindLLMCall, map[string]any{
		"session_id": sess.ID,
		"turn":       turnNum,
		"model":      l.model,
	})

	llmStart := time.Now()
	resp, err := l.client.Chat(ctx, l.model, messages)
	if err != nil {
		log.Error("model call failed", "model", l.model, "error", err)
		return Reply{}, sess, fmt.Errorf("model call: %w", err)
	}
	raw := resp.Message.Content

	l.bus.Emit(events.SourceAgent, events.KindLLMResponse, map[string]any{
		"session_id": sess.ID,
		"turn":       turnNum,
		"model":      resp.Model,
		"tokens_in":  resp.InputTokens,
		"tokens_out": resp.OutputTokens,
		"elapsed_ms": time.Since(llmStart).Milliseconds(),
	})
	log.Log(ctx, config.LevelTrace, "model reply", "raw", raw)

	l.state.Store(int32(Settling))

	parsed := Extract(raw)
	outcome := l.ExecuteAll(ctx, sess, parsed.Commands)
	returnToModel := outcome.ReturnFlag || parsed.ReturnToModel

	next := *sess
	next.Turns = turnNum
	if auto {
		next.AutoRounds++
	}
	next.Transcript = appendExchange(sess.Transcript, input, parsed.User)

	if l.convs != nil {
		if err := l.convs.Save(ctx, next.Name, next.Transcript); err != nil {
			log.Warn("conversation autosave failed", "conversation", next.Name, "error", err)
		}
	}

	feedback := prompts.Feedback(outcome.Errors, outcome.ResultsJSON())
	if parsed.Malformed {
		log.Warn("model reply did not decode, asking again")
		feedback = incorrectStructure
	}

	reply := Reply{
		Message:       parsed.User,
		Raw:           raw,
		Outcome:       outcome,
		ReturnToModel: returnToModel,
		Feedback:      feedback,
	}

	l.record(ctx, &next, input, reply)

	l.bus.Emit(events.SourceAgent, events.KindTurnComplete, map[string]any{
		"session_id":  sess.ID,
		"turn":        turnNum,
		"commands":    len(parsed.Commands),
		"errors":      len(outcome.Errors),
		"return_flag": returnToModel,
		"elapsed_ms":  time.Since(start).Milliseconds(),
	})
	log.Info("turn complete",
		"commands", len(parsed.Commands),
		"errors", len(outcome.Errors),
		"return_flag", returnToModel,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	return reply, &next, nil
}

func (l *Loop) record(ctx context.Context, sess *Session, input string, reply Reply) {
	if l.journal == nil {
		return
	}
	rec := &memory.TurnRecord{
		SessionID:    sess.ID,
		Conversation: sess.Name,
		Turn:         sess.Turns,
		Input:        input,
		RawResponse:  reply.Raw,
		UserMessage:  reply.Message,
		Errors:       reply.Outcome.Errors,
		ReturnFlag:   reply.ReturnToModel,
		Calls:        reply.Outcome.callRecords(),
	}
	if err := l.journal.RecordTurn(ctx, rec); err != nil {
		l.logger.Warn("journal write failed", "session_id", sess.ID, "error", err)
	}
}
