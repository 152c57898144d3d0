package agent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nugget/quill/internal/command"
	"github.com/nugget/quill/internal/events"
	"github.com/nugget/quill/internal/memory"
)

// Entry is the result of one executed command, keyed by its position
// in the reply's command list.
type Entry struct {
	Index   int    `json:"index"`
	Command string `json:"commandName"`
	command.Result

	params   map[string]any
	started  time.Time
	duration time.Duration
}

// Outcome aggregates one turn's command execution. Errors holds one
// message per command rejected before routing; Results holds one entry
// per routed command in reply order.
type Outcome struct {
	Errors     []string `json:"errors"`
	Results    []Entry  `json:"results"`
	ReturnFlag bool     `json:"return_flag"`
}

// ResultsJSON renders the routed results for the model. It returns ""
// when nothing ran.
func (o Outcome) ResultsJSON() string {
	if len(o.Results) == 0 {
		return ""
	}
	data, err := json.Marshal(o.Results)
	if err != nil {
		return ""
	}
	return string(data)
}

// ExecuteAll validates and routes each raw command in order. Commands
// failing validation are recorded in Errors and skipped; the rest run
// even when an earlier one failed. ReturnFlag is set when any command
// was rejected or any command the model should see has run.
func (l *Loop) ExecuteAll(ctx context.Context, sess *Session, commands []any) Outcome {
	out := Outcome{
		Errors:  []string{},
		Results: []Entry{},
	}
	conv := command.Conversation{Name: sess.Name, Transcript: sess.Transcript}
	registry := l.router.Registry()

	for i, raw := range commands {
		v, err := registry.Validate(raw)
		if err != nil {
			l.logger.Debug("command rejected", "index", i, "error", err)
			out.Errors = append(out.Errors, err.Error())
			continue
		}
		cmd, err := command.Bind(v)
		if err != nil {
			l.logger.Debug("command rejected", "index", i, "error", err)
			out.Errors = append(out.Errors, err.Error())
			continue
		}

		started := time.Now()
		res := l.router.Route(ctx, conv, cmd)
		elapsed := time.Since(started)

		l.logger.Info("command executed",
			"session_id", sess.ID,
			"index", i,
			"command", v.Name,
			"success", res.Success,
			"elapsed", elapsed.Round(time.Millisecond),
		)
		l.bus.Emit(events.SourceRouter, events.KindCommandDone, map[string]any{
			"session_id":  sess.ID,
			"turn":        sess.Turns + 1,
			"index":       i,
			"command":     v.Name,
			"ok":          res.Success,
			"error_kind":  string(res.Kind),
			"duration_ms": elapsed.Milliseconds(),
		})

		out.Results = append(out.Results, Entry{
			Index:    i,
			Command:  v.Name,
			Result:   res,
			params:   v.Params,
			started:  started,
			duration: elapsed,
		})

		if spec, ok := registry.Lookup(v.Name); ok && spec.VisibleToModel {
			out.ReturnFlag = true
		}
	}

	if len(out.Errors) > 0 {
		out.ReturnFlag = true
	}
	return out
}

// callRecords converts routed entries for the journal.
func (o Outcome) callRecords() []memory.CallRecord {
	calls := make([]memory.CallRecord, 0, len(o.Results))
	for _, e := range o.Results {
		calls = append(calls, memory.CallRecord{
			Index:      e.Index,
			Command:    e.Command,
			Parameters: e.params,
			Success:    e.Success,
			Message:    e.Message,
			ErrorKind:  string(e.Kind),
			StartedAt:  e.started,
			Duration:   e.duration,
		})
	}
	return calls
}
