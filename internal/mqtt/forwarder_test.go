package mqtt

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nugget/quill/internal/config"
	"github.com/nugget/quill/internal/events"
)

func TestClientID(t *testing.T) {
	dir := t.TempDir()

	first, err := ClientID(dir, "quill")
	if err != nil {
		t.Fatalf("first call error = %v", err)
	}
	suffix, ok := strings.CutPrefix(first, "quill-")
	if !ok || len(suffix) != 12 {
		t.Errorf("ClientID = %q, want quill-<12 hex chars>", first)
	}

	data, err := os.ReadFile(filepath.Join(dir, identityFile))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if got := strings.TrimSpace(string(data)); got != suffix {
		t.Errorf("persisted suffix = %q, want %q", got, suffix)
	}

	second, err := ClientID(dir, "quill")
	if err != nil {
		t.Fatalf("second call error = %v", err)
	}
	if second != first {
		t.Errorf("second = %q, want %q (should be stable)", second, first)
	}

	if got, err := ClientID(dir, ""); err != nil || got != suffix {
		t.Errorf("ClientID with empty base = %q, %v; want %q", got, err, suffix)
	}
}

func TestForwarder_Topics(t *testing.T) {
	f := New(config.MQTTConfig{Broker: "mqtt://localhost:1883", TopicPrefix: "quill/"}, "quill-test", events.New(), nil)

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"availability", f.availabilityTopic(), "quill/availability"},
		{"turn start", f.eventTopic(events.Event{Source: events.SourceAgent, Kind: events.KindTurnStart}), "quill/agent/turn_start"},
		{"command done", f.eventTopic(events.Event{Source: events.SourceRouter, Kind: events.KindCommandDone}), "quill/router/command_done"},
		{"no source", f.eventTopic(events.Event{Kind: "x"}), "quill/unknown/x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestEventPayload(t *testing.T) {
	ts := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	payload, err := eventPayload(events.Event{
		Timestamp: ts,
		Source:    events.SourceRouter,
		Kind:      events.KindCommandDone,
		Data:      map[string]any{"command": "fs.mkdir", "ok": true},
	})
	if err != nil {
		t.Fatalf("eventPayload: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if got["ts"] != "2024-05-06T07:08:09Z" || got["kind"] != "command_done" || got["source"] != "router" {
		t.Errorf("payload = %s", payload)
	}
	data, _ := got["data"].(map[string]any)
	if data["command"] != "fs.mkdir" || data["ok"] != true {
		t.Errorf("payload data = %v", data)
	}
}

func TestForwarder_StopBeforeStart(t *testing.T) {
	f := New(config.MQTTConfig{}, "", nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := f.Stop(ctx); err != nil {
		t.Errorf("Stop before Start = %v, want nil", err)
	}
}
