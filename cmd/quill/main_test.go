package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

// fakeOllama serves /api/chat with a fixed reply and counts calls.
func fakeOllama(t *testing.T, reply string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	calls := &atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"model":   "test-model",
			"message": map[string]string{"role": "assistant", "content": reply},
			"done":    true,
		})
	}))
	t.Cleanup(srv.Close)
	return srv, calls
}

func writeTestConfig(t *testing.T, ollamaURL string) (cfgPath, dataDir string) {
	t.Helper()
	dir := t.TempDir()
	dataDir = filepath.Join(dir, "data")
	cfg := fmt.Sprintf(`data_dir: %s
log_level: error
models:
  provider: ollama
  default: test-model
  ollama_url: %s
agent:
  session_name: testconv
`, dataDir, ollamaURL)
	cfgPath = filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}
	return cfgPath, dataDir
}

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), strings.NewReader(stdin), &stdout, &stderr, args)
	return stdout.String(), err
}

func TestRun_Version(t *testing.T) {
	out, err := runCLI(t, "", "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "Quill ") || !strings.Contains(out, "go_version:") {
		t.Errorf("version output = %q", out)
	}

	out, err = runCLI(t, "", "-o", "json", "version")
	if err != nil {
		t.Fatalf("version json: %v", err)
	}
	var info map[string]string
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("version json output is not JSON: %v\n%s", err, out)
	}
	if info["version"] == "" {
		t.Error("version missing from json output")
	}
}

func TestRun_BadOutputFormat(t *testing.T) {
	_, err := runCLI(t, "", "-o", "yaml", "version")
	if err == nil || !strings.Contains(err.Error(), "unknown output format") {
		t.Errorf("err = %v, want unknown output format", err)
	}
}

func TestRun_Commands(t *testing.T) {
	out, err := runCLI(t, "", "-o", "json", "commands")
	if err != nil {
		t.Fatal(err)
	}
	var infos []commandInfo
	if err := json.Unmarshal([]byte(out), &infos); err != nil {
		t.Fatalf("commands json: %v\n%s", err, out)
	}
	if len(infos) != 12 {
		t.Errorf("listed %d commands, want 12", len(infos))
	}

	out, err = runCLI(t, "", "commands")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"FS.MKDIR", "CONV.LS", "RESULTS TO MODEL"} {
		if !strings.Contains(strings.ToUpper(out), want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestRun_ChatSession(t *testing.T) {
	srv, calls := fakeOllama(t, `{"commands": [{"commandName": "fs.mkdir", "parameters": {"path": "notes"}}], "user": "done"}`)
	cfgPath, dataDir := writeTestConfig(t, srv.URL)

	out, err := runCLI(t, "exit\n", "--config", cfgPath, "chat", "make", "notes")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	for _, want := range []string{"Conversation testconv.", "Assistant: done", "Exiting..."} {
		if !strings.Contains(out, want) {
			t.Errorf("chat output missing %q:\n%s", want, out)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("model called %d times, want 1", n)
	}
	if info, err := os.Stat(filepath.Join(dataDir, "storage", "notes")); err != nil || !info.IsDir() {
		t.Error("notes directory not created in storage")
	}

	saved, err := os.ReadFile(filepath.Join(dataDir, "conversations", "testconv.txt"))
	if err != nil {
		t.Fatalf("conversation not autosaved: %v", err)
	}
	if want := "User: make notes\nAssistant: done\n"; string(saved) != want {
		t.Errorf("saved transcript = %q, want %q", saved, want)
	}

	out, err = runCLI(t, "", "--config", cfgPath, "-o", "json", "convs")
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	if err := json.Unmarshal([]byte(out), &names); err != nil {
		t.Fatalf("convs json: %v\n%s", err, out)
	}
	if len(names) != 1 || names[0] != "testconv" {
		t.Errorf("convs = %v, want [testconv]", names)
	}

	out, err = runCLI(t, "", "--config", cfgPath, "-o", "json", "stats")
	if err != nil {
		t.Fatal(err)
	}
	var stats []struct {
		Command string `json:"command"`
		Calls   int    `json:"calls"`
	}
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("stats json: %v\n%s", err, out)
	}
	if len(stats) != 1 || stats[0].Command != "fs.mkdir" || stats[0].Calls != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestRun_AskJSON(t *testing.T) {
	srv, _ := fakeOllama(t, `{"commands": [{"commandName": "fs.ls"}, {"commandName": "fs.bogus"}], "user": "here"}`)
	cfgPath, _ := writeTestConfig(t, srv.URL)

	out, err := runCLI(t, "", "--config", cfgPath, "-o", "json", "ask", "what", "is", "there")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	var outcome struct {
		Errors  []string `json:"errors"`
		Results []struct {
			Index   int    `json:"index"`
			Command string `json:"commandName"`
			Success bool   `json:"success"`
		} `json:"results"`
		ReturnFlag bool `json:"return_flag"`
	}
	if err := json.Unmarshal([]byte(out), &outcome); err != nil {
		t.Fatalf("ask json: %v\n%s", err, out)
	}
	if len(outcome.Errors) != 1 || !strings.Contains(outcome.Errors[0], "fs.bogus") {
		t.Errorf("errors = %v", outcome.Errors)
	}
	if len(outcome.Results) != 1 || outcome.Results[0].Command != "fs.ls" || !outcome.Results[0].Success {
		t.Errorf("results = %+v", outcome.Results)
	}
	if !outcome.ReturnFlag {
		t.Error("return_flag = false, want true")
	}
}

func TestRun_ChatSurvivesModelError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	cfgPath, _ := writeTestConfig(t, srv.URL)

	out, err := runCLI(t, "hello\nexit\n", "--config", cfgPath, "chat")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if !strings.Contains(out, "Error: model call:") || !strings.Contains(out, "Exiting...") {
		t.Errorf("chat output = %q", out)
	}
}

func TestRun_ChatKeepsTurnsBeforeAutoRoundError(t *testing.T) {
	replies := []string{
		`{"commands": [{"commandName": "fs.ls"}], "user": "first answer", "return_to_gpt": "true"}`,
		"",
		`{"user": "second answer"}`,
	}
	calls := &atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		n := int(calls.Add(1))
		if n > len(replies) {
			n = len(replies)
		}
		if replies[n-1] == "" {
			http.Error(w, "model not loaded", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"model":   "test-model",
			"message": map[string]string{"role": "assistant", "content": replies[n-1]},
			"done":    true,
		})
	}))
	t.Cleanup(srv.Close)
	cfgPath, dataDir := writeTestConfig(t, srv.URL)

	out, err := runCLI(t, "first question\nsecond question\nexit\n", "--config", cfgPath, "chat")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if !strings.Contains(out, "Error: model call:") {
		t.Errorf("chat output missing model error:\n%s", out)
	}

	saved, err := os.ReadFile(filepath.Join(dataDir, "conversations", "testconv.txt"))
	if err != nil {
		t.Fatal(err)
	}
	want := "User: first question\nAssistant: first answer\n" +
		"User: second question\nAssistant: second answer\n"
	if string(saved) != want {
		t.Errorf("saved transcript = %q, want %q", saved, want)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"a longer sentence", 10, "a longe..."},
		{"two\nlines", 20, "two lines"},
		{"abcdef", 2, "ab"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
