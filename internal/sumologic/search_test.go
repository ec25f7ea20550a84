package sumologic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/secrelay/sumologic-relay/internal/relayerr"
)

const testJobID = "347A844D53240C86"

// fakeBackend scripts the Search Job API: each status poll consumes the next
// state in the sequence, the last one repeating.
type fakeBackend struct {
	t *testing.T

	mu           sync.Mutex
	states       []string
	messageCount int
	messages     []map[string]string

	createCalls  int
	statusCalls  int
	messageCalls int
	deleteCalls  int
	gotLimit     string
	gotQuery     string
}

func (f *fakeBackend) nextState() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if f.statusCalls <= len(f.states) {
		return f.states[f.statusCalls-1]
	}
	return f.states[len(f.states)-1]
}

func (f *fakeBackend) server() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/search/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			f.t.Errorf("bad create body: %v", err)
		}
		f.mu.Lock()
		f.createCalls++
		f.gotQuery = body["query"]
		f.mu.Unlock()
		if body["from"] == "" || body["to"] == "" {
			f.t.Errorf("create body missing time range: %v", body)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": testJobID})
	})
	mux.HandleFunc("/search/jobs/"+testJobID, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"state":        f.nextState(),
				"messageCount": f.messageCount,
			})
		case http.MethodDelete:
			f.mu.Lock()
			f.deleteCalls++
			f.mu.Unlock()
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/search/jobs/"+testJobID+"/messages", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.messageCalls++
		f.gotLimit = r.URL.Query().Get("limit")
		f.mu.Unlock()
		wrapped := make([]map[string]interface{}, 0, len(f.messages))
		for _, m := range f.messages {
			wrapped = append(wrapped, map[string]interface{}{"map": m})
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"messages": wrapped})
	})
	return httptest.NewServer(mux)
}

func fastMode() SearchMode {
	return SearchMode{
		Name:         ModeMessages,
		Query:        "%q",
		Lookback:     30 * 24 * time.Hour,
		FirstDelay:   0,
		PollInterval: 5 * time.Millisecond,
	}
}

func newTestService(t *testing.T, backend *fakeBackend, jobMaxTime time.Duration) (*SearchService, func()) {
	server := backend.server()
	client := NewClient(testCreds(server.URL), ClientOptions{})
	service := NewSearchService(client, ServiceOptions{JobMaxTime: jobMaxTime})
	return service, server.Close
}

func TestRunHappyPath(t *testing.T) {
	backend := &fakeBackend{
		t:            t,
		states:       []string{StateDone},
		messageCount: 99,
		messages:     []map[string]string{{"_messageid": "702686314684941315"}},
	}
	service, closeServer := newTestService(t, backend, time.Second)
	defer closeServer()

	result, err := service.Run(context.Background(), fastMode(), "cisco.com")
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if result.State != StateDone {
		t.Fatalf("unexpected state %q", result.State)
	}
	if len(result.Messages) != 1 || result.Messages[0]["_messageid"] != "702686314684941315" {
		t.Fatalf("unexpected messages %v", result.Messages)
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("99 messages fit under the cap, got warnings %v", result.Warnings)
	}
	if backend.gotQuery != strconv.Quote("cisco.com") {
		t.Fatalf("unexpected query %q", backend.gotQuery)
	}
	if backend.gotLimit != "100" {
		t.Fatalf("expected fetch limit 100, got %q", backend.gotLimit)
	}
	if backend.deleteCalls != 1 {
		t.Fatalf("expected one best-effort delete, got %d", backend.deleteCalls)
	}
}

func TestRunTooManyMessagesWarnsOnce(t *testing.T) {
	backend := &fakeBackend{
		t:            t,
		states:       []string{StateDone},
		messageCount: 101,
	}
	service, closeServer := newTestService(t, backend, time.Second)
	defer closeServer()

	result, err := service.Run(context.Background(), fastMode(), "cisco.com")
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	warnings := 0
	for _, w := range result.Warnings {
		if w.Code == relayerr.CodeTooManyMessages {
			warnings++
		}
	}
	if warnings != 1 {
		t.Fatalf("expected exactly one too-many-messages warning, got %d", warnings)
	}
}

func TestRunTerminalStateIsFatalAndStopsPolling(t *testing.T) {
	for _, state := range []string{StateCancelled, StateForcePaused} {
		t.Run(state, func(t *testing.T) {
			backend := &fakeBackend{t: t, states: []string{state}}
			service, closeServer := newTestService(t, backend, time.Second)
			defer closeServer()

			_, err := service.Run(context.Background(), fastMode(), "cisco.com")
			entry, ok := err.(*relayerr.Error)
			if !ok {
				t.Fatalf("expected *relayerr.Error, got %T: %v", err, err)
			}
			if !entry.Fatal() {
				t.Fatalf("terminal state must be fatal")
			}
			if backend.statusCalls != 1 {
				t.Fatalf("no further polls expected after terminal state, got %d", backend.statusCalls)
			}
			if backend.messageCalls != 0 {
				t.Fatalf("no message fetch expected after terminal state")
			}
		})
	}
}

func TestRunNotStartedPastDeadlineIsFatal(t *testing.T) {
	backend := &fakeBackend{t: t, states: []string{StateNotStarted}}
	service, closeServer := newTestService(t, backend, 20*time.Millisecond)
	defer closeServer()

	_, err := service.Run(context.Background(), fastMode(), "cisco.com")
	entry, ok := err.(*relayerr.Error)
	if !ok {
		t.Fatalf("expected *relayerr.Error, got %T: %v", err, err)
	}
	if entry.Code != "not started" || !entry.Fatal() {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if backend.messageCalls != 0 {
		t.Fatalf("no message fetch expected for a job that never started")
	}
	if backend.deleteCalls != 1 {
		t.Fatalf("job should still be cleaned up, got %d deletes", backend.deleteCalls)
	}
}

func TestRunGatheringPastDeadlineWarnsAndFetchesPartial(t *testing.T) {
	backend := &fakeBackend{
		t:            t,
		states:       []string{StateGathering},
		messageCount: 42,
		messages:     []map[string]string{{"_messageid": "1"}},
	}
	service, closeServer := newTestService(t, backend, 20*time.Millisecond)
	defer closeServer()

	result, err := service.Run(context.Background(), fastMode(), "cisco.com")
	if err != nil {
		t.Fatalf("deadline with partial results must not be fatal: %v", err)
	}
	if len(result.Warnings) != 1 || result.Warnings[0].Code != relayerr.CodeJobDidNotFinish {
		t.Fatalf("expected one did-not-finish warning, got %v", result.Warnings)
	}
	if len(result.Messages) != 1 {
		t.Fatalf("partial messages should still be fetched, got %d", len(result.Messages))
	}
	if result.State != StateGathering {
		t.Fatalf("unexpected state %q", result.State)
	}
}

func TestRunFirstDelayAppliesOnce(t *testing.T) {
	backend := &fakeBackend{
		t:      t,
		states: []string{StateGathering, StateDone},
	}
	service, closeServer := newTestService(t, backend, time.Second)
	defer closeServer()

	mode := fastMode()
	mode.FirstDelay = 10 * time.Millisecond
	started := time.Now()
	if _, err := service.Run(context.Background(), mode, "cisco.com"); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if elapsed := time.Since(started); elapsed < 10*time.Millisecond {
		t.Fatalf("first-poll delay not applied, finished in %v", elapsed)
	}
}

func TestRunHonorsContextCancellation(t *testing.T) {
	backend := &fakeBackend{t: t, states: []string{StateGathering}}
	service, closeServer := newTestService(t, backend, time.Minute)
	defer closeServer()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := service.Run(ctx, fastMode(), "cisco.com")
	if err == nil {
		t.Fatalf("expected error after context cancellation")
	}
}

func TestEntitiesLimitClamping(t *testing.T) {
	client := NewClient(testCreds("https://api.example.com"), ClientOptions{})
	for _, tt := range []struct {
		configured int
		want       int
	}{
		{0, 100},
		{-5, 100},
		{101, 100},
		{50, 50},
	} {
		service := NewSearchService(client, ServiceOptions{EntitiesLimit: tt.configured})
		if got := service.Limit(); got != tt.want {
			t.Fatalf("limit %d: expected %d, got %d", tt.configured, tt.want, got)
		}
	}
}
