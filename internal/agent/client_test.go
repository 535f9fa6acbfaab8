package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const testEngine = "projects/proj/locations/us-central1/reasoningEngines/eng-1"

// newTestClient spins up an httptest server and a Client pointed at it. The
// server answers the startup lookup with 200; everything else goes to fn.
func newTestClient(t *testing.T, fn http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == "/v1/"+testEngine {
			fmt.Fprint(w, `{"name":"`+testEngine+`"}`)
			return
		}
		fn(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(context.Background(), ClientConfig{
		ProjectID:  "proj",
		Location:   "us-central1",
		AgentID:    "eng-1",
		BaseURL:    srv.URL + "/v1",
		HTTPClient: srv.Client(),
	}, nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client, srv
}

func TestNewClientFailsWhenEngineMissing(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"not found"}}`, http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	_, err := NewClient(context.Background(), ClientConfig{
		ProjectID:  "proj",
		Location:   "us-central1",
		AgentID:    "eng-1",
		BaseURL:    srv.URL + "/v1",
		HTTPClient: srv.Client(),
	}, nil)
	if err == nil {
		t.Fatal("expected lookup failure")
	}
	if !strings.Contains(err.Error(), testEngine) {
		t.Errorf("error should name the engine, got %v", err)
	}
}

func TestEngineNameAcceptsFullResourceName(t *testing.T) {
	t.Parallel()

	full := "projects/other/locations/europe-west1/reasoningEngines/abc"
	if got := engineName("proj", "us-central1", full); got != full {
		t.Errorf("full resource name must pass through, got %q", got)
	}
	if got := engineName("proj", "us-central1", "123"); got != "projects/proj/locations/us-central1/reasoningEngines/123" {
		t.Errorf("unexpected assembled name: %q", got)
	}
}

func TestCreateSession(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/"+testEngine+":query" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		var req struct {
			ClassMethod string            `json:"classMethod"`
			Input       map[string]string `json:"input"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		if req.ClassMethod != "create_session" {
			t.Errorf("expected create_session, got %q", req.ClassMethod)
		}
		if req.Input["user_id"] != "42" {
			t.Errorf("expected user_id 42, got %q", req.Input["user_id"])
		}
		fmt.Fprint(w, `{"output":{"id":"sess-9","user_id":"42","app_name":"eng-1"}}`)
	})

	sessionID, err := client.CreateSession(context.Background(), "42")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if sessionID != "sess-9" {
		t.Errorf("expected sess-9, got %q", sessionID)
	}
}

func TestCreateSessionRejectsEmptyID(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"output":{}}`)
	})

	if _, err := client.CreateSession(context.Background(), "42"); err == nil {
		t.Fatal("expected error for missing session id")
	}
}

func TestDeleteSessionPropagatesErrors(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	})

	err := client.DeleteSession(context.Background(), "42", "sess-9")
	if err == nil {
		t.Fatal("expected error from 500 response")
	}
	if !strings.Contains(err.Error(), "delete session") {
		t.Errorf("error should name the operation, got %v", err)
	}
}

func TestStreamQueryParsesSSE(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/"+testEngine+":streamQuery" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("alt"); got != "sse" {
			t.Errorf("expected alt=sse, got %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"content\":{\"parts\":[{\"text\":\"Task done. \"}]}}\n\n")
		fmt.Fprint(w, "data: {\"content\":{\"parts\":[{\"text\":\"TERMINATE\"}]}}\n\n")
	})

	var got strings.Builder
	for ev, err := range client.StreamQuery(context.Background(), "42", "sess-9", "bye") {
		if err != nil {
			t.Fatalf("stream error: %v", err)
		}
		got.WriteString(ev.Text())
	}
	if got.String() != "Task done. TERMINATE" {
		t.Errorf("unexpected concatenation: %q", got.String())
	}
}

func TestStreamQueryMultiPartEvents(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "data: {\"content\":{\"parts\":[{\"text\":\"a\"},{\"text\":\"b\"}]}}\n\n")
		fmt.Fprint(w, "data: {\"content\":{\"parts\":[]}}\n\n")
	})

	var got strings.Builder
	for ev, err := range client.StreamQuery(context.Background(), "42", "sess-9", "hi") {
		if err != nil {
			t.Fatalf("stream error: %v", err)
		}
		got.WriteString(ev.Text())
	}
	if got.String() != "ab" {
		t.Errorf("expected parts concatenated in order, got %q", got.String())
	}
}

func TestStreamQueryYieldsHTTPError(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	})

	var streamErr error
	for _, err := range client.StreamQuery(context.Background(), "42", "sess-9", "hi") {
		if err != nil {
			streamErr = err
			break
		}
	}
	if streamErr == nil {
		t.Fatal("expected error from 503 response")
	}
	if !strings.Contains(streamErr.Error(), "overloaded") {
		t.Errorf("error should carry the API message, got %v", streamErr)
	}
}

func TestStreamQueryStopsEarly(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		for i := 0; i < 50; i++ {
			fmt.Fprintf(w, "data: {\"content\":{\"parts\":[{\"text\":\"chunk-%d\"}]}}\n\n", i)
		}
	})

	count := 0
	for _, err := range client.StreamQuery(context.Background(), "42", "sess-9", "hi") {
		if err != nil {
			t.Fatalf("stream error: %v", err)
		}
		count++
		if count == 3 {
			break
		}
	}
	if count != 3 {
		t.Errorf("expected iteration to stop at 3 events, got %d", count)
	}
}
