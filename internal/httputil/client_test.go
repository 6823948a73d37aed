package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewStandardClient(t *testing.T) {
	c := NewStandardClient(nil, 3*time.Second)
	if c.Client == nil || c.Client.Timeout != 3*time.Second {
		t.Errorf("client = %+v, want a client with 3s timeout", c.Client)
	}

	custom := &http.Client{}
	if got := NewStandardClient(custom, time.Second); got.Client != custom {
		t.Error("custom client not used")
	}
}

func TestPostJSON_StandardClient(t *testing.T) {
	var gotBody map[string]any
	var gotType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		gotType = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusAccepted)
		io.WriteString(w, "ok")
	}))
	defer server.Close()

	c := NewStandardClient(nil, time.Second)
	status, err := PostJSON(context.Background(), c, server.URL+"/control", map[string]any{"direction": "left", "speed": 10})
	if err != nil {
		t.Fatalf("PostJSON: %v", err)
	}
	if status != http.StatusAccepted {
		t.Errorf("status = %d, want 202", status)
	}
	if gotType != "application/json" {
		t.Errorf("content-type = %q", gotType)
	}
	if gotBody["direction"] != "left" || gotBody["speed"] != float64(10) {
		t.Errorf("body = %v", gotBody)
	}
}

func TestPostJSON_EncodeError(t *testing.T) {
	m := NewMockHTTPClient()
	if _, err := PostJSON(context.Background(), m, "http://x", make(chan int)); err == nil {
		t.Error("expected encode error")
	}
	if m.RequestCount() != 0 {
		t.Error("no request should be sent when encoding fails")
	}
}

func TestMockHTTPClient_RecordsBodies(t *testing.T) {
	m := NewMockHTTPClient()
	m.AddResponse(http.StatusOK, "first").AddResponse(http.StatusServiceUnavailable, "second")

	status, err := PostJSON(context.Background(), m, "http://car/control", map[string]int{"speed": 1})
	if err != nil || status != http.StatusOK {
		t.Fatalf("first = %d, %v", status, err)
	}
	status, err = PostJSON(context.Background(), m, "http://car/arm", map[string]int{"speed": 2})
	if err != nil || status != http.StatusServiceUnavailable {
		t.Fatalf("second = %d, %v", status, err)
	}

	if m.RequestCount() != 2 {
		t.Fatalf("RequestCount() = %d, want 2", m.RequestCount())
	}
	if got := m.GetRequest(1).URL.Path; got != "/arm" {
		t.Errorf("second path = %q", got)
	}
	if got := string(m.GetBody(0)); got != `{"speed":1}` {
		t.Errorf("first body = %s", got)
	}
	if m.GetRequest(5) != nil || m.GetBody(-1) != nil {
		t.Error("out-of-range lookups should return nil")
	}
}

func TestMockHTTPClient_Errors(t *testing.T) {
	m := NewMockHTTPClient()
	queued := errors.New("queued")
	m.AddErrorResponse(queued)

	req, _ := http.NewRequest(http.MethodGet, "http://x", nil)
	if _, err := m.Do(req); !errors.Is(err, queued) {
		t.Errorf("err = %v, want queued", err)
	}

	m.DefaultError = errors.New("default")
	if _, err := m.Do(req); err == nil || err.Error() != "default" {
		t.Errorf("err = %v, want default", err)
	}

	m.Reset()
	if m.RequestCount() != 0 || m.DefaultError != nil {
		t.Error("Reset did not clear state")
	}
	resp, err := m.Do(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Errorf("default response = %v, %v", resp, err)
	}
}

func TestMockHTTPClient_DoFunc(t *testing.T) {
	m := NewMockHTTPClient()
	m.DoFunc = func(req *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusTeapot, Body: http.NoBody}, nil
	}
	req, _ := http.NewRequest(http.MethodGet, "http://x", nil)
	resp, err := m.Do(req)
	if err != nil || resp.StatusCode != http.StatusTeapot {
		t.Errorf("DoFunc response = %v, %v", resp, err)
	}
}
