package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/obdeck/obdeck/internal/store"
)

func testServer() (*Server, *store.Store) {
	st := store.New()
	return New(DefaultConfig(), st, fstest.MapFS{}), st
}

func TestIntentEndpoints(t *testing.T) {
	s, st := testServer()

	h := s.intentHandler(st.RequestRefresh)

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/api/dtc/refresh", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("POST status = %d", rec.Code)
	}
	if refresh, _ := st.TakeDTCIntents(); !refresh {
		t.Error("refresh intent not set")
	}

	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/api/dtc/refresh", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want 405", rec.Code)
	}
	if refresh, _ := st.TakeDTCIntents(); refresh {
		t.Error("GET set an intent")
	}
}

func TestConfigEndpoint(t *testing.T) {
	s, _ := testServer()

	rec := httptest.NewRecorder()
	s.handleConfig(rec, httptest.NewRequest(http.MethodGet, "/api/config", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d", rec.Code)
	}
	var got struct {
		Adapter AdapterConfig `json:"adapter"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("bad config JSON: %v", err)
	}
	if got.Adapter.Strategy != "auto" {
		t.Errorf("strategy = %q, want auto", got.Adapter.Strategy)
	}

	rec = httptest.NewRecorder()
	s.handleConfig(rec, httptest.NewRequest(http.MethodDelete, "/api/config", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("DELETE status = %d, want 405", rec.Code)
	}
}

func TestFrameCarriesSnapshot(t *testing.T) {
	_, st := testServer()
	st.Publish(store.Snapshot{RPM: 1000, State: "polling", Connected: true})

	snap := st.Read()
	data, err := json.Marshal(Frame{Telemetry: &snap, Stamp: 42})
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	for _, want := range []string{`"rpm":1000`, `"state":"polling"`, `"connected":true`, `"stamp":42`} {
		if !strings.Contains(s, want) {
			t.Errorf("frame %s missing %s", s, want)
		}
	}
}
