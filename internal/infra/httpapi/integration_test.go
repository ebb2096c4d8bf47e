package httpapi_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"smart-tracker/internal/application"
	"smart-tracker/internal/automation"
	"smart-tracker/internal/domain"
	"smart-tracker/internal/infra/httpapi"
	"smart-tracker/internal/infra/memstore"
	"smart-tracker/internal/state"
)

type loopbackTransport struct {
	mu        sync.Mutex
	handler   application.MessageHandler
	published []string
}

func (l *loopbackTransport) Connect(_ context.Context, onStatus application.StatusHandler) error {
	onStatus(domain.LinkConnected, nil)
	return nil
}

func (l *loopbackTransport) Subscribe(_ string, _ byte, handler application.MessageHandler) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handler = handler
	return nil
}

func (l *loopbackTransport) Publish(_ string, _ byte, _ bool, payload []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.published = append(l.published, string(payload))
	return nil
}

func (l *loopbackTransport) IsConnected() bool { return true }
func (l *loopbackTransport) Close()            {}

func (l *loopbackTransport) report(payload string) {
	l.mu.Lock()
	handler := l.handler
	l.mu.Unlock()
	handler("tracker/data-gps", []byte(payload))
}

func (l *loopbackTransport) sent() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.published...)
}

func TestDashboardEndToEnd(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	transport := &loopbackTransport{}
	latest := memstore.NewLatestCache()

	session := application.NewSession(
		application.SessionConfig{DataTopic: "tracker/data-gps", KeepAliveInterval: time.Hour},
		transport,
		state.NewStore(),
		automation.NewEngine(automation.DefaultVoltageThreshold, domain.EncodingToken),
		application.NewDispatcher(transport, "tracker/cmd-control", application.DefaultDedupWindow, logger),
		latest,
		nil,
		logger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = session.Run(ctx)
	}()

	server := httptest.NewServer(httpapi.NewServer(httpapi.Config{}, memstore.NewRecordStore(), latest, session, logger).Handler())
	defer server.Close()

	waitUntil(t, func() bool { return len(transport.sent()) > 0 })
	transport.report(`{"device_id": "tracker-1", "sys": {"vbat": 12.6}, "relay": {"r1": 1, "r2": 0, "r3": 0, "r4": 0}}`)

	resp, err := http.Post(server.URL+"/api/controls/starter", "application/json", nil)
	if err != nil {
		t.Fatalf("POST starter: %v", err)
	}
	var result domain.ControlResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decoding control result: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || len(result.Sent) != 1 || result.Sent[0] != "R2_ON" {
		t.Fatalf("starter: status %d, sent %v", resp.StatusCode, result.Sent)
	}

	resp, err = http.Get(server.URL + "/api/state")
	if err != nil {
		t.Fatalf("GET state: %v", err)
	}
	var st struct {
		Snapshot       domain.Snapshot   `json:"snapshot"`
		Link           domain.LinkStatus `json:"link"`
		StarterRunning bool              `json:"starterRunning"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decoding state: %v", err)
	}
	resp.Body.Close()
	if st.Snapshot.DeviceID != "tracker-1" || st.Link != domain.LinkConnected || !st.StarterRunning {
		t.Errorf("state: %+v", st)
	}

	resp, err = http.Get(server.URL + "/api/latest")
	if err != nil {
		t.Fatalf("GET latest: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), `"device_id": "tracker-1"`) {
		t.Errorf("latest: got %s", body)
	}

	resp, err = http.Post(server.URL+"/api/session/visibility", "application/json", strings.NewReader(`{"state":"hidden"}`))
	if err != nil {
		t.Fatalf("POST visibility: %v", err)
	}
	resp.Body.Close()

	cancel()
	<-done

	// Ending the session mid-pulse releases the starter before streaming stops.
	want := []string{"SEND_ON", "R2_ON", "R2_OFF", "SEND_OFF"}
	got := transport.sent()
	if len(got) != len(want) {
		t.Fatalf("published %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("publish %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
