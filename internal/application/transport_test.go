package application_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"smart-tracker/internal/application"
	"smart-tracker/internal/domain"
)

const (
	dataTopic    = "abc123/data-gps"
	commandTopic = "abc123/cmd-control"
)

type published struct {
	topic   string
	qos     byte
	retain  bool
	payload string
}

type mockTransport struct {
	mu          sync.Mutex
	autoConnect bool
	connected   bool
	closed      bool
	publishErr  error
	published   []published
	handlers    map[string]application.MessageHandler
	onStatus    application.StatusHandler
}

func newMockTransport(connected bool) *mockTransport {
	return &mockTransport{
		autoConnect: connected,
		connected:   connected,
		handlers:    make(map[string]application.MessageHandler),
	}
}

func (m *mockTransport) Connect(_ context.Context, onStatus application.StatusHandler) error {
	m.mu.Lock()
	m.onStatus = onStatus
	auto := m.autoConnect
	m.mu.Unlock()

	if auto {
		onStatus(domain.LinkConnected, nil)
	}
	return nil
}

func (m *mockTransport) Subscribe(topic string, _ byte, handler application.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *mockTransport) Publish(topic string, qos byte, retain bool, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, published{topic: topic, qos: qos, retain: retain, payload: string(payload)})
	return nil
}

func (m *mockTransport) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockTransport) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.connected = false
}

func (m *mockTransport) setLink(status domain.LinkStatus) {
	m.mu.Lock()
	m.connected = status == domain.LinkConnected
	onStatus := m.onStatus
	m.mu.Unlock()

	if onStatus != nil {
		onStatus(status, nil)
	}
}

func (m *mockTransport) deliver(topic, payload string) {
	m.mu.Lock()
	handler := m.handlers[topic]
	m.mu.Unlock()

	if handler != nil {
		handler(topic, []byte(payload))
	}
}

func (m *mockTransport) payloads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.published))
	for _, p := range m.published {
		out = append(out, p.payload)
	}
	return out
}

func (m *mockTransport) count(payload string) int {
	n := 0
	for _, p := range m.payloads() {
		if p == payload {
			n++
		}
	}
	return n
}

func (m *mockTransport) last() published {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.published) == 0 {
		return published{}
	}
	return m.published[len(m.published)-1]
}

func (m *mockTransport) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
