package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"smart-tracker/internal/automation"
	"smart-tracker/internal/domain"
	"smart-tracker/internal/metrics"
	"smart-tracker/internal/state"
	"smart-tracker/internal/telemetry"
)

const (
	DefaultKeepAliveInterval = 10 * time.Second
	DefaultStarterPulse      = 3 * time.Second
)

type SessionConfig struct {
	DataTopic    string
	SubscribeQoS byte

	KeepAliveInterval   time.Duration
	StarterPulse        time.Duration
	Encoding            domain.Encoding
	LockRelaysWhenArmed bool
	IntentHold          time.Duration

	CommandPolicy   DeliveryPolicy
	KeepAlivePolicy DeliveryPolicy
	ShutdownPolicy  DeliveryPolicy
}

type SessionStatus struct {
	Link           domain.LinkStatus `json:"link"`
	Streaming      bool              `json:"streaming"`
	StarterRunning bool              `json:"starterRunning"`
}

// Session owns the broker connection, the state store and every timer of
// one dashboard session. All state transitions run on the Run loop:
// inbound messages, link changes, controls, the keep-alive tick and the
// starter pulse are serialized through a single channel.
type Session struct {
	cfg        SessionConfig
	transport  Transport
	store      *state.Store
	engine     *automation.Engine
	dispatcher *Dispatcher
	latest     LatestCache
	notifier   Notifier
	logger     *slog.Logger

	events chan any
	done   chan struct{}

	mu       sync.RWMutex
	link     domain.LinkStatus
	active   bool
	starting bool

	keepAlive *time.Ticker
	starter   *time.Timer

	// baseline is the last state the automation rules were evaluated on.
	baseline domain.Snapshot
	intent   *commandIntent
}

type messageEvent struct {
	topic   string
	payload []byte
}

type statusEvent struct {
	status domain.LinkStatus
	err    error
}

type controlEvent struct {
	control domain.Control
	reply   chan controlReply
}

type controlReply struct {
	result domain.ControlResult
	err    error
}

type visibilityEvent struct {
	visible bool
	reply   chan struct{}
}

func NewSession(
	cfg SessionConfig,
	transport Transport,
	store *state.Store,
	engine *automation.Engine,
	dispatcher *Dispatcher,
	latest LatestCache,
	notifier Notifier,
	logger *slog.Logger,
) *Session {
	if cfg.KeepAliveInterval <= 0 {
		cfg.KeepAliveInterval = DefaultKeepAliveInterval
	}
	if cfg.StarterPulse <= 0 {
		cfg.StarterPulse = DefaultStarterPulse
	}
	if cfg.Encoding == "" {
		cfg.Encoding = domain.EncodingToken
	}
	if notifier == nil {
		notifier = &NoopNotifier{}
	}

	return &Session{
		cfg:        cfg,
		transport:  transport,
		store:      store,
		engine:     engine,
		dispatcher: dispatcher,
		latest:     latest,
		notifier:   notifier,
		logger:     logger,
		events:     make(chan any, 64),
		done:       make(chan struct{}),
		link:       domain.LinkDisconnected,
		active:     true,
		baseline:   store.Current(),
		intent:     newCommandIntent(cfg.IntentHold),
	}
}

// Run connects, subscribes and processes events until ctx is canceled.
// On exit the streaming-disabled command is sent once and the transport
// is released.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)

	s.logger.Info("connecting to broker", "data_topic", s.cfg.DataTopic)
	if err := s.transport.Connect(ctx, s.onStatus); err != nil {
		return fmt.Errorf("connecting transport: %w", err)
	}
	defer s.transport.Close()

	if err := s.transport.Subscribe(s.cfg.DataTopic, s.cfg.SubscribeQoS, s.onMessage); err != nil {
		return fmt.Errorf("subscribing to %s: %w", s.cfg.DataTopic, err)
	}

	for {
		select {
		case <-ctx.Done():
			s.end("session closed")
			return ctx.Err()

		case ev := <-s.events:
			s.handle(ctx, ev)

		case <-s.keepAliveC():
			s.sendKeepAlive()

		case <-s.starterC():
			s.finishStarterPulse("starter-pulse-elapsed")
		}
	}
}

// Control runs a dashboard button on the session loop.
func (s *Session) Control(ctx context.Context, c domain.Control) (domain.ControlResult, error) {
	reply := make(chan controlReply, 1)
	if err := s.post(ctx, controlEvent{control: c, reply: reply}); err != nil {
		return domain.ControlResult{Control: c}, err
	}

	select {
	case r := <-reply:
		return r.result, r.err
	case <-s.done:
		return domain.ControlResult{Control: c}, domain.ErrSessionClosed
	case <-ctx.Done():
		return domain.ControlResult{Control: c}, ctx.Err()
	}
}

// SetVisible forwards the page visibility signal. Hidden ends streaming
// the same way closing the session does; visible resumes it.
func (s *Session) SetVisible(ctx context.Context, visible bool) error {
	reply := make(chan struct{})
	if err := s.post(ctx, visibilityEvent{visible: visible, reply: reply}); err != nil {
		return err
	}

	select {
	case <-reply:
		return nil
	case <-s.done:
		return domain.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) Snapshot() domain.Snapshot {
	return s.store.Current()
}

func (s *Session) Status() SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SessionStatus{
		Link:           s.link,
		Streaming:      s.active,
		StarterRunning: s.starting,
	}
}

func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) post(ctx context.Context, ev any) error {
	select {
	case s.events <- ev:
		return nil
	case <-s.done:
		return domain.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) onMessage(topic string, payload []byte) {
	select {
	case s.events <- messageEvent{topic: topic, payload: payload}:
	case <-s.done:
	}
}

func (s *Session) onStatus(status domain.LinkStatus, err error) {
	select {
	case s.events <- statusEvent{status: status, err: err}:
	case <-s.done:
	}
}

func (s *Session) handle(ctx context.Context, ev any) {
	switch e := ev.(type) {
	case messageEvent:
		s.handleMessage(ctx, e)
	case statusEvent:
		s.handleStatus(e)
	case controlEvent:
		result, err := s.handleControl(e.control)
		e.reply <- controlReply{result: result, err: err}
	case visibilityEvent:
		s.handleVisibility(e.visible)
		close(e.reply)
	}
}

func (s *Session) handleMessage(ctx context.Context, e messageEvent) {
	if e.topic != s.cfg.DataTopic {
		return
	}
	metrics.MessagesReceived.Inc()

	update, err := telemetry.Decode(e.payload)
	if err != nil {
		metrics.DecodeErrors.Inc()
		s.logger.Warn("dropping telemetry", "error", err, "bytes", len(e.payload))
		return
	}

	if s.latest != nil {
		putCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := s.latest.Put(putCtx, e.payload); err != nil {
			s.logger.Warn("caching latest report", "error", err)
		}
		cancel()
	}

	next, diff := s.store.Apply(update)
	if diff.Empty() {
		return
	}

	s.logger.Debug("device state updated", "device_id", next.DeviceID, "groups", diff.Groups())
	s.evaluate(next)
}

func (s *Session) handleStatus(e statusEvent) {
	s.mu.Lock()
	prev := s.link
	s.link = e.status
	active := s.active
	s.mu.Unlock()

	if prev == e.status {
		return
	}

	if e.err != nil {
		s.logger.Warn("broker link changed", "from", prev, "to", e.status, "error", e.err)
	} else {
		s.logger.Info("broker link changed", "from", prev, "to", e.status)
	}

	if e.status == domain.LinkConnected {
		metrics.LinkState.Set(1)
		if prev == domain.LinkReconnecting {
			s.notify("Tracker link restored")
		}
		if active {
			s.startKeepAlive()
		}
		return
	}

	metrics.LinkState.Set(0)
	s.stopKeepAlive()
	if prev == domain.LinkConnected {
		s.notify("Tracker link lost")
	}
}

func (s *Session) handleVisibility(visible bool) {
	if !visible {
		s.end("page hidden")
		return
	}

	s.mu.Lock()
	resumed := !s.active
	s.active = true
	connected := s.link == domain.LinkConnected
	s.mu.Unlock()

	if resumed {
		s.logger.Info("session visible, resuming streaming")
		if connected {
			s.startKeepAlive()
		}
	}
}

// end stops the keep-alive and sends streaming-disabled once per active
// period. Delivery is best effort; the device times streaming out on its
// own if the command is lost.
func (s *Session) end(reason string) {
	s.mu.Lock()
	wasActive := s.active
	s.active = false
	s.mu.Unlock()

	s.stopKeepAlive()

	if s.starter != nil {
		s.finishStarterPulse("session-ended")
	}

	if !wasActive {
		return
	}

	s.logger.Info("ending streaming", "reason", reason)
	cmd := domain.TokenCommand(domain.TokenStreamingOff).WithOrigin(domain.OriginSession, reason)
	if _, err := s.dispatcher.Dispatch(cmd, s.cfg.ShutdownPolicy); err != nil {
		s.logger.Info("streaming-disabled not delivered", "error", err)
	}
}

func (s *Session) startKeepAlive() {
	s.stopKeepAlive()
	s.sendKeepAlive()
	s.keepAlive = time.NewTicker(s.cfg.KeepAliveInterval)
}

func (s *Session) stopKeepAlive() {
	if s.keepAlive != nil {
		s.keepAlive.Stop()
		s.keepAlive = nil
	}
}

func (s *Session) keepAliveC() <-chan time.Time {
	if s.keepAlive == nil {
		return nil
	}
	return s.keepAlive.C
}

func (s *Session) sendKeepAlive() {
	cmd := domain.TokenCommand(domain.TokenStreamingOn).WithOrigin(domain.OriginSession, "keep-alive")
	if _, err := s.dispatcher.Dispatch(cmd, s.cfg.KeepAlivePolicy); err != nil {
		s.logger.Debug("keep-alive not sent", "error", err)
	}
}

func (s *Session) starterC() <-chan time.Time {
	if s.starter == nil {
		return nil
	}
	return s.starter.C
}

// finishStarterPulse cancels the pulse timer and releases the starter.
func (s *Session) finishStarterPulse(reason string) []string {
	s.cancelStarterPulse()

	cmd := domain.RelayCommand(domain.RelayStarter, false, s.cfg.Encoding).
		WithOrigin(domain.OriginSession, reason).
		WithDelivery(domain.DeliveryAcknowledged)
	if _, err := s.dispatcher.Dispatch(cmd, s.cfg.CommandPolicy); err != nil {
		s.logger.Warn("starter release not delivered", "reason", reason, "error", err)
		return nil
	}
	return []string{cmd.String()}
}

func (s *Session) cancelStarterPulse() {
	if s.starter != nil {
		s.starter.Stop()
		s.starter = nil
	}
	s.intent.setRelay(domain.RelayStarter, false, time.Now())

	s.mu.Lock()
	s.starting = false
	s.mu.Unlock()
}

// evaluate runs the automation rules from the baseline to reported with
// pending commanded values laid over it, then moves the baseline.
func (s *Session) evaluate(reported domain.Snapshot) []string {
	next := s.intent.overlay(reported, time.Now())
	sent := s.automate(s.baseline, next)
	s.baseline = next
	return sent
}

func (s *Session) automate(prev, next domain.Snapshot) []string {
	decision := s.engine.Evaluate(prev, next)

	for _, note := range decision.Notes {
		s.logger.Info("automation took no action", "note", note)
	}

	var sent []string
	for _, cmd := range decision.Commands {
		metrics.AutomationFired.WithLabelValues(cmd.Reason).Inc()
		if cmd.Reason == automation.RuleAntiTheftEngage {
			s.notify("Anti-theft relay engaged")
		}

		if _, err := s.dispatcher.Dispatch(cmd, s.cfg.CommandPolicy); err != nil {
			s.logger.Warn("automation command not delivered", "command", cmd.String(), "rule", cmd.Reason, "error", err)
			continue
		}
		sent = append(sent, cmd.String())
	}
	return sent
}

func (s *Session) notify(message string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.notifier.Notify(ctx, message); err != nil {
			s.logger.Error("notifying", "message", message, "error", err)
		}
	}()
}
