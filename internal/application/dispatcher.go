package application

import (
	"log/slog"
	"time"

	"smart-tracker/internal/domain"
	"smart-tracker/internal/metrics"
)

// DeliveryPolicy is the broker-level treatment of one publish.
type DeliveryPolicy struct {
	QoS    byte
	Retain bool
}

const DefaultDedupWindow = 300 * time.Millisecond

// Dispatcher serializes commands and publishes them on the command topic.
// It is owned by the session loop and is not safe for concurrent use.
type Dispatcher struct {
	transport Transport
	topic     string
	window    time.Duration
	logger    *slog.Logger
	now       func() time.Time

	lastKey string
	lastAt  time.Time
}

func NewDispatcher(transport Transport, topic string, window time.Duration, logger *slog.Logger) *Dispatcher {
	if window < 0 {
		window = 0
	}
	return &Dispatcher{
		transport: transport,
		topic:     topic,
		window:    window,
		logger:    logger,
		now:       time.Now,
	}
}

// SetClock replaces the time source used for the de-duplication window.
func (d *Dispatcher) SetClock(now func() time.Time) {
	d.now = now
}

// Dispatch publishes cmd. It returns merged=true when an identical command
// went out less than one window ago and this one was folded into it.
// A *domain.NotConnectedError means the command was dropped; nothing is
// queued or retried.
func (d *Dispatcher) Dispatch(cmd domain.Command, policy DeliveryPolicy) (bool, error) {
	payload, err := cmd.Payload()
	if err != nil {
		metrics.CommandsDropped.WithLabelValues("invalid").Inc()
		return false, err
	}

	if !d.transport.IsConnected() {
		metrics.CommandsDropped.WithLabelValues("not_connected").Inc()
		d.logger.Warn("dropping command, transport not connected",
			"command", cmd.String(),
			"origin", cmd.Origin,
		)
		return false, &domain.NotConnectedError{Command: cmd.String()}
	}

	policy = applyHint(policy, cmd)
	key := string(payload)
	now := d.now()

	if d.window > 0 && key == d.lastKey && now.Sub(d.lastAt) < d.window {
		metrics.CommandsMerged.Inc()
		d.logger.Debug("merged duplicate command",
			"command", cmd.String(),
			"origin", cmd.Origin,
			"since_last", now.Sub(d.lastAt),
		)
		return true, nil
	}

	if err := d.transport.Publish(d.topic, policy.QoS, policy.Retain, payload); err != nil {
		metrics.CommandsDropped.WithLabelValues("publish_error").Inc()
		return false, err
	}

	d.lastKey = key
	d.lastAt = now

	metrics.CommandsPublished.WithLabelValues(cmd.String(), string(cmd.Origin)).Inc()
	d.logger.Info("command published",
		"command", cmd.String(),
		"origin", cmd.Origin,
		"reason", cmd.Reason,
		"qos", policy.QoS,
		"retain", policy.Retain,
	)

	return false, nil
}

func applyHint(policy DeliveryPolicy, cmd domain.Command) DeliveryPolicy {
	switch cmd.Delivery {
	case domain.DeliveryFireAndForget:
		policy.QoS = 0
	case domain.DeliveryAcknowledged:
		policy.QoS = 1
	}
	if cmd.Retain {
		policy.Retain = true
	}
	return policy
}
