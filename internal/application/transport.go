package application

import (
	"context"

	"smart-tracker/internal/domain"
)

type MessageHandler func(topic string, payload []byte)

type StatusHandler func(status domain.LinkStatus, err error)

// Transport is the pub/sub link to the tracker. Delivery is at-least-once
// with no ordering guarantee across reconnects. Publish must not block on
// broker acknowledgement.
type Transport interface {
	Connect(ctx context.Context, onStatus StatusHandler) error
	Subscribe(topic string, qos byte, handler MessageHandler) error
	Publish(topic string, qos byte, retain bool, payload []byte) error
	IsConnected() bool
	Close()
}
