// Package mqtt adapts the paho client to the session's Transport port.
package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"smart-tracker/internal/application"
	"smart-tracker/internal/domain"
)

const (
	DefaultBroker          = "wss://broker.hivemq.com:8884/mqtt"
	DefaultClientIDPrefix  = "DashboardClient_"
	DefaultConnectTimeout  = 10 * time.Second
	DefaultReconnectPeriod = 5 * time.Second
	DefaultKeepAlive       = 30 * time.Second

	subscribeTimeout  = 10 * time.Second
	publishTimeout    = 10 * time.Second
	disconnectQuiesce = 250 // ms
)

var errNotConnected = errors.New("mqtt client not connected")

type Config struct {
	Broker          string
	ClientIDPrefix  string
	Username        string
	Password        string
	ConnectTimeout  time.Duration
	ReconnectPeriod time.Duration
	KeepAlive       time.Duration
}

type subscription struct {
	qos     byte
	handler application.MessageHandler
}

// Client keeps one broker connection alive with automatic reconnects and
// restores subscriptions after every (re)connect.
type Client struct {
	client paho.Client
	logger *slog.Logger

	mu       sync.Mutex
	subs     map[string]subscription
	onStatus application.StatusHandler
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Broker == "" {
		cfg.Broker = DefaultBroker
	}
	if cfg.ClientIDPrefix == "" {
		cfg.ClientIDPrefix = DefaultClientIDPrefix
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.ReconnectPeriod <= 0 {
		cfg.ReconnectPeriod = DefaultReconnectPeriod
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = DefaultKeepAlive
	}

	c := &Client{
		logger: logger,
		subs:   make(map[string]subscription),
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID(cfg.ClientIDPrefix)).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(cfg.ReconnectPeriod).
		SetMaxReconnectInterval(cfg.ReconnectPeriod).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetKeepAlive(cfg.KeepAlive).
		SetOnConnectHandler(c.handleConnect).
		SetConnectionLostHandler(c.handleConnectionLost).
		SetReconnectingHandler(c.handleReconnecting).
		SetConnectionAttemptHandler(c.handleAttempt)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	c.client = paho.NewClient(opts)
	return c
}

func clientID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func (c *Client) ClientID() string {
	r := c.client.OptionsReader()
	return r.ClientID()
}

// Connect starts connecting in the background and returns. Link changes
// are reported through onStatus, including the first successful connect.
func (c *Client) Connect(_ context.Context, onStatus application.StatusHandler) error {
	c.mu.Lock()
	c.onStatus = onStatus
	c.mu.Unlock()

	c.logger.Info("connecting to mqtt broker", "client_id", c.ClientID())

	token := c.client.Connect()
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			c.logger.Error("mqtt connect failed", "error", err)
			c.status(domain.LinkDisconnected, err)
		}
	}()

	return nil
}

// Subscribe records the subscription and applies it now if connected;
// otherwise it is applied on the next connect.
func (c *Client) Subscribe(topic string, qos byte, handler application.MessageHandler) error {
	c.mu.Lock()
	c.subs[topic] = subscription{qos: qos, handler: handler}
	c.mu.Unlock()

	if !c.client.IsConnectionOpen() {
		return nil
	}
	return c.subscribe(topic, qos, handler)
}

func (c *Client) subscribe(topic string, qos byte, handler application.MessageHandler) error {
	token := c.client.Subscribe(topic, qos, func(_ paho.Client, msg paho.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(subscribeTimeout) {
		return fmt.Errorf("subscribing to %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	c.logger.Info("subscribed", "topic", topic, "qos", qos)
	return nil
}

// Publish hands the payload to paho without waiting for the broker. QoS 1
// acknowledgements are awaited in the background and failures logged.
func (c *Client) Publish(topic string, qos byte, retain bool, payload []byte) error {
	if !c.client.IsConnectionOpen() {
		return errNotConnected
	}

	token := c.client.Publish(topic, qos, retain, payload)
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			c.logger.Warn("publish not acknowledged", "topic", topic, "payload", string(payload))
			return
		}
		if err := token.Error(); err != nil {
			c.logger.Error("publish failed", "topic", topic, "payload", string(payload), "error", err)
		}
	}()

	return nil
}

func (c *Client) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

func (c *Client) Close() {
	c.client.Disconnect(disconnectQuiesce)
	c.logger.Info("mqtt client disconnected")
}

func (c *Client) handleConnect(_ paho.Client) {
	c.mu.Lock()
	subs := make(map[string]subscription, len(c.subs))
	for topic, s := range c.subs {
		subs[topic] = s
	}
	c.mu.Unlock()

	// Clean sessions drop subscriptions on every reconnect. Token waits
	// inside the connect handler stall paho, so restore them async.
	go func() {
		for topic, s := range subs {
			if err := c.subscribe(topic, s.qos, s.handler); err != nil {
				c.logger.Error("restoring subscription", "topic", topic, "error", err)
			}
		}
	}()

	c.status(domain.LinkConnected, nil)
}

func (c *Client) handleConnectionLost(_ paho.Client, err error) {
	c.logger.Warn("mqtt connection lost", "error", err)
	c.status(domain.LinkDisconnected, err)
}

func (c *Client) handleReconnecting(_ paho.Client, _ *paho.ClientOptions) {
	c.status(domain.LinkReconnecting, nil)
}

func (c *Client) handleAttempt(broker *url.URL, tlsCfg *tls.Config) *tls.Config {
	c.logger.Debug("mqtt connection attempt", "broker", broker.String())
	if !c.client.IsConnectionOpen() {
		c.status(domain.LinkReconnecting, nil)
	}
	return tlsCfg
}

func (c *Client) status(s domain.LinkStatus, err error) {
	c.mu.Lock()
	onStatus := c.onStatus
	c.mu.Unlock()

	if onStatus != nil {
		onStatus(s, err)
	}
}
