// Package broker publishes sync event log entries to an MQTT broker.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/macjediwizard/syncbridge/internal/db"
)

var (
	ErrNotConnected = errors.New("broker not connected")
	ErrTimeout      = errors.New("broker timeout")
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	topicPrefix    = "syncbridge"
	qos            = 1
)

// Config holds MQTT connection settings.
type Config struct {
	URL      string
	ClientID string
	Username string
	Password string
}

// EventMessage is the published form of an event log entry.
type EventMessage struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	SyncID       string    `json:"syncId"`
	ConnectionID string    `json:"connectionId"`
	Status       string    `json:"status"`
	Message      string    `json:"message,omitempty"`
	RecordCount  int       `json:"recordCount"`
	CreatedDate  time.Time `json:"createdDate"`
}

// Topic returns the topic an entry of a sync configuration is published to.
func Topic(connectionID, syncID string) string {
	return fmt.Sprintf("%s/%s/%s/events", topicPrefix, connectionID, syncID)
}

// Publisher publishes messages over a persistent MQTT connection.
type Publisher struct {
	client mqtt.Client
}

// NewPublisher connects to the broker.
func NewPublisher(cfg Config) (*Publisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.URL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(c mqtt.Client) {
			log.Println("[broker] Connected to message broker")
		}).
		SetConnectionLostHandler(func(c mqtt.Client, err error) {
			log.Printf("[broker] Connection lost: %v", err)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("%w: connecting to %s", ErrTimeout, cfg.URL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	return &Publisher{client: client}, nil
}

// PublishEvent publishes an event log entry of a configuration.
func (p *Publisher) PublishEvent(connectionID string, entry *db.EventLog) error {
	msg := EventMessage{
		ID:           entry.ID,
		Name:         entry.Name,
		SyncID:       entry.SyncID,
		ConnectionID: connectionID,
		Status:       string(entry.Status),
		Message:      entry.Message,
		RecordCount:  entry.RecordCount,
		CreatedDate:  entry.CreatedAt,
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	topic := Topic(connectionID, entry.SyncID)
	if err := p.publish(topic, payload); err != nil {
		return err
	}
	log.Printf("[broker] Published %s to %s", entry.Name, topic)
	return nil
}

func (p *Publisher) publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%w: publishing to %s", ErrTimeout, topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish: %w", err)
	}
	return nil
}

// PingContext reports whether the connection is up.
func (p *Publisher) PingContext(_ context.Context) error {
	if !p.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	return nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.client.Disconnect(1000)
	log.Println("[broker] Disconnected from message broker")
}
