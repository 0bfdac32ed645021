// Package sms delivers passenger notifications by text message.
package sms

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Gateway sends a single text message to a phone number
type Gateway interface {
	// Send delivers message to phone and returns the gateway's transaction ID
	Send(ctx context.Context, phone, message string) (int64, error)

	// GetName returns the name of the gateway implementation
	GetName() string
}

// SentMessage is a message recorded by LogGateway
type SentMessage struct {
	Phone   string
	Message string
}

// LogGateway writes messages to the log instead of sending them.
// It is used in dev mode and keeps a copy of every message for inspection.
type LogGateway struct {
	logger *logrus.Logger

	mu   sync.Mutex
	sent []SentMessage
}

// NewLogGateway creates a gateway that only logs
func NewLogGateway(logger *logrus.Logger) *LogGateway {
	return &LogGateway{logger: logger}
}

// Send logs the message
func (g *LogGateway) Send(ctx context.Context, phone, message string) (int64, error) {
	g.mu.Lock()
	g.sent = append(g.sent, SentMessage{Phone: phone, Message: message})
	id := int64(len(g.sent))
	g.mu.Unlock()

	g.logger.WithFields(logrus.Fields{
		"phone":          phone,
		"message":        message,
		"transaction_id": id,
	}).Info("SMS (dev mode, not sent)")
	return id, nil
}

// Sent returns a copy of the messages logged so far
func (g *LogGateway) Sent() []SentMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]SentMessage(nil), g.sent...)
}

// GetName returns the name of this gateway
func (g *LogGateway) GetName() string {
	return "Log Gateway (dev)"
}
