// Package notify fans store notifications out over NATS so other
// devices of the same account pick them up.
package notify

import (
	"github.com/nats-io/nats.go"
)

// SubjectPrefix is the NATS subject root for user notifications.
const SubjectPrefix = "club.notifications."

// UserSubject returns the notification subject for a user.
func UserSubject(userID string) string {
	return SubjectPrefix + userID
}

// Publisher delivers serialized notifications to a subject.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher publishes over a core NATS connection.
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher wraps an established NATS connection.
func NewNATSPublisher(conn *nats.Conn) *NATSPublisher {
	return &NATSPublisher{conn: conn}
}

// Publish sends data to the subject.
func (p *NATSPublisher) Publish(subject string, data []byte) error {
	return p.conn.Publish(subject, data)
}

// Nop discards all notifications. Used when no NATS connection is
// configured.
type Nop struct{}

// Publish discards the notification.
func (Nop) Publish(string, []byte) error { return nil }
