// Broadcasts status messages to every open application page
package notify

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Severity tags a notification. The set is open-ended.
type Severity string

const (
	Success Severity = "success"
	Warning Severity = "warning"
	Danger  Severity = "danger"
)

// TypeShowAlert is the only notification type pages currently understand
const TypeShowAlert = "SHOW_ALERT"

// Notification is the message delivered to subscribers
type Notification struct {
	Type    string  `json:"type"`
	Payload Payload `json:"payload"`
}

type Payload struct {
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// NewAlert builds a SHOW_ALERT notification
func NewAlert(message string, severity Severity) Notification {
	return Notification{
		Type: TypeShowAlert,
		Payload: Payload{
			Message:  message,
			Severity: severity,
		},
	}
}

// Subscriber receives notifications. Deliver may block or fail; the registry
// isolates subscribers from each other.
type Subscriber interface {
	Deliver(n Notification) error
}

// SubscriberFunc adapts a function to Subscriber
type SubscriberFunc func(n Notification) error

func (f SubscriberFunc) Deliver(n Notification) error {
	return f(n)
}

// Notifier is what lifecycle and request code uses to raise alerts
type Notifier interface {
	Alert(message string, severity Severity)
}

// Registry is the set of currently subscribed consumers
type Registry struct {
	mu          sync.RWMutex
	subscribers map[string]Subscriber
}

func NewRegistry() *Registry {
	return &Registry{
		subscribers: make(map[string]Subscriber),
	}
}

// Subscribe registers s and returns its id and a function removing it
func (r *Registry) Subscribe(s Subscriber) (string, func()) {
	id := uuid.NewString()

	r.mu.Lock()
	r.subscribers[id] = s
	r.mu.Unlock()

	logrus.Debugf("Subscriber %s connected", id)
	return id, func() { r.Unsubscribe(id) }
}

func (r *Registry) Unsubscribe(id string) {
	r.mu.Lock()
	_, ok := r.subscribers[id]
	delete(r.subscribers, id)
	r.mu.Unlock()

	if ok {
		logrus.Debugf("Subscriber %s disconnected", id)
	}
}

// Len returns the number of current subscribers
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscribers)
}

// Publish delivers n to every current subscriber, each in its own goroutine.
// It returns without waiting for any delivery.
func (r *Registry) Publish(n Notification) {
	r.mu.RLock()
	targets := make(map[string]Subscriber, len(r.subscribers))
	for id, s := range r.subscribers {
		targets[id] = s
	}
	r.mu.RUnlock()

	for id, s := range targets {
		go deliver(id, s, n)
	}
}

// Alert publishes a SHOW_ALERT notification
func (r *Registry) Alert(message string, severity Severity) {
	logrus.WithField("severity", severity).Debugf("Alert: %s", message)
	r.Publish(NewAlert(message, severity))
}

func deliver(id string, s Subscriber, n Notification) {
	defer func() {
		if p := recover(); p != nil {
			logrus.Errorf("Subscriber %s panicked while receiving notification: %v", id, p)
		}
	}()
	if err := s.Deliver(n); err != nil {
		logrus.Warnf("Failed to deliver notification to subscriber %s: %v", id, err)
	}
}

// ErrSubscriberFull is returned when a ChanSubscriber buffer is full
var ErrSubscriberFull = errors.New("subscriber buffer full")

// ChanSubscriber buffers notifications in a channel, dropping them on overflow
type ChanSubscriber struct {
	C chan Notification
}

func NewChanSubscriber(size int) *ChanSubscriber {
	return &ChanSubscriber{C: make(chan Notification, size)}
}

func (c *ChanSubscriber) Deliver(n Notification) error {
	select {
	case c.C <- n:
		return nil
	default:
		return ErrSubscriberFull
	}
}
