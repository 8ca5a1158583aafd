// Package notify delivers operational alerts (connection failures, exhausted
// rate limits) to external channels.
package notify

import (
	"context"
	"errors"
	"log"
)

// Severity classifies an alert for channel-side formatting.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Alert is one operational event worth telling a human about.
type Alert struct {
	Title    string
	Body     string
	Severity Severity
}

// Notifier delivers alerts to one destination.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// Multi fans an alert out to every configured notifier. Delivery failures
// are collected; one failing channel never blocks the others.
type Multi struct {
	notifiers []Notifier
}

// NewMulti creates a fan-out notifier. Nil entries are skipped.
func NewMulti(notifiers ...Notifier) *Multi {
	m := &Multi{}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

// Notify sends the alert to every channel and joins any errors.
func (m *Multi) Notify(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, alert); err != nil {
			log.Printf("notify: delivery failed: %v", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len reports how many destinations are configured.
func (m *Multi) Len() int {
	return len(m.notifiers)
}
