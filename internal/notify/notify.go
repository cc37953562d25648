// Package notify provides a notification dispatcher that routes events to configured adapters.
package notify

import (
	"fmt"
	"log"
	"sort"
	"strings"
)

// Event names fanned out to Telegram and webhooks.
const (
	EventEstimateBlocked = "estimate.blocked"
	EventCheckoutPaid    = "checkout.paid"
	EventDailyDigest     = "digest.daily"
)

var titles = map[string]string{
	EventEstimateBlocked: "Workflow over budget (blocked)",
	EventCheckoutPaid:    "Policy pack purchased",
	EventDailyDigest:     "BudgetGuard daily digest",
}

// Sender can send a plain text message.
type Sender interface {
	Send(msg string) error
}

// digestSender is implemented by adapters that decorate the daily digest.
type digestSender interface {
	SendDigest(msg string) error
}

// WebhookFirer can fire a webhook event.
type WebhookFirer interface {
	Fire(event string, payload interface{})
}

// Dispatcher routes notification events to Telegram and webhooks.
type Dispatcher struct {
	telegram Sender
	webhook  WebhookFirer
}

// New creates a Dispatcher. Both telegram and webhook may be nil (disabled).
func New(telegram Sender, webhook WebhookFirer) *Dispatcher {
	return &Dispatcher{telegram: telegram, webhook: webhook}
}

// Send dispatches a notification event to all configured adapters.
func (d *Dispatcher) Send(event string, payload map[string]interface{}) {
	if d.telegram != nil {
		msg := formatEvent(event, payload)
		var err error
		if ds, ok := d.telegram.(digestSender); ok && event == EventDailyDigest {
			err = ds.SendDigest(msg)
		} else {
			err = d.telegram.Send(msg)
		}
		if err != nil {
			log.Printf("notify: telegram send: %v", err)
		}
	}
	if d.webhook != nil {
		d.webhook.Fire(event, payload)
	}
}

// SendTelegram sends a message only via Telegram.
func (d *Dispatcher) SendTelegram(msg string) {
	if d.telegram == nil {
		return
	}
	if err := d.telegram.Send(msg); err != nil {
		log.Printf("notify: telegram: %v", err)
	}
}

// formatEvent renders a payload as a title line followed by sorted key: value lines.
func formatEvent(event string, payload map[string]interface{}) string {
	title, ok := titles[event]
	if !ok {
		title = event
	}
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(title)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n%s: %v", k, payload[k])
	}
	return b.String()
}
