package lnurlbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/btcsuite/btclog/v2"
	"github.com/google/uuid"
)

const (
	TopicPayments = "lnurl.payments"
	TopicAuth     = "lnurl.auth"
)

// PaymentOutcome is published once a withdrawal payment reached a final
// state.
type PaymentOutcome struct {
	JobID       string    `json:"job_id"`
	Invoice     string    `json:"invoice"`
	AmountMsat  uint64    `json:"amount_msat"`
	FeeMsat     uint64    `json:"fee_msat,omitempty"`
	PaymentHash string    `json:"payment_hash,omitempty"`
	Succeeded   bool      `json:"succeeded"`
	Error       string    `json:"error,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// LoginEvent is published for every verified auth response.
type LoginEvent struct {
	PubKey string    `json:"pubkey"`
	Event  string    `json:"event"`
	At     time.Time `json:"at"`
}

// EventPublisher notifies interested parties about flow outcomes that are not
// visible in any HTTP response.
type EventPublisher interface {
	PublishPayment(ctx context.Context, outcome PaymentOutcome) error
	PublishLogin(ctx context.Context, ev LoginEvent) error
}

// WatermillPublisher implements EventPublisher using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
}

func NewWatermillPublisher(publisher message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{publisher: publisher}
}

func (p *WatermillPublisher) PublishPayment(ctx context.Context,
	outcome PaymentOutcome) error {

	return p.publish(ctx, TopicPayments, outcome)
}

func (p *WatermillPublisher) PublishLogin(ctx context.Context,
	ev LoginEvent) error {

	return p.publish(ctx, TopicAuth, ev)
}

func (p *WatermillPublisher) publish(ctx context.Context, topic string,
	event any) error {

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// noopPublisher drops every event.
type noopPublisher struct{}

func (noopPublisher) PublishPayment(context.Context, PaymentOutcome) error {
	return nil
}

func (noopPublisher) PublishLogin(context.Context, LoginEvent) error {
	return nil
}

// watermillLogger adapts a btclog.Logger to watermill.LoggerAdapter.
type watermillLogger struct {
	log    btclog.Logger
	fields watermill.LogFields
}

// NewWatermillLogger routes watermill's internal logging through logger.
func NewWatermillLogger(logger btclog.Logger) watermill.LoggerAdapter {
	return &watermillLogger{log: logger}
}

func (w *watermillLogger) Error(msg string, err error,
	fields watermill.LogFields) {

	w.log.Errorf("%s: %v%s", msg, err, w.format(fields))
}

func (w *watermillLogger) Info(msg string, fields watermill.LogFields) {
	w.log.Infof("%s%s", msg, w.format(fields))
}

func (w *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	w.log.Debugf("%s%s", msg, w.format(fields))
}

func (w *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	w.log.Tracef("%s%s", msg, w.format(fields))
}

func (w *watermillLogger) With(
	fields watermill.LogFields) watermill.LoggerAdapter {

	return &watermillLogger{log: w.log, fields: w.fields.Add(fields)}
}

func (w *watermillLogger) format(fields watermill.LogFields) string {
	all := w.fields.Add(fields)
	if len(all) == 0 {
		return ""
	}

	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, all[k])
	}

	return b.String()
}
