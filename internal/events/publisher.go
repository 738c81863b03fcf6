package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/crypthunt/crypthunt/internal/domain"
)

// Event is the envelope published to the event stream.
type Event struct {
	Type      string      `json:"type"`
	Cycle     int64       `json:"cycle"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

const (
	TypeHuntOpened  = "hunt_opened"
	TypeHuntClosed  = "hunt_closed"
	TypeRecalibrate = "priors_recalibrated"
	TypeEmergency   = "emergency_stop"
)

// Publisher emits engine events to kafka. Publishing is fire-and-forget and
// best-effort: a broker outage warns and drops, it never slows a cycle. A nil
// Publisher is a valid no-op so callers wire it unconditionally.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher builds a kafka publisher, or returns nil when no brokers are
// configured.
func NewPublisher(brokers []string, topic string) *Publisher {
	if len(brokers) == 0 {
		return nil
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        true,
			ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
				log.Warn().Msgf("kafka: "+msg, args...)
			}),
		},
	}
}

func (p *Publisher) publish(ctx context.Context, key string, event Event) {
	if p == nil {
		return
	}
	event.Timestamp = time.Now()
	payload, err := json.Marshal(event)
	if err != nil {
		log.Warn().Err(err).Str("type", event.Type).Msg("event marshal failed")
		return
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: payload,
	})
	if err != nil {
		log.Warn().Err(err).Str("type", event.Type).Msg("event publish failed")
	}
}

// HuntOpened announces a newly opened hunt, keyed by symbol.
func (p *Publisher) HuntOpened(ctx context.Context, cycle int64, hunt domain.ActiveHunt) {
	p.publish(ctx, hunt.Opportunity.Symbol, Event{
		Type: TypeHuntOpened, Cycle: cycle, Payload: hunt,
	})
}

// HuntClosed announces a closed hunt and its outcome, keyed by symbol.
func (p *Publisher) HuntClosed(ctx context.Context, cycle int64, result domain.HuntResult) {
	p.publish(ctx, result.Symbol, Event{
		Type: TypeHuntClosed, Cycle: cycle, Payload: result,
	})
}

// Recalibrated announces a prior generation advance.
func (p *Publisher) Recalibrated(ctx context.Context, cycle int64, priors domain.Priors) {
	p.publish(ctx, "priors", Event{
		Type: TypeRecalibrate, Cycle: cycle, Payload: priors,
	})
}

// Emergency announces an emergency stop and the force-closed results.
func (p *Publisher) Emergency(ctx context.Context, cycle int64, results []domain.HuntResult) {
	p.publish(ctx, "emergency", Event{
		Type: TypeEmergency, Cycle: cycle, Payload: results,
	})
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}
