package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/tphakala/audiodevicebuffer/internal/audiocore"
	"github.com/tphakala/audiodevicebuffer/internal/logger"
)

// DefaultQueueSize bounds the number of messages waiting to be published.
const DefaultQueueSize = 64

// message is queued by HandleReport and RecordBoolean and encoded on the
// publishing goroutine.
type message struct {
	report    *audiocore.Report
	sessionID string
	telemetry *TelemetryDTO
}

// Publisher forwards periodic reports and telemetry samples to MQTT. It
// implements audiocore.ReportSink and audiocore.Telemetry; both never block.
type Publisher struct {
	client   Client
	topic    string
	sessions func(audiocore.Direction) string
	queue    chan message
	log      logger.Logger
	warn     rate.Sometimes
	dropped  atomic.Uint64
	sent     atomic.Uint64
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithSessionLookup sets the function used to tag reports with the session
// ID of the direction that produced them.
func WithSessionLookup(f func(audiocore.Direction) string) PublisherOption {
	return func(p *Publisher) { p.sessions = f }
}

// WithQueueSize overrides DefaultQueueSize.
func WithQueueSize(n int) PublisherOption {
	return func(p *Publisher) {
		if n > 0 {
			p.queue = make(chan message, n)
		}
	}
}

// WithPublisherLogger sets the logger.
func WithPublisherLogger(l logger.Logger) PublisherOption {
	return func(p *Publisher) {
		if l != nil {
			p.log = l
		}
	}
}

// NewPublisher creates a publisher writing below topic.
func NewPublisher(client Client, topic string, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		client: client,
		topic:  strings.TrimSuffix(topic, "/"),
		queue:  make(chan message, DefaultQueueSize),
		log:    logger.NewDiscardLogger(),
		warn:   rate.Sometimes{First: 1, Interval: time.Minute},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// HandleReport queues r for publishing.
func (p *Publisher) HandleReport(r audiocore.Report) {
	m := message{report: &r}
	if p.sessions != nil {
		m.sessionID = p.sessions(r.Direction)
	}
	p.enqueue(m)
}

// RecordBoolean queues a telemetry sample for publishing.
func (p *Publisher) RecordBoolean(name string, value bool) {
	p.enqueue(message{telemetry: &TelemetryDTO{Name: name, Value: value, Timestamp: time.Now().UTC()}})
}

func (p *Publisher) enqueue(m message) {
	select {
	case p.queue <- m:
	default:
		p.dropped.Add(1)
	}
}

// Dropped returns the number of messages discarded because the queue was full
// or the broker was unreachable.
func (p *Publisher) Dropped() uint64 { return p.dropped.Load() }

// Sent returns the number of messages published.
func (p *Publisher) Sent() uint64 { return p.sent.Load() }

// ReportTopic returns the topic for reports of direction d.
func (p *Publisher) ReportTopic(d audiocore.Direction) string {
	return p.topic + "/report/" + d.String()
}

// TelemetryTopic returns the topic for the telemetry sample name.
func (p *Publisher) TelemetryTopic(name string) string {
	return p.topic + "/telemetry/" + name
}

// Run publishes queued messages until ctx is cancelled, then disconnects.
func (p *Publisher) Run(ctx context.Context) error {
	defer p.client.Disconnect()

	p.connect(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-p.queue:
			p.publish(ctx, m)
		}
	}
}

func (p *Publisher) connect(ctx context.Context) bool {
	if p.client.IsConnected() {
		return true
	}
	if err := p.client.Connect(ctx); err != nil {
		p.warn.Do(func() {
			p.log.Warn("MQTT connect failed", logger.Error(err))
		})
		return false
	}
	return true
}

func (p *Publisher) publish(ctx context.Context, m message) {
	topic, payload, err := p.encode(m)
	if err != nil {
		p.log.Error("failed to encode MQTT payload", logger.Error(err))
		p.dropped.Add(1)
		return
	}
	if !p.connect(ctx) {
		p.dropped.Add(1)
		return
	}
	if err := p.client.Publish(ctx, topic, payload); err != nil {
		p.dropped.Add(1)
		p.warn.Do(func() {
			p.log.Warn("MQTT publish failed", logger.String("topic", topic), logger.Error(err))
		})
		return
	}
	p.sent.Add(1)
	p.log.Debug("published", logger.String("topic", topic), logger.Int("bytes", len(payload)))
}

func (p *Publisher) encode(m message) (topic string, payload []byte, err error) {
	switch {
	case m.report != nil:
		topic = p.ReportTopic(m.report.Direction)
		payload, err = json.Marshal(NewReportDTO(*m.report, m.sessionID))
	case m.telemetry != nil:
		topic = p.TelemetryTopic(m.telemetry.Name)
		payload, err = json.Marshal(m.telemetry)
	}
	return topic, payload, err
}
