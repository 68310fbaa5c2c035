// Package ingress bridges NATS event subjects into the engine: it
// decodes inbound payloads and dispatches them to a worker pool so slow
// rule executions never back-pressure the subscription.
package ingress

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/guildflow/engine"
	"github.com/c360/guildflow/errors"
	"github.com/c360/guildflow/metric"
	"github.com/c360/guildflow/pkg/worker"
	"github.com/c360/guildflow/types"
)

const (
	defaultWorkers     = 8
	defaultQueueSize   = 1024
	defaultSubjectBase = "guild.events"
	drainTimeout       = 30 * time.Second
)

// Handler consumes decoded events. The engine satisfies this.
type Handler interface {
	HandleEvent(ctx context.Context, event *types.Event) ([]engine.ExecutionReport, error)
}

// Subscriber delivers raw payloads for a subject. natsclient.Client
// satisfies this.
type Subscriber interface {
	Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error
}

// Ingress subscribes to the event subject tree and feeds the engine
// through a bounded worker pool.
type Ingress struct {
	subscriber Subscriber
	handler    Handler
	pool       *worker.Pool[*types.Event]
	logger     *slog.Logger

	subjectBase string
	workers     int
	queueSize   int
	registry    *metric.MetricsRegistry

	invalidPayloads prometheus.Counter
	droppedEvents   prometheus.Counter

	mu      sync.Mutex
	started bool
}

// Option configures an Ingress.
type Option func(*Ingress)

// WithWorkers sets the worker pool parallelism.
func WithWorkers(n int) Option {
	return func(i *Ingress) { i.workers = n }
}

// WithQueueSize sets the worker pool queue capacity.
func WithQueueSize(n int) Option {
	return func(i *Ingress) { i.queueSize = n }
}

// WithSubjectBase sets the subject tree to subscribe under.
func WithSubjectBase(base string) Option {
	return func(i *Ingress) { i.subjectBase = base }
}

// WithMetricsRegistry enables ingress and pool metrics.
func WithMetricsRegistry(registry *metric.MetricsRegistry) Option {
	return func(i *Ingress) { i.registry = registry }
}

// New creates an ingress over the given subscriber and handler.
func New(subscriber Subscriber, handler Handler, opts ...Option) *Ingress {
	i := &Ingress{
		subscriber:  subscriber,
		handler:     handler,
		logger:      slog.Default().With("component", "ingress"),
		subjectBase: defaultSubjectBase,
		workers:     defaultWorkers,
		queueSize:   defaultQueueSize,
	}
	for _, opt := range opts {
		opt(i)
	}

	var poolOpts []worker.Option[*types.Event]
	if i.registry != nil {
		poolOpts = append(poolOpts, worker.WithMetricsRegistry[*types.Event](i.registry, "guildflow_ingress"))

		i.invalidPayloads = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "guildflow_ingress_invalid_payloads_total",
			Help: "Inbound payloads dropped because they failed to decode.",
		})
		i.droppedEvents = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "guildflow_ingress_dropped_events_total",
			Help: "Decoded events dropped because the work queue was full.",
		})
		i.registry.MustRegister("ingress", i.invalidPayloads, i.droppedEvents)
	}

	i.pool = worker.NewPool(i.workers, i.queueSize, i.process, poolOpts...)
	return i
}

// Start launches the worker pool and subscribes to the event subjects.
func (i *Ingress) Start(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.started {
		return errors.ErrAlreadyStarted
	}

	if err := i.pool.Start(ctx); err != nil {
		return errors.WrapFatal(err, "Ingress", "Start", "start worker pool")
	}

	subject := i.subjectBase + ".>"
	if err := i.subscriber.Subscribe(ctx, subject, i.onMessage); err != nil {
		return errors.WrapTransient(err, "Ingress", "Start", "subscribe to "+subject)
	}

	i.started = true
	i.logger.Info("ingress started", "subject", subject, "workers", i.workers)
	return nil
}

// Stop drains in-flight events.
func (i *Ingress) Stop(_ context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.started {
		return errors.ErrNotStarted
	}
	i.started = false

	if err := i.pool.Stop(drainTimeout); err != nil {
		return errors.WrapTransient(err, "Ingress", "Stop", "drain worker pool")
	}
	i.logger.Info("ingress stopped")
	return nil
}

// onMessage decodes one payload and enqueues it. Undecodable or
// incomplete payloads are dropped and counted, never retried.
func (i *Ingress) onMessage(_ context.Context, data []byte) {
	var event types.Event
	if err := json.Unmarshal(data, &event); err != nil {
		i.countInvalid()
		i.logger.Warn("dropping undecodable event payload", "error", err)
		return
	}
	if event.Kind == "" || event.GuildID == "" {
		i.countInvalid()
		i.logger.Warn("dropping incomplete event payload", "kind", event.Kind, "guild_id", event.GuildID)
		return
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	if err := i.pool.Submit(&event); err != nil {
		if i.droppedEvents != nil {
			i.droppedEvents.Inc()
		}
		i.logger.Error("dropping event, queue full", "kind", event.Kind, "guild_id", event.GuildID, "error", err)
	}
}

func (i *Ingress) countInvalid() {
	if i.invalidPayloads != nil {
		i.invalidPayloads.Inc()
	}
}

// process runs one event through the engine. Only store failures
// propagate as processing errors; everything else is isolated into the
// engine's reports.
func (i *Ingress) process(ctx context.Context, event *types.Event) error {
	reports, err := i.handler.HandleEvent(ctx, event)
	if err != nil {
		i.logger.Error("event processing aborted", "kind", event.Kind, "guild_id", event.GuildID, "error", err)
		return err
	}
	for _, report := range reports {
		if report.Fired {
			i.logger.Debug("rule fired", "rule_id", report.RuleID, "guild_id", event.GuildID)
		}
	}
	return nil
}

// Stats exposes the worker pool counters.
func (i *Ingress) Stats() (submitted, processed, failed, dropped int64) {
	return i.pool.Stats()
}
