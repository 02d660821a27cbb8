package notify

import (
	"context"
	"log/slog"
	"time"

	"pricewatch/internal/metrics"
	domain "pricewatch/pkg/types"
)

const (
	modeImmediate = "immediate"
	modeDigest    = "digest"

	defaultMaxAttempts = 3
	defaultBackoff     = time.Minute
	defaultBatchLimit  = 200
)

// Store is the dispatcher's slice of the persistence contract.
type Store interface {
	ListUndeliveredEvents(ctx context.Context, kinds []domain.AlertKind, asOf time.Time, limit int) ([]domain.AlertEvent, error)
	MarkEventsDelivered(ctx context.Context, ids []string, at time.Time) error
	RecordDeliveryFailure(ctx context.Context, id string, nextAttempt time.Time, maxAttempts int) (attempts int, capped bool, err error)
	InsertNotificationAttempt(ctx context.Context, a *domain.NotificationAttempt) error
}

// Dispatcher routes alert events to the configured sink. Urgent kinds go
// out one event per send as soon as they exist; the rest accumulate until
// the digest pass batches them per user. Delivery state lives on the event
// row, so a crash between send and ack means a duplicate notification at
// worst, never a lost one.
type Dispatcher struct {
	store Store
	sink  Sink
	log   *slog.Logger
	now   func() time.Time

	immediate   map[domain.AlertKind]bool
	maxAttempts int
	backoff     time.Duration
	batchLimit  int
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.log = l
	}
}

// WithNowFunc overrides the clock used for delivery bookkeeping.
func WithNowFunc(f func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		d.now = f
	}
}

// WithImmediateKinds sets which alert kinds bypass the digest.
func WithImmediateKinds(kinds []domain.AlertKind) DispatcherOption {
	return func(d *Dispatcher) {
		d.immediate = make(map[domain.AlertKind]bool, len(kinds))
		for _, k := range kinds {
			d.immediate[k] = true
		}
	}
}

// WithDeliveryPolicy sets the retry cap and backoff base.
func WithDeliveryPolicy(maxAttempts int, backoff time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if maxAttempts > 0 {
			d.maxAttempts = maxAttempts
		}
		if backoff > 0 {
			d.backoff = backoff
		}
	}
}

// WithBatchLimit caps how many events one dispatch pass loads.
func WithBatchLimit(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.batchLimit = n
		}
	}
}

// NewDispatcher creates a Dispatcher delivering through sink.
func NewDispatcher(s Store, sink Sink, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store: s,
		sink:  sink,
		log:   slog.Default(),
		now:   time.Now,
		immediate: map[domain.AlertKind]bool{
			domain.AlertTargetReached: true,
			domain.AlertBackInStock:   true,
			domain.AlertLowestEver:    true,
		},
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
		batchLimit:  defaultBatchLimit,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DispatchImmediate sends freshly created events of immediate kinds right
// away. Digest kinds are left for the next digest pass. Returns how many
// events were delivered; failures stay undelivered with retry state set.
func (d *Dispatcher) DispatchImmediate(ctx context.Context, events []domain.AlertEvent) int {
	var delivered int
	for i := range events {
		if !d.immediate[events[i].Kind] {
			continue
		}
		if d.attemptOne(ctx, &events[i]) {
			delivered++
		}
	}
	return delivered
}

// RunImmediate retries undelivered immediate-kind events whose next
// attempt is due. It also catches events created just before a crash that
// never saw their first send.
func (d *Dispatcher) RunImmediate(ctx context.Context) (int, error) {
	events, err := d.store.ListUndeliveredEvents(ctx, d.immediateKinds(), d.now(), d.batchLimit)
	if err != nil {
		return 0, err
	}
	var delivered int
	for i := range events {
		if d.attemptOne(ctx, &events[i]) {
			delivered++
		}
	}
	return delivered, nil
}

// RunDigests batches undelivered digest-kind events into one message per
// user. The whole batch is marked delivered together; a failed send
// records a failure on every event in it.
func (d *Dispatcher) RunDigests(ctx context.Context) (int, error) {
	events, err := d.store.ListUndeliveredEvents(ctx, d.digestKinds(), d.now(), d.batchLimit)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	byUser := make(map[string][]domain.AlertEvent)
	var users []string
	for _, ev := range events {
		if _, seen := byUser[ev.UserID]; !seen {
			users = append(users, ev.UserID)
		}
		byUser[ev.UserID] = append(byUser[ev.UserID], ev)
	}

	var delivered int
	for _, userID := range users {
		batch := byUser[userID]
		subject, body := renderDigest(batch)

		sendErr := d.sink.Send(ctx, userID, subject, body)
		d.audit(ctx, nil, userID, modeDigest, len(batch), sendErr)

		if sendErr != nil {
			metrics.NotificationFailuresTotal.WithLabelValues(modeDigest).Inc()
			d.log.Warn("digest delivery failed",
				"user", userID, "events", len(batch), "error", sendErr,
			)
			for i := range batch {
				d.recordFailure(ctx, &batch[i])
			}
			continue
		}

		ids := make([]string, len(batch))
		for i, ev := range batch {
			ids[i] = ev.ID
		}
		if err := d.store.MarkEventsDelivered(ctx, ids, d.now()); err != nil {
			d.log.Error("marking digest delivered failed", "user", userID, "error", err)
			continue
		}
		metrics.NotificationsSentTotal.WithLabelValues(modeDigest).Inc()
		metrics.DigestBatchSize.Observe(float64(len(batch)))
		delivered += len(batch)
	}
	return delivered, nil
}

func (d *Dispatcher) attemptOne(ctx context.Context, ev *domain.AlertEvent) bool {
	sendErr := d.sink.Send(ctx, ev.UserID, subjectFor(ev.Kind), ev.Message)
	d.audit(ctx, &ev.ID, ev.UserID, modeImmediate, 1, sendErr)

	if sendErr != nil {
		metrics.NotificationFailuresTotal.WithLabelValues(modeImmediate).Inc()
		d.log.Warn("notification delivery failed",
			"event", ev.ID, "kind", ev.Kind, "user", ev.UserID,
			"transient", IsTransient(sendErr), "error", sendErr,
		)
		d.recordFailure(ctx, ev)
		return false
	}

	if err := d.store.MarkEventsDelivered(ctx, []string{ev.ID}, d.now()); err != nil {
		d.log.Error("marking event delivered failed", "event", ev.ID, "error", err)
		return false
	}
	metrics.NotificationsSentTotal.WithLabelValues(modeImmediate).Inc()
	return true
}

func (d *Dispatcher) recordFailure(ctx context.Context, ev *domain.AlertEvent) {
	next := d.now().Add(backoffDelay(d.backoff, ev.DeliveryAttempts+1))
	attempts, capped, err := d.store.RecordDeliveryFailure(ctx, ev.ID, next, d.maxAttempts)
	if err != nil {
		d.log.Error("recording delivery failure failed", "event", ev.ID, "error", err)
		return
	}
	if capped {
		d.log.Error("delivery parked after repeated failures",
			"event", ev.ID, "attempts", attempts,
		)
	}
}

func (d *Dispatcher) audit(ctx context.Context, eventID *string, userID, mode string, events int, sendErr error) {
	a := &domain.NotificationAttempt{
		EventID:     eventID,
		UserID:      userID,
		Mode:        mode,
		Events:      events,
		OK:          sendErr == nil,
		AttemptedAt: d.now(),
	}
	if sendErr != nil {
		a.Detail = sendErr.Error()
	}
	if err := d.store.InsertNotificationAttempt(ctx, a); err != nil {
		d.log.Error("recording notification attempt failed", "error", err)
	}
}

func (d *Dispatcher) immediateKinds() []domain.AlertKind {
	var kinds []domain.AlertKind
	for _, k := range alertKindOrder {
		if d.immediate[k] {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

func (d *Dispatcher) digestKinds() []domain.AlertKind {
	var kinds []domain.AlertKind
	for _, k := range alertKindOrder {
		if !d.immediate[k] {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// backoffDelay doubles base per prior failed attempt.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}
