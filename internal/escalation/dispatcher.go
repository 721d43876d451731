package escalation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/caresignal/triage-platform/internal/observability/metrics"
	"github.com/caresignal/triage-platform/internal/triage"
	"github.com/caresignal/triage-platform/pkg/logging"
)

var dispatcherTracer = otel.Tracer("triage/escalation")

// DeliveryChannel sends an escalation payload to one recipient.
// Implementations are channel-agnostic collaborators (email, SMS, pager).
type DeliveryChannel interface {
	Notify(ctx context.Context, recipient Recipient, payload Payload) error
}

// OpsAlerter is invoked when an escalation exhausts every tier without an
// acknowledgment. This is total notification failure for a potentially
// life-threatening event; it must never pass silently.
type OpsAlerter interface {
	HardAlert(ctx context.Context, event Event, payload Payload)
}

// OpsAlertFunc adapts a function to OpsAlerter.
type OpsAlertFunc func(ctx context.Context, event Event, payload Payload)

func (f OpsAlertFunc) HardAlert(ctx context.Context, event Event, payload Payload) {
	f(ctx, event, payload)
}

// AuditStore records terminal escalation outcomes for later review.
type AuditStore interface {
	RecordResolution(ctx context.Context, event Event) error
}

// DispatcherOption customizes dispatcher behavior.
type DispatcherOption func(*Dispatcher)

// WithAuditStore wires terminal-outcome persistence. Optional; audit failures
// are logged and never affect the escalation itself.
func WithAuditStore(store AuditStore) DispatcherOption {
	return func(d *Dispatcher) {
		d.audit = store
	}
}

// DispatcherConfig holds escalation timing and tier layout.
type DispatcherConfig struct {
	// ThresholdLevel: assessments at this urgency level or more severe
	// (numerically lower or equal) create an escalation event.
	ThresholdLevel triage.UrgencyLevel
	AckTimeout     time.Duration
	MaxAttempts    int           // per-recipient delivery attempts
	BaseDelay      time.Duration // base for exponential delivery backoff
	Tiers          map[triage.EscalationPath][][]Role
}

// DefaultDispatcherConfig returns the shipped escalation policy:
// levels 1-2 escalate; doctor consults widen doctor → staff → emergency
// services, emergencies go straight to emergency services then staff.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		ThresholdLevel: triage.LevelDoctor,
		AckTimeout:     2 * time.Minute,
		MaxAttempts:    3,
		BaseDelay:      2 * time.Second,
		Tiers: map[triage.EscalationPath][][]Role{
			triage.PathDoctorConsult: {{RoleDoctor}, {RoleStaff}, {RoleEmergency}},
			triage.PathEmergency:     {{RoleEmergency}, {RoleEmergency, RoleStaff}},
		},
	}
}

type ackMsg struct {
	by string
}

// eventRun is the live, mutable escalation state. The run goroutine is the
// single writer; readers take snapshots under mu.
type eventRun struct {
	mu      sync.Mutex
	event   Event
	payload Payload
	ackCh   chan ackMsg
	done    chan struct{}
}

func (r *eventRun) snapshot() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.event
	out.Recipients = append([]Recipient(nil), r.event.Recipients...)
	return out
}

// Dispatcher owns the escalation notification state machine. One active
// (non-terminal) event exists per assessment; repeated triggers while an
// event is active are no-ops.
type Dispatcher struct {
	cfg       DispatcherConfig
	channel   DeliveryChannel
	directory Directory
	ops       OpsAlerter
	audit     AuditStore
	logger    *logging.Logger
	metrics   *metrics.EscalationMetrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	byAssessment map[uuid.UUID]*eventRun
	byID         map[uuid.UUID]*eventRun
}

// NewDispatcher validates the tier layout and creates a dispatcher.
func NewDispatcher(cfg DispatcherConfig, channel DeliveryChannel, directory Directory, ops OpsAlerter, m *metrics.EscalationMetrics, logger *logging.Logger, opts ...DispatcherOption) (*Dispatcher, error) {
	if channel == nil {
		return nil, fmt.Errorf("escalation: delivery channel is required")
	}
	if directory == nil {
		return nil, fmt.Errorf("escalation: recipient directory is required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = DefaultDispatcherConfig().AckTimeout
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultDispatcherConfig().BaseDelay
	}
	if len(cfg.Tiers) == 0 {
		cfg.Tiers = DefaultDispatcherConfig().Tiers
	}
	for path, tiers := range cfg.Tiers {
		if len(tiers) == 0 {
			return nil, fmt.Errorf("escalation: empty tier list for path %q", path)
		}
		for _, tier := range tiers {
			for _, role := range tier {
				if !KnownRole(role) {
					return nil, fmt.Errorf("%w: %q in path %q", ErrUnknownRole, role, path)
				}
			}
		}
	}
	if logger == nil {
		logger = logging.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		cfg:          cfg,
		channel:      channel,
		directory:    directory,
		ops:          ops,
		logger:       logger,
		metrics:      m,
		ctx:          ctx,
		cancel:       cancel,
		byAssessment: make(map[uuid.UUID]*eventRun),
		byID:         make(map[uuid.UUID]*eventRun),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Trigger creates and starts an escalation event for the assessment if its
// urgency level crosses the configured threshold. Idempotent by assessment
// identity: a repeat trigger while an event is active returns the existing
// event without side effects.
func (d *Dispatcher) Trigger(ctx context.Context, assessment *triage.TriageAssessment) (*Event, error) {
	if assessment == nil {
		return nil, fmt.Errorf("escalation: nil assessment")
	}
	if assessment.Level > d.cfg.ThresholdLevel {
		return nil, nil
	}
	tiers, ok := d.cfg.Tiers[assessment.Path]
	if !ok {
		return nil, fmt.Errorf("escalation: no tiers configured for path %q", assessment.Path)
	}

	_, span := dispatcherTracer.Start(ctx, "escalation.trigger")
	defer span.End()
	span.SetAttributes(
		attribute.String("assessment.id", assessment.ID.String()),
		attribute.Int("assessment.level", int(assessment.Level)),
	)

	d.mu.Lock()
	if existing, ok := d.byAssessment[assessment.ID]; ok {
		snap := existing.snapshot()
		if !snap.State.Terminal() {
			d.mu.Unlock()
			d.logger.Debug("escalation already active, ignoring repeat trigger",
				"assessment_id", assessment.ID)
			return &snap, nil
		}
	}

	summary := fmt.Sprintf("Urgency level %d (%s) triage assessment for patient %s",
		assessment.Level, assessment.Path, assessment.PatientID)
	var topCondition string
	if top := assessment.TopCandidate(); top != nil {
		topCondition = top.Name
		summary = fmt.Sprintf("%s; top condition %s (%.0f%%)", summary, top.Name, top.Probability)
	}

	run := &eventRun{
		event: Event{
			ID:           uuid.New(),
			AssessmentID: assessment.ID,
			PatientID:    assessment.PatientID,
			Level:        assessment.Level,
			Path:         assessment.Path,
			State:        StateCreated,
			CreatedAt:    time.Now(),
		},
		payload: Payload{
			AssessmentID: assessment.ID,
			PatientID:    assessment.PatientID,
			Level:        assessment.Level,
			Path:         assessment.Path,
			TopCondition: topCondition,
			Summary:      summary,
			CreatedAt:    time.Now(),
		},
		ackCh: make(chan ackMsg, 1),
		done:  make(chan struct{}),
	}
	run.payload.EventID = run.event.ID
	d.byAssessment[assessment.ID] = run
	d.byID[run.event.ID] = run
	d.mu.Unlock()

	d.metrics.ObserveEventCreated(int(assessment.Level))
	d.logger.Info("escalation event created",
		"event_id", run.event.ID,
		"assessment_id", assessment.ID,
		"level", assessment.Level,
		"path", assessment.Path,
	)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(run, tiers)
	}()

	snap := run.snapshot()
	return &snap, nil
}

// Acknowledge records a caregiver acknowledgment. Any single ack in the
// active tier resolves the event; acks on terminal events are no-ops.
func (d *Dispatcher) Acknowledge(eventID uuid.UUID, by string) error {
	d.mu.Lock()
	run, ok := d.byID[eventID]
	d.mu.Unlock()
	if !ok {
		return ErrEventNotFound
	}

	run.mu.Lock()
	terminal := run.event.State.Terminal()
	run.mu.Unlock()
	if terminal {
		d.logger.Debug("ack on terminal escalation ignored", "event_id", eventID, "by", by)
		return nil
	}

	select {
	case run.ackCh <- ackMsg{by: by}:
	default:
		// an ack is already queued; one suffices
	}
	return nil
}

// Snapshot returns a copy of the event state for reads by the orchestrator
// or presentation layer. Never exposes the live mutable state.
func (d *Dispatcher) Snapshot(eventID uuid.UUID) (Event, error) {
	d.mu.Lock()
	run, ok := d.byID[eventID]
	d.mu.Unlock()
	if !ok {
		return Event{}, ErrEventNotFound
	}
	return run.snapshot(), nil
}

// ActiveEvent returns the active event for an assessment, if any.
func (d *Dispatcher) ActiveEvent(assessmentID uuid.UUID) (Event, bool) {
	d.mu.Lock()
	run, ok := d.byAssessment[assessmentID]
	d.mu.Unlock()
	if !ok {
		return Event{}, false
	}
	snap := run.snapshot()
	if snap.State.Terminal() {
		return Event{}, false
	}
	return snap, true
}

// Close cancels all in-flight escalations and waits for their goroutines.
func (d *Dispatcher) Close() {
	d.cancel()
	d.wg.Wait()
}

// run drives one event through the state machine. It is the single writer of
// the event's mutable state.
func (d *Dispatcher) run(run *eventRun, tiers [][]Role) {
	defer close(run.done)
	ctx := d.ctx

	for tierIdx := 0; tierIdx < len(tiers); tierIdx++ {
		recipients, err := d.resolveTier(ctx, tiers[tierIdx])
		if err != nil {
			d.logger.Error("tier resolution failed", "error", err,
				"event_id", run.event.ID, "tier", tierIdx)
		}
		if len(recipients) == 0 {
			// nothing deliverable in this tier; widen immediately
			d.setState(run, func(e *Event) {
				e.TierIndex = tierIdx
				e.State = StateEscalating
			})
			continue
		}

		d.setState(run, func(e *Event) {
			e.State = StateDispatching
			e.TierIndex = tierIdx
			e.Attempts++
			e.Recipients = recipients
			e.LastAttemptAt = time.Now()
		})
		d.logger.Info("dispatching escalation tier",
			"event_id", run.event.ID, "tier", tierIdx, "recipients", len(recipients))

		deliverCtx, cancelDeliveries := context.WithCancel(ctx)
		for _, recipient := range recipients {
			d.wg.Add(1)
			go func(r Recipient) {
				defer d.wg.Done()
				d.deliverWithRetry(deliverCtx, r, run.payload)
			}(recipient)
		}

		timer := time.NewTimer(d.cfg.AckTimeout)
		select {
		case ack := <-run.ackCh:
			timer.Stop()
			cancelDeliveries()
			d.setState(run, func(e *Event) {
				e.State = StateAcknowledged
				e.AcknowledgedBy = ack.by
			})
			d.metrics.ObserveEventResolved("acknowledged")
			d.logger.Info("escalation acknowledged",
				"event_id", run.event.ID, "by", ack.by, "tier", tierIdx)
			d.recordResolution(ctx, run.snapshot())
			return
		case <-timer.C:
			cancelDeliveries()
			d.setState(run, func(e *Event) { e.State = StateTimedOut })
			d.logger.Warn("escalation tier timed out",
				"event_id", run.event.ID, "tier", tierIdx)
			d.setState(run, func(e *Event) { e.State = StateEscalating })
		case <-ctx.Done():
			timer.Stop()
			cancelDeliveries()
			return
		}
	}

	d.setState(run, func(e *Event) { e.State = StateExhausted })
	d.metrics.ObserveEventResolved("exhausted")
	snap := run.snapshot()
	d.logger.Error("escalation exhausted: no acknowledgment from any tier",
		"event_id", snap.ID,
		"assessment_id", snap.AssessmentID,
		"patient_id", snap.PatientID,
		"attempts", snap.Attempts,
	)
	if d.ops != nil {
		d.ops.HardAlert(ctx, snap, run.payload)
	}
	d.recordResolution(ctx, snap)
}

func (d *Dispatcher) recordResolution(ctx context.Context, event Event) {
	if d.audit == nil {
		return
	}
	if err := d.audit.RecordResolution(ctx, event); err != nil {
		d.logger.Warn("failed to record escalation resolution", "error", err, "event_id", event.ID)
	}
}

func (d *Dispatcher) resolveTier(ctx context.Context, roles []Role) ([]Recipient, error) {
	var out []Recipient
	seen := make(map[string]bool)
	for _, role := range roles {
		recipients, err := d.directory.Recipients(ctx, role)
		if err != nil {
			return out, fmt.Errorf("escalation: resolve role %q: %w", role, err)
		}
		for _, r := range recipients {
			if !seen[r.ID] {
				seen[r.ID] = true
				out = append(out, r)
			}
		}
	}
	return out, nil
}

// deliverWithRetry attempts delivery to one recipient with bounded
// exponential backoff. Failure is surfaced only after retries are exhausted;
// cancellation stops pending retries immediately.
func (d *Dispatcher) deliverWithRetry(ctx context.Context, recipient Recipient, payload Payload) {
	var lastErr error
	for attempt := 0; attempt < d.cfg.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return
		}
		err := d.channel.Notify(ctx, recipient, payload)
		if err == nil {
			d.metrics.ObserveDelivery(string(recipient.Role), "delivered")
			return
		}
		lastErr = err
		if attempt == d.cfg.MaxAttempts-1 {
			break
		}

		delay := d.cfg.BaseDelay * time.Duration(1<<attempt)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
	d.metrics.ObserveDelivery(string(recipient.Role), "failed")
	d.logger.Error("escalation delivery failed after retries",
		"error", lastErr,
		"recipient_id", recipient.ID,
		"role", recipient.Role,
		"event_id", payload.EventID,
	)
}

func (d *Dispatcher) setState(run *eventRun, mutate func(*Event)) {
	run.mu.Lock()
	mutate(&run.event)
	run.mu.Unlock()
}
