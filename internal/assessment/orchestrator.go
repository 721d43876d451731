package assessment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/caresignal/triage-platform/internal/distress"
	"github.com/caresignal/triage-platform/internal/escalation"
	"github.com/caresignal/triage-platform/internal/observability/metrics"
	"github.com/caresignal/triage-platform/internal/triage"
	"github.com/caresignal/triage-platform/pkg/logging"
)

var tracer = otel.Tracer("triage/assessment")

// escalationTrigger is the slice of the dispatcher the orchestrator uses.
type escalationTrigger interface {
	Trigger(ctx context.Context, assessment *triage.TriageAssessment) (*escalation.Event, error)
}

// Orchestrator runs the score-classify-recommend pipeline and drives its side
// effects: persistence, the recency cache, and escalation.
type Orchestrator struct {
	scorer      triage.Scorer
	classifier  *triage.Classifier
	recommender triage.Recommender
	store       Store
	recent      *RecentCache
	dispatcher  escalationTrigger
	metrics     *metrics.AssessmentMetrics
	logger      *logging.Logger

	storeRetries int
}

// OrchestratorOption customizes orchestrator behavior.
type OrchestratorOption func(*Orchestrator)

// WithStore wires assessment persistence. Optional: a nil store disables it.
func WithStore(store Store) OrchestratorOption {
	return func(o *Orchestrator) {
		o.store = store
	}
}

// WithRecentCache wires the per-session recency cache used to attach distress
// signals to their triage context.
func WithRecentCache(cache *RecentCache) OrchestratorOption {
	return func(o *Orchestrator) {
		if cache != nil {
			o.recent = cache
		}
	}
}

// WithDispatcher wires the escalation dispatcher.
func WithDispatcher(dispatcher escalationTrigger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.dispatcher = dispatcher
	}
}

// WithMetrics wires assessment metrics.
func WithMetrics(m *metrics.AssessmentMetrics) OrchestratorOption {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithStoreRetries sets how many times a failed save is retried before the
// failure is logged and dropped.
func WithStoreRetries(attempts int) OrchestratorOption {
	return func(o *Orchestrator) {
		if attempts > 0 {
			o.storeRetries = attempts
		}
	}
}

// NewOrchestrator constructs the assessment pipeline.
func NewOrchestrator(scorer triage.Scorer, classifier *triage.Classifier, recommender triage.Recommender, logger *logging.Logger, opts ...OrchestratorOption) *Orchestrator {
	if scorer == nil {
		panic("assessment: scorer cannot be nil")
	}
	if classifier == nil {
		panic("assessment: classifier cannot be nil")
	}
	if recommender == nil {
		panic("assessment: recommender cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	o := &Orchestrator{
		scorer:       scorer,
		classifier:   classifier,
		recommender:  recommender,
		logger:       logger,
		storeRetries: 3,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Check runs one full triage cycle for a symptom report. Validation failures
// return ErrInvalidInput with no side effects; persistence failures are
// logged and never block the result or the escalation.
func (o *Orchestrator) Check(ctx context.Context, report *triage.SymptomReport) (*triage.TriageAssessment, error) {
	ctx, span := tracer.Start(ctx, "assessment.check")
	defer span.End()
	started := time.Now()

	if err := validateReport(report); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if report.ReportedAt.IsZero() {
		report.ReportedAt = time.Now()
	}

	candidates, err := o.scorer.Score(report)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("assessment: scoring failed: %w", err)
	}

	level, path := o.classifier.Classify(candidates, triage.DistressNone)

	assessment := &triage.TriageAssessment{
		ID:               uuid.New(),
		PatientID:        report.PatientID,
		SessionID:        report.SessionID,
		Report:           report,
		Candidates:       candidates,
		Level:            level,
		Path:             path,
		DistressDecision: triage.DistressNone,
		CreatedAt:        time.Now(),
	}

	top := assessment.TopCandidate()
	if top == nil {
		// No condition matched; generic self-care advice.
		top = &triage.ConditionCandidate{Name: "Unspecified symptoms"}
	}
	recs, err := o.recommender.Generate(level, top)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("assessment: recommendation failed: %w", err)
	}
	assessment.Recommendations = recs

	span.SetAttributes(
		attribute.String("assessment.id", assessment.ID.String()),
		attribute.Int("assessment.level", int(level)),
		attribute.String("assessment.path", string(path)),
	)

	o.persist(ctx, assessment)
	o.remember(ctx, assessment)
	o.escalate(ctx, assessment)

	o.metrics.ObserveAssessment(int(level), string(path), "symptom-report")
	o.metrics.ObservePipelineLatency(time.Since(started).Seconds())
	o.logger.Info("assessment completed",
		"assessment_id", assessment.ID,
		"patient_id", assessment.PatientID,
		"level", level,
		"path", path,
		"candidates", len(candidates),
	)
	return assessment, nil
}

// HandleDistress attaches an asynchronous distress signal to the session's
// recent assessment, or synthesizes a minimal emergency assessment when no
// recent triage context exists. Either way a confirmed signal escalates at
// emergency urgency.
func (o *Orchestrator) HandleDistress(ctx context.Context, sig distress.Signal) error {
	ctx, span := tracer.Start(ctx, "assessment.handle_distress")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", sig.SessionID),
		attribute.String("distress.decision", string(sig.Decision)),
	)

	o.metrics.ObserveDistressSignal(string(sig.Decision))
	if sig.Decision != triage.DistressConfirmed {
		o.logger.Debug("ignoring non-confirmed distress signal",
			"session_id", sig.SessionID, "decision", sig.Decision)
		return nil
	}

	recent, err := o.lookupRecent(ctx, sig.SessionID)
	if err != nil {
		o.logger.Warn("recent assessment lookup failed; synthesizing emergency assessment",
			"error", err, "session_id", sig.SessionID)
	}

	var assessment *triage.TriageAssessment
	if recent != nil {
		recent.DistressDecision = triage.DistressConfirmed
		recent.Level, recent.Path = o.classifier.Classify(recent.Candidates, triage.DistressConfirmed)
		assessment = recent
		o.logger.Info("distress signal attached to recent assessment",
			"assessment_id", assessment.ID, "session_id", sig.SessionID, "score", sig.Score)
	} else {
		patientID := sig.PatientID
		if patientID == "" {
			patientID = "unknown:" + sig.SessionID
		}
		assessment = &triage.TriageAssessment{
			ID:               uuid.New(),
			PatientID:        patientID,
			SessionID:        sig.SessionID,
			Level:            triage.LevelEmergency,
			Path:             triage.PathEmergency,
			DistressDecision: triage.DistressConfirmed,
			CreatedAt:        time.Now(),
		}
		o.logger.Warn("distress signal without recent assessment; escalating standalone",
			"assessment_id", assessment.ID, "session_id", sig.SessionID, "score", sig.Score)
	}

	o.persist(ctx, assessment)
	o.remember(ctx, assessment)

	if o.dispatcher != nil {
		if _, err := o.dispatcher.Trigger(ctx, assessment); err != nil {
			span.RecordError(err)
			return fmt.Errorf("assessment: distress escalation failed: %w", err)
		}
	}

	o.metrics.ObserveAssessment(int(assessment.Level), string(assessment.Path), "distress")
	return nil
}

func validateReport(report *triage.SymptomReport) error {
	if report == nil {
		return fmt.Errorf("%w: missing report", triage.ErrInvalidInput)
	}
	if strings.TrimSpace(report.PatientID) == "" {
		return fmt.Errorf("%w: patient_id is required", triage.ErrInvalidInput)
	}
	var symptoms int
	for _, s := range report.Symptoms {
		if strings.TrimSpace(s) != "" {
			symptoms++
		}
	}
	if symptoms == 0 {
		return fmt.Errorf("%w: at least one symptom is required", triage.ErrInvalidInput)
	}
	if report.Age < 0 || report.Age > 130 {
		return fmt.Errorf("%w: age %d out of range", triage.ErrInvalidInput, report.Age)
	}
	return nil
}

// persist saves with bounded retries. Storage is an audit concern; its
// failure must never block a triage result.
func (o *Orchestrator) persist(ctx context.Context, a *triage.TriageAssessment) {
	if o.store == nil {
		return
	}
	var lastErr error
	for attempt := 0; attempt < o.storeRetries; attempt++ {
		if lastErr = o.store.Save(ctx, a); lastErr == nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(attempt+1) * 100 * time.Millisecond):
		}
	}
	o.logger.Error("assessment persistence failed after retries",
		"error", lastErr, "assessment_id", a.ID)
}

func (o *Orchestrator) remember(ctx context.Context, a *triage.TriageAssessment) {
	if err := o.recent.Remember(ctx, a); err != nil {
		o.logger.Warn("failed to cache recent assessment", "error", err, "assessment_id", a.ID)
	}
}

func (o *Orchestrator) lookupRecent(ctx context.Context, sessionID string) (*triage.TriageAssessment, error) {
	return o.recent.Lookup(ctx, sessionID)
}

func (o *Orchestrator) escalate(ctx context.Context, a *triage.TriageAssessment) {
	if o.dispatcher == nil {
		return
	}
	if _, err := o.dispatcher.Trigger(ctx, a); err != nil {
		o.logger.Error("escalation trigger failed", "error", err, "assessment_id", a.ID)
	}
}

var _ distress.SignalHandler = (*Orchestrator)(nil)
