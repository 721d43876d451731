package escalation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/caresignal/triage-platform/internal/triage"
)

type fakeChannel struct {
	mu    sync.Mutex
	calls map[string]int
	err   error
}

func (c *fakeChannel) Notify(_ context.Context, r Recipient, _ Payload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = make(map[string]int)
	}
	c.calls[r.ID]++
	return c.err
}

func (c *fakeChannel) count(recipientID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[recipientID]
}

func (c *fakeChannel) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int
	for _, v := range c.calls {
		n += v
	}
	return n
}

type fakeDirectory struct {
	byRole map[Role][]Recipient
}

func (d *fakeDirectory) Recipients(_ context.Context, role Role) ([]Recipient, error) {
	if !KnownRole(role) {
		return nil, ErrUnknownRole
	}
	return d.byRole[role], nil
}

func testDirectory() *fakeDirectory {
	return &fakeDirectory{byRole: map[Role][]Recipient{
		RoleDoctor: {
			{ID: "doc-1", Name: "Dr. A", Role: RoleDoctor, Channel: "email", Address: "a@clinic.test"},
			{ID: "doc-2", Name: "Dr. B", Role: RoleDoctor, Channel: "email", Address: "b@clinic.test"},
		},
		RoleStaff: {
			{ID: "staff-1", Name: "On-call", Role: RoleStaff, Channel: "sms", Address: "+1000"},
		},
		RoleEmergency: {
			{ID: "ems-1", Name: "EMS", Role: RoleEmergency, Channel: "pager", Address: "ems"},
		},
	}}
}

func testDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		ThresholdLevel: triage.LevelDoctor,
		AckTimeout:     40 * time.Millisecond,
		MaxAttempts:    2,
		BaseDelay:      time.Millisecond,
		Tiers: map[triage.EscalationPath][][]Role{
			triage.PathDoctorConsult: {{RoleDoctor}, {RoleStaff}, {RoleEmergency}},
			triage.PathEmergency:     {{RoleEmergency}, {RoleEmergency, RoleStaff}},
		},
	}
}

func assessment(level triage.UrgencyLevel, path triage.EscalationPath) *triage.TriageAssessment {
	return &triage.TriageAssessment{
		ID:        uuid.New(),
		PatientID: "patient-1",
		SessionID: "session-1",
		Level:     level,
		Path:      path,
		Candidates: []triage.ConditionCandidate{
			{Name: "Flu", Probability: 80, Confidence: triage.ConfidenceHigh},
		},
		CreatedAt: time.Now(),
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestTriggerBelowThresholdIsNoop(t *testing.T) {
	channel := &fakeChannel{}
	d, err := NewDispatcher(testDispatcherConfig(), channel, testDirectory(), nil, nil, nil)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	defer d.Close()

	event, err := d.Trigger(context.Background(), assessment(triage.LevelMonitor, triage.PathMonitor))
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if event != nil {
		t.Fatalf("level 3 must not escalate, got event %+v", event)
	}
	if channel.total() != 0 {
		t.Fatalf("no deliveries expected, got %d", channel.total())
	}
}

func TestTriggerIdempotentPerAssessment(t *testing.T) {
	channel := &fakeChannel{}
	d, err := NewDispatcher(testDispatcherConfig(), channel, testDirectory(), nil, nil, nil)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	defer d.Close()

	a := assessment(triage.LevelDoctor, triage.PathDoctorConsult)
	first, err := d.Trigger(context.Background(), a)
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	second, err := d.Trigger(context.Background(), a)
	if err != nil {
		t.Fatalf("repeat trigger: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("repeat trigger created a second event: %s vs %s", first.ID, second.ID)
	}
}

func TestAcknowledgeResolvesAndCancelsRetries(t *testing.T) {
	channel := &fakeChannel{err: errors.New("unreachable")}
	d, err := NewDispatcher(testDispatcherConfig(), channel, testDirectory(), nil, nil, nil)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	defer d.Close()

	event, err := d.Trigger(context.Background(), assessment(triage.LevelDoctor, triage.PathDoctorConsult))
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	waitFor(t, "first delivery attempt", func() bool { return channel.total() > 0 })

	if err := d.Acknowledge(event.ID, "doc-1"); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	waitFor(t, "acknowledged state", func() bool {
		snap, err := d.Snapshot(event.ID)
		return err == nil && snap.State == StateAcknowledged
	})

	snap, _ := d.Snapshot(event.ID)
	if snap.AcknowledgedBy != "doc-1" {
		t.Fatalf("expected ack attribution, got %q", snap.AcknowledgedBy)
	}

	// Retries must stop once acknowledged.
	settled := channel.total()
	time.Sleep(30 * time.Millisecond)
	if channel.total() > settled+len(snap.Recipients) {
		t.Fatalf("deliveries kept retrying after ack: %d -> %d", settled, channel.total())
	}
}

func TestTimeoutWidensTier(t *testing.T) {
	channel := &fakeChannel{}
	d, err := NewDispatcher(testDispatcherConfig(), channel, testDirectory(), nil, nil, nil)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	defer d.Close()

	event, err := d.Trigger(context.Background(), assessment(triage.LevelDoctor, triage.PathDoctorConsult))
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}

	// Neither doctor acknowledges: the staff tier must be dispatched with the
	// attempt count incremented to 2.
	waitFor(t, "tier widening", func() bool {
		snap, err := d.Snapshot(event.ID)
		return err == nil && snap.TierIndex >= 1 && snap.Attempts >= 2
	})
	waitFor(t, "staff delivery", func() bool { return channel.count("staff-1") > 0 })
}

func TestExhaustionIsTerminalAndAlertsOps(t *testing.T) {
	channel := &fakeChannel{}
	var alerted sync.WaitGroup
	alerted.Add(1)
	var alertedEvent Event
	ops := OpsAlertFunc(func(_ context.Context, e Event, _ Payload) {
		alertedEvent = e
		alerted.Done()
	})
	d, err := NewDispatcher(testDispatcherConfig(), channel, testDirectory(), ops, nil, nil)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	defer d.Close()

	event, err := d.Trigger(context.Background(), assessment(triage.LevelEmergency, triage.PathEmergency))
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}

	waitFor(t, "exhaustion", func() bool {
		snap, err := d.Snapshot(event.ID)
		return err == nil && snap.State == StateExhausted
	})
	alerted.Wait()
	if alertedEvent.ID != event.ID {
		t.Fatalf("ops alert carried wrong event: %s", alertedEvent.ID)
	}

	// Acks on terminal events are no-ops: state stays exhausted.
	if err := d.Acknowledge(event.ID, "late-doc"); err != nil {
		t.Fatalf("late ack: %v", err)
	}
	snap, _ := d.Snapshot(event.ID)
	if snap.State != StateExhausted || snap.AcknowledgedBy != "" {
		t.Fatalf("terminal state must be sticky, got %+v", snap)
	}

	// A fresh trigger for the same assessment is allowed once terminal.
	a := assessment(triage.LevelEmergency, triage.PathEmergency)
	a.ID = event.AssessmentID
	fresh, err := d.Trigger(context.Background(), a)
	if err != nil {
		t.Fatalf("re-trigger: %v", err)
	}
	if fresh.ID == event.ID {
		t.Fatal("expected a new event after the previous one terminated")
	}
}

func TestDeliveryRetriesAreBounded(t *testing.T) {
	channel := &fakeChannel{err: errors.New("unreachable")}
	cfg := testDispatcherConfig()
	cfg.Tiers = map[triage.EscalationPath][][]Role{
		triage.PathEmergency: {{RoleEmergency}},
	}
	d, err := NewDispatcher(cfg, channel, testDirectory(), nil, nil, nil)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	defer d.Close()

	event, err := d.Trigger(context.Background(), assessment(triage.LevelEmergency, triage.PathEmergency))
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	waitFor(t, "exhaustion", func() bool {
		snap, err := d.Snapshot(event.ID)
		return err == nil && snap.State == StateExhausted
	})
	if got := channel.count("ems-1"); got > cfg.MaxAttempts {
		t.Fatalf("expected at most %d attempts, got %d", cfg.MaxAttempts, got)
	}
}

func TestDeliveryFailureReportedWithoutTrailingBackoff(t *testing.T) {
	channel := &fakeChannel{err: errors.New("unreachable")}
	cfg := testDispatcherConfig()
	cfg.BaseDelay = 150 * time.Millisecond
	d, err := NewDispatcher(cfg, channel, testDirectory(), nil, nil, nil)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	defer d.Close()

	recipient := testDirectory().byRole[RoleDoctor][0]
	start := time.Now()
	d.deliverWithRetry(context.Background(), recipient, Payload{EventID: uuid.New()})
	elapsed := time.Since(start)

	if got := channel.count(recipient.ID); got != cfg.MaxAttempts {
		t.Fatalf("expected %d attempts, got %d", cfg.MaxAttempts, got)
	}
	// Only one backoff sleep separates the two attempts; sleeping again after
	// the final failure would roughly triple the elapsed time.
	if limit := 2 * cfg.BaseDelay; elapsed >= limit {
		t.Fatalf("delivery failure took %v, expected under %v", elapsed, limit)
	}
}

func TestSnapshotUnknownEvent(t *testing.T) {
	d, err := NewDispatcher(testDispatcherConfig(), &fakeChannel{}, testDirectory(), nil, nil, nil)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	defer d.Close()

	if _, err := d.Snapshot(uuid.New()); !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}
	if err := d.Acknowledge(uuid.New(), "nobody"); !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}
}

func TestNewDispatcherRejectsUnknownTierRole(t *testing.T) {
	cfg := testDispatcherConfig()
	cfg.Tiers = map[triage.EscalationPath][][]Role{
		triage.PathEmergency: {{Role("janitor")}},
	}
	if _, err := NewDispatcher(cfg, &fakeChannel{}, testDirectory(), nil, nil, nil); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
}

func TestActiveEvent(t *testing.T) {
	channel := &fakeChannel{}
	d, err := NewDispatcher(testDispatcherConfig(), channel, testDirectory(), nil, nil, nil)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	defer d.Close()

	a := assessment(triage.LevelDoctor, triage.PathDoctorConsult)
	event, err := d.Trigger(context.Background(), a)
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}

	active, ok := d.ActiveEvent(a.ID)
	if !ok || active.ID != event.ID {
		t.Fatalf("expected active event %s, got %+v ok=%v", event.ID, active, ok)
	}
	if _, ok := d.ActiveEvent(uuid.New()); ok {
		t.Fatal("unknown assessment must have no active event")
	}
}
