package distress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/caresignal/triage-platform/internal/triage"
	"github.com/caresignal/triage-platform/pkg/logging"
)

// State is the monitor lifecycle state for one audio session.
type State string

const (
	StateIdle       State = "idle"
	StateListening  State = "listening"
	StateEvaluating State = "evaluating"
	StateTriggered  State = "triggered"
)

// Config holds the tunable distress policy.
type Config struct {
	Window        time.Duration // rolling window duration
	Debounce      time.Duration // sustained high-score duration before confirm
	Cooldown      time.Duration // suppression interval after a confirm
	HighThreshold float64
	LowThreshold  float64
	FrameBuffer   int
}

// DefaultConfig returns the shipped distress policy.
func DefaultConfig() Config {
	return Config{
		Window:        10 * time.Second,
		Debounce:      3 * time.Second,
		Cooldown:      2 * time.Minute,
		HighThreshold: 0.85,
		LowThreshold:  0.55,
		FrameBuffer:   256,
	}
}

// EmitFunc receives confirmed distress signals.
type EmitFunc func(ctx context.Context, signal Signal)

// Status is a read-only view for the presentation layer's distress banner.
type Status struct {
	State         State                   `json:"state"`
	Score         float64                 `json:"score"`
	Decision      triage.DistressDecision `json:"decision"`
	BannerActive  bool                    `json:"banner_active"`
	CooldownUntil time.Time               `json:"cooldown_until,omitzero"`
}

type command int

const (
	cmdDismiss command = iota
	cmdRequestHelp
)

// Monitor runs the per-session distress state machine:
// Idle → Listening → Evaluating → Triggered(cooldown) → Listening.
// A single goroutine owns all mutable state; producers hand frames over a
// bounded buffer and are never blocked (oldest frames are dropped first).
type Monitor struct {
	sessionID string
	patientID string
	cfg       Config
	classify  ClassifierFunc
	emit      EmitFunc
	logger    *logging.Logger

	frames   chan FeatureFrame
	commands chan command

	mu            sync.Mutex
	state         State
	score         float64
	decision      triage.DistressDecision
	window        []FeatureFrame
	aboveSince    time.Time
	cooldownUntil time.Time
	lastFrameAt   time.Time
}

// NewMonitor creates a monitor for one audio session.
func NewMonitor(sessionID, patientID string, cfg Config, classify ClassifierFunc, emit EmitFunc, logger *logging.Logger) *Monitor {
	if cfg.FrameBuffer <= 0 {
		cfg.FrameBuffer = DefaultConfig().FrameBuffer
	}
	if classify == nil {
		classify = MeanEnergyClassifier
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Monitor{
		sessionID: sessionID,
		patientID: patientID,
		cfg:       cfg,
		classify:  classify,
		emit:      emit,
		logger:    logger.With("session_id", sessionID),
		frames:    make(chan FeatureFrame, cfg.FrameBuffer),
		commands:  make(chan command, 8),
		state:     StateIdle,
		decision:  triage.DistressNone,
	}
}

// Offer hands a frame to the monitor without ever blocking the producer.
// When the buffer is full the oldest buffered frame is dropped.
func (m *Monitor) Offer(frame FeatureFrame) error {
	if len(frame.Features) == 0 {
		return fmt.Errorf("%w: empty feature vector", ErrMalformedFrame)
	}
	if frame.At.IsZero() {
		frame.At = time.Now()
	}
	for {
		select {
		case m.frames <- frame:
			return nil
		default:
			select {
			case <-m.frames:
			default:
			}
		}
	}
}

// Dismiss records an "I'm okay" from the user: immediate return to
// Listening and cooldown reset. Accepted asynchronously at any time.
func (m *Monitor) Dismiss() {
	select {
	case m.commands <- cmdDismiss:
	default:
	}
}

// RequestHelp records a "Yes, I need help": a confirmed signal is emitted
// immediately, bypassing debounce.
func (m *Monitor) RequestHelp() {
	select {
	case m.commands <- cmdRequestHelp:
	default:
	}
}

// Run consumes frames and commands until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	m.setState(StateListening)
	for {
		select {
		case <-ctx.Done():
			m.setState(StateIdle)
			return
		case frame := <-m.frames:
			m.processFrame(ctx, frame)
		case cmd := <-m.commands:
			m.handleCommand(ctx, cmd)
		}
	}
}

// Status returns a snapshot for the presentation layer. The banner shows
// whenever the latest decision is possible or confirmed.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		State:         m.state,
		Score:         m.score,
		Decision:      m.decision,
		BannerActive:  m.decision == triage.DistressPossible || m.decision == triage.DistressConfirmed,
		CooldownUntil: m.cooldownUntil,
	}
}

func (m *Monitor) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// processFrame advances the state machine using frame timestamps, so
// debounce and cooldown track the signal's own clock.
func (m *Monitor) processFrame(ctx context.Context, frame FeatureFrame) {
	m.mu.Lock()
	m.lastFrameAt = frame.At
	m.window = append(m.window, frame)
	cutoff := frame.At.Add(-m.cfg.Window)
	trimmed := m.window[:0]
	for _, f := range m.window {
		if !f.At.Before(cutoff) {
			trimmed = append(trimmed, f)
		}
	}
	m.window = trimmed
	window := m.window
	m.state = StateEvaluating
	m.mu.Unlock()

	score := m.classify(window)

	m.mu.Lock()
	m.score = score

	inCooldown := !m.cooldownUntil.IsZero() && frame.At.Before(m.cooldownUntil)
	if m.state == StateTriggered && !inCooldown {
		m.state = StateListening
	}

	switch {
	case score >= m.cfg.HighThreshold:
		if m.aboveSince.IsZero() {
			m.aboveSince = frame.At
		}
		sustained := frame.At.Sub(m.aboveSince) >= m.cfg.Debounce
		if sustained && !inCooldown {
			m.decision = triage.DistressConfirmed
			m.state = StateTriggered
			m.cooldownUntil = frame.At.Add(m.cfg.Cooldown)
			m.aboveSince = time.Time{}
			signal := Signal{
				SessionID: m.sessionID,
				PatientID: m.patientID,
				Score:     score,
				Decision:  triage.DistressConfirmed,
				At:        frame.At,
			}
			m.mu.Unlock()
			m.logger.Warn("distress confirmed", "score", score, "patient_id", m.patientID)
			if m.emit != nil {
				m.emit(ctx, signal)
			}
			return
		}
		if sustained {
			// confirmed again inside cooldown: suppressed, no second signal
			m.decision = triage.DistressConfirmed
		} else {
			m.decision = triage.DistressPossible
		}
	case score >= m.cfg.LowThreshold:
		m.decision = triage.DistressPossible
		m.aboveSince = time.Time{}
		if m.state != StateTriggered {
			m.state = StateListening
		}
	default:
		m.decision = triage.DistressNone
		m.aboveSince = time.Time{}
		if m.state != StateTriggered {
			m.state = StateListening
		}
	}
	m.mu.Unlock()
}

func (m *Monitor) handleCommand(ctx context.Context, cmd command) {
	switch cmd {
	case cmdDismiss:
		m.mu.Lock()
		m.state = StateListening
		m.decision = triage.DistressNone
		m.cooldownUntil = time.Time{}
		m.aboveSince = time.Time{}
		m.mu.Unlock()
		m.logger.Info("distress dismissed by user")
	case cmdRequestHelp:
		m.mu.Lock()
		at := m.lastFrameAt
		if at.IsZero() {
			at = time.Now()
		}
		m.decision = triage.DistressConfirmed
		m.state = StateTriggered
		m.cooldownUntil = at.Add(m.cfg.Cooldown)
		score := m.score
		m.mu.Unlock()
		m.logger.Warn("distress help requested by user", "patient_id", m.patientID)
		if m.emit != nil {
			m.emit(ctx, Signal{
				SessionID: m.sessionID,
				PatientID: m.patientID,
				Score:     score,
				Decision:  triage.DistressConfirmed,
				At:        at,
			})
		}
	}
}
