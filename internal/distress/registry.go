package distress

import (
	"context"
	"errors"
	"sync"

	"github.com/caresignal/triage-platform/pkg/logging"
)

// ErrSessionNotFound is returned for operations on unknown sessions.
var ErrSessionNotFound = errors.New("distress: session not found")

// Registry owns the long-lived per-session monitors. Each monitor runs as an
// independent task for the lifetime of its audio session.
type Registry struct {
	cfg      Config
	classify ClassifierFunc
	emit     EmitFunc
	logger   *logging.Logger

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	sessions map[string]*session
	wg       sync.WaitGroup
}

type session struct {
	monitor *Monitor
	cancel  context.CancelFunc
}

// NewRegistry creates a registry; monitors inherit its config and emit func.
func NewRegistry(cfg Config, classify ClassifierFunc, emit EmitFunc, logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		cfg:      cfg,
		classify: classify,
		emit:     emit,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*session),
	}
}

// Open returns the monitor for the session, starting one if needed.
func (r *Registry) Open(sessionID, patientID string) *Monitor {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[sessionID]; ok {
		return s.monitor
	}
	monitor := NewMonitor(sessionID, patientID, r.cfg, r.classify, r.emit, r.logger)
	ctx, cancel := context.WithCancel(r.ctx)
	r.sessions[sessionID] = &session{monitor: monitor, cancel: cancel}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		monitor.Run(ctx)
	}()
	r.logger.Info("distress session opened", "session_id", sessionID, "patient_id", patientID)
	return monitor
}

// Get returns the monitor for an existing session.
func (r *Registry) Get(sessionID string) (*Monitor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.monitor, nil
}

// CloseSession stops the session's monitor and forgets it.
func (r *Registry) CloseSession(sessionID string) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
	}
	r.mu.Unlock()
	if ok {
		s.cancel()
		r.logger.Info("distress session closed", "session_id", sessionID)
	}
}

// Close stops every monitor and waits for them to exit.
func (r *Registry) Close() {
	r.cancel()
	r.wg.Wait()
}
