package agent

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MeghVyas3132/AI-Interviewer-Saas-sub000/internal/metrics"
)

// Navigation is how the page hosting the session was reached.
type Navigation string

const (
	NavigationNavigate Navigation = "navigate"
	NavigationReload   Navigation = "reload"
)

// FinalizeKind records how a session ended.
type FinalizeKind int

const (
	NotFinalized FinalizeKind = iota
	FinalizedComplete
	FinalizedAbandon
)

func (k FinalizeKind) String() string {
	switch k {
	case FinalizedComplete:
		return "complete"
	case FinalizedAbandon:
		return "abandon"
	default:
		return "none"
	}
}

// ErrAlreadyFinalized is returned when a second finalize call arrives.
var ErrAlreadyFinalized = errors.New("session already finalized")

// SnapshotStore keeps pause snapshots across page loads.
// LoadSnapshot returns nil, nil when no snapshot exists.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, token string, snap PauseSnapshot) error
	LoadSnapshot(ctx context.Context, token string) (*PauseSnapshot, error)
	DeleteSnapshot(ctx context.Context, token string) error
}

// ActiveMarker records that a session is live so a reload can be detected.
type ActiveMarker interface {
	MarkActive(ctx context.Context, token string) error
	IsActive(ctx context.Context, token string) (bool, error)
	ClearActive(ctx context.Context, token string) error
}

// MountResult tells the session how to boot.
type MountResult struct {
	// Restart is set when a reload of a live session was detected and the
	// prior session has been abandoned.
	Restart bool
	// Snapshot is a durable pause snapshot to restore, if any.
	Snapshot *PauseSnapshot
}

// LifecycleConfig holds the lifecycle timeouts.
type LifecycleConfig struct {
	CompleteTimeout time.Duration
	AbandonTimeout  time.Duration
}

// Lifecycle guarantees a session is started once and finalized at most once,
// and owns the pause snapshot.
type Lifecycle struct {
	token     string
	store     Persistence
	snapshots SnapshotStore
	markers   ActiveMarker
	cfg       LifecycleConfig
	log       *zap.Logger

	mu        sync.Mutex
	started   bool
	startedAt time.Time
	snapshot  *PauseSnapshot
	finalized FinalizeKind

	inflight sync.WaitGroup
}

// NewLifecycle builds a lifecycle manager. snapshots and markers may be nil.
func NewLifecycle(token string, store Persistence, snapshots SnapshotStore, markers ActiveMarker, cfg LifecycleConfig, log *zap.Logger) *Lifecycle {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.CompleteTimeout <= 0 {
		cfg.CompleteTimeout = 10 * time.Second
	}
	if cfg.AbandonTimeout <= 0 {
		cfg.AbandonTimeout = 10 * time.Second
	}
	return &Lifecycle{token: token, store: store, snapshots: snapshots, markers: markers, cfg: cfg, log: log.With(zap.String("token", token))}
}

// Mount runs on page load. A reload of a session that is still marked active
// abandons the prior session and asks the caller to restart; otherwise a
// durable pause snapshot, if present, is handed back for restoration.
func (l *Lifecycle) Mount(ctx context.Context, nav Navigation) (MountResult, error) {
	if l.markers != nil && nav == NavigationReload {
		active, err := l.markers.IsActive(ctx, l.token)
		if err != nil {
			l.log.Warn("lifecycle: read active marker", zap.Error(err))
		} else if active {
			l.log.Info("lifecycle: reload of a live session, abandoning")
			l.Abandon(Results{Reason: "reload"})
			return MountResult{Restart: true}, nil
		}
	}
	if l.snapshots == nil {
		return MountResult{}, nil
	}
	snap, err := l.snapshots.LoadSnapshot(ctx, l.token)
	if err != nil {
		l.log.Warn("lifecycle: load snapshot", zap.Error(err))
		return MountResult{}, nil
	}
	if snap != nil {
		l.mu.Lock()
		l.started = true
		l.snapshot = snap
		l.mu.Unlock()
	}
	return MountResult{Snapshot: snap}, nil
}

// Start marks the session in progress. Calling it again is a no-op.
func (l *Lifecycle) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	at, err := l.store.StartSession(ctx, l.token)
	if err != nil {
		return err
	}
	l.mu.Lock()
	if !l.started {
		l.started = true
		l.startedAt = at
	}
	l.mu.Unlock()
	l.markActive(ctx)
	return nil
}

func (l *Lifecycle) StartedAt() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.startedAt
}

// hold stores the in-memory snapshot. Safe to call under the session lock.
func (l *Lifecycle) hold(snap PauseSnapshot) {
	l.mu.Lock()
	l.snapshot = &snap
	l.mu.Unlock()
}

// take removes and returns the in-memory snapshot.
func (l *Lifecycle) take() (PauseSnapshot, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.snapshot == nil {
		return PauseSnapshot{}, false
	}
	snap := *l.snapshot
	l.snapshot = nil
	return snap, true
}

// HasSnapshot reports whether a pause snapshot is held.
func (l *Lifecycle) HasSnapshot() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshot != nil
}

// persistPause writes the snapshot durably and clears the active marker so a
// later reload resumes instead of restarting.
func (l *Lifecycle) persistPause(ctx context.Context, snap PauseSnapshot) {
	if l.snapshots != nil {
		if err := l.snapshots.SaveSnapshot(ctx, l.token, snap); err != nil {
			l.log.Warn("lifecycle: save snapshot", zap.Error(err))
		}
	}
	if l.markers != nil {
		if err := l.markers.ClearActive(ctx, l.token); err != nil {
			l.log.Warn("lifecycle: clear active marker", zap.Error(err))
		}
	}
}

// persistResume drops the durable snapshot and marks the session live again.
func (l *Lifecycle) persistResume(ctx context.Context) {
	if l.snapshots != nil {
		if err := l.snapshots.DeleteSnapshot(ctx, l.token); err != nil {
			l.log.Warn("lifecycle: delete snapshot", zap.Error(err))
		}
	}
	l.markActive(ctx)
}

func (l *Lifecycle) markActive(ctx context.Context) {
	if l.markers == nil {
		return
	}
	if err := l.markers.MarkActive(ctx, l.token); err != nil {
		l.log.Warn("lifecycle: set active marker", zap.Error(err))
	}
}

func (l *Lifecycle) claim(kind FinalizeKind) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.finalized != NotFinalized {
		return false
	}
	l.finalized = kind
	l.snapshot = nil
	return true
}

// Finalized reports how the session ended, if it has.
func (l *Lifecycle) Finalized() FinalizeKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.finalized
}

// Complete finalizes the session as completed and waits, up to the complete
// timeout, for the store to acknowledge. It returns the server-chosen redirect.
func (l *Lifecycle) Complete(ctx context.Context, results Results) (string, error) {
	if !l.claim(FinalizedComplete) {
		return "", ErrAlreadyFinalized
	}
	metrics.FinalizeCalls.WithLabelValues(FinalizedComplete.String()).Inc()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.cfg.CompleteTimeout)
	defer cancel()
	redirect, err := l.store.CompleteSession(ctx, l.token, results)
	l.cleanup(ctx)
	if err != nil {
		return "", err
	}
	return redirect, nil
}

// Abandon finalizes the session as abandoned without waiting. The write runs
// on a detached context so it survives the caller going away.
func (l *Lifecycle) Abandon(results Results) bool {
	if !l.claim(FinalizedAbandon) {
		return false
	}
	metrics.FinalizeCalls.WithLabelValues(FinalizedAbandon.String()).Inc()
	l.inflight.Add(1)
	go func() {
		defer l.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), l.cfg.AbandonTimeout)
		defer cancel()
		if err := l.store.AbandonSession(ctx, l.token, results); err != nil {
			l.log.Warn("lifecycle: abandon", zap.Error(err))
		}
		l.cleanup(ctx)
	}()
	return true
}

func (l *Lifecycle) cleanup(ctx context.Context) {
	if l.markers != nil {
		if err := l.markers.ClearActive(ctx, l.token); err != nil {
			l.log.Debug("lifecycle: clear active marker", zap.Error(err))
		}
	}
	if l.snapshots != nil {
		if err := l.snapshots.DeleteSnapshot(ctx, l.token); err != nil {
			l.log.Debug("lifecycle: delete snapshot", zap.Error(err))
		}
	}
}

// Wait blocks until background abandon writes have finished.
func (l *Lifecycle) Wait() { l.inflight.Wait() }
