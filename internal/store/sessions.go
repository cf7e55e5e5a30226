package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MeghVyas3132/AI-Interviewer-Saas-sub000/internal/agent"
)

// ErrSessionNotFound is returned for an unknown session token.
var ErrSessionNotFound = errors.New("interview session not found")

// SessionRepository is the relational record of each session. Every state
// transition is idempotent.
type SessionRepository struct {
	DB  *gorm.DB
	now func() time.Time
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{DB: db, now: time.Now}
}

// Create schedules a session for a candidate.
func (r *SessionRepository) Create(ctx context.Context, s *InterviewSession) error {
	if s.Token == "" {
		return errors.New("token required")
	}
	if s.Status == "" {
		s.Status = StatusPending
	}
	return r.DB.WithContext(ctx).Create(s).Error
}

// Get loads a session by token.
func (r *SessionRepository) Get(ctx context.Context, token string) (*InterviewSession, error) {
	var s InterviewSession
	err := r.DB.WithContext(ctx).Where("token = ?", token).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SetRedirect records where the candidate goes after completing, unless a
// redirect is already set.
func (r *SessionRepository) SetRedirect(ctx context.Context, token, url string) error {
	return r.DB.WithContext(ctx).Model(&InterviewSession{}).
		Where("token = ? AND (redirect_url = '' OR redirect_url IS NULL)", token).
		Update("redirect_url", url).Error
}

// Start moves a pending session to in_progress and returns the start time.
// An already started session keeps its original start time.
func (r *SessionRepository) Start(ctx context.Context, token string) (time.Time, error) {
	var startedAt time.Time
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var s InterviewSession
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("token = ?", token).First(&s).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSessionNotFound
		}
		if err != nil {
			return err
		}
		if s.StartedAt != nil {
			startedAt = *s.StartedAt
			return nil
		}
		now := r.now().UTC()
		startedAt = now
		updates := map[string]any{"started_at": now}
		if s.Status == StatusPending {
			updates["status"] = StatusInProgress
		}
		return tx.Model(&s).Updates(updates).Error
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("start session: %w", err)
	}
	return startedAt, nil
}

// Complete marks the session completed and returns where the candidate goes
// next. A session that already ended, completed or abandoned, keeps its
// record: the same redirect comes back and changed is false.
func (r *SessionRepository) Complete(ctx context.Context, token string, results agent.Results) (redirect string, changed bool, err error) {
	err = r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var s InterviewSession
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("token = ?", token).First(&s).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSessionNotFound
		}
		if err != nil {
			return err
		}
		redirect = redirectFor(&s)
		if s.Status.Ended() {
			return nil
		}
		changed = true
		updates := resultColumns(results)
		updates["status"] = StatusCompleted
		updates["ended_at"] = r.now().UTC()
		updates["end_reason"] = results.Reason
		return tx.Model(&s).Updates(updates).Error
	})
	if err != nil {
		return "", false, fmt.Errorf("complete session: %w", err)
	}
	return redirect, changed, nil
}

// Abandon marks the session abandoned. A completed session is never
// downgraded; a repeated abandon only refreshes the recorded turns when more
// of them arrived.
func (r *SessionRepository) Abandon(ctx context.Context, token string, results agent.Results) (bool, error) {
	var changed bool
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var s InterviewSession
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("token = ?", token).First(&s).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSessionNotFound
		}
		if err != nil {
			return err
		}
		switch s.Status {
		case StatusCompleted:
			return nil
		case StatusAbandoned:
			if len(results.Turns) <= s.TurnCount {
				return nil
			}
			changed = true
			return tx.Model(&s).Updates(resultColumns(results)).Error
		}
		changed = true
		updates := resultColumns(results)
		updates["status"] = StatusAbandoned
		updates["ended_at"] = r.now().UTC()
		updates["end_reason"] = results.Reason
		return tx.Model(&s).Updates(updates).Error
	})
	if err != nil {
		return false, fmt.Errorf("abandon session: %w", err)
	}
	return changed, nil
}

// Stale lists sessions still in progress that started before cutoff.
func (r *SessionRepository) Stale(ctx context.Context, cutoff time.Time) ([]InterviewSession, error) {
	var out []InterviewSession
	err := r.DB.WithContext(ctx).
		Where("status = ? AND started_at < ?", StatusInProgress, cutoff).
		Order("started_at ASC").
		Find(&out).Error
	return out, err
}

// EndedRedirect is where a new connection for a finished session is sent:
// the session's own completion target when it completed, otherwise the
// acknowledgment page for invited sessions and a fresh start for the rest.
func EndedRedirect(s *InterviewSession) string {
	if s.Status == StatusCompleted {
		return redirectFor(s)
	}
	if s.Invited {
		return agent.RedirectAcknowledgment
	}
	return agent.RedirectRestart
}

func redirectFor(s *InterviewSession) string {
	if s.RedirectURL != "" {
		return s.RedirectURL
	}
	if s.Invited {
		return agent.RedirectAcknowledgment
	}
	return agent.RedirectResults
}

func resultColumns(results agent.Results) map[string]any {
	return map[string]any{
		"questions_answered": results.Summary.QuestionsAnswered,
		"turn_count":         len(results.Turns),
		"elapsed_seconds":    results.ElapsedSeconds,
		"overall_score":      results.Summary.AverageOverall,
		"technical_score":    results.Summary.AverageTechnical,
		"communication":      results.Summary.AverageCommunication,
		"confidence":         results.Summary.AverageConfidence,
	}
}
