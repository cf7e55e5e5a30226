package store

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/MeghVyas3132/AI-Interviewer-Saas-sub000/internal/agent"
)

// EndedPublisher announces finalized sessions.
type EndedPublisher interface {
	PublishEnded(ctx context.Context, ev SessionEndedEvent) error
}

// Service is the session backend the orchestrator talks to. The relational
// record is authoritative; transcript, archive and event fan-out are
// best-effort and only logged on failure.
type Service struct {
	Sessions    *SessionRepository
	Transcripts TranscriptStore
	Archive     Archiver
	Events      EndedPublisher
	Log         *zap.Logger
}

var _ agent.Persistence = (*Service)(nil)

func NewService(sessions *SessionRepository, transcripts TranscriptStore, archive Archiver, events EndedPublisher, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{Sessions: sessions, Transcripts: transcripts, Archive: archive, Events: events, Log: log}
}

func (s *Service) StartSession(ctx context.Context, token string) (time.Time, error) {
	return s.Sessions.Start(ctx, token)
}

func (s *Service) CompleteSession(ctx context.Context, token string, results agent.Results) (string, error) {
	redirect, changed, err := s.Sessions.Complete(ctx, token, results)
	if err != nil {
		return "", err
	}
	if changed {
		s.record(ctx, token, StatusCompleted, results)
		s.archive(token, results)
	}
	return redirect, nil
}

func (s *Service) AbandonSession(ctx context.Context, token string, results agent.Results) error {
	changed, err := s.Sessions.Abandon(ctx, token, results)
	if err != nil {
		return err
	}
	if changed {
		s.record(ctx, token, StatusAbandoned, results)
	}
	return nil
}

func (s *Service) record(ctx context.Context, token string, status SessionStatus, results agent.Results) {
	log := s.Log.With(zap.String("token", token), zap.String("status", string(status)))
	if s.Transcripts != nil {
		doc := Transcript{
			Token:        token,
			Status:       status,
			Reason:       results.Reason,
			Turns:        results.Turns,
			Conversation: results.Conversation,
			Summary:      results.Summary,
			Elapsed:      results.ElapsedSeconds,
		}
		if err := s.Transcripts.SaveTranscript(ctx, doc); err != nil {
			log.Warn("store: save transcript", zap.Error(err))
		}
	}
	if s.Events != nil {
		ev := SessionEndedEvent{Token: token, Status: status, Reason: results.Reason, Answered: results.Summary.QuestionsAnswered}
		if err := s.Events.PublishEnded(ctx, ev); err != nil {
			log.Warn("store: publish session ended", zap.Error(err))
		}
	}
}

func (s *Service) archive(token string, results agent.Results) {
	if s.Archive == nil {
		return
	}
	data, err := json.Marshal(results)
	if err != nil {
		s.Log.Warn("store: encode report", zap.Error(err))
		return
	}
	if err := s.Archive.Upload(reportKey(token), "application/json", data); err != nil {
		s.Log.Warn("store: archive report", zap.String("token", token), zap.Error(err))
	}
}
