package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MeghVyas3132/AI-Interviewer-Saas-sub000/internal/agent"
	"github.com/MeghVyas3132/AI-Interviewer-Saas-sub000/internal/auth"
	"github.com/MeghVyas3132/AI-Interviewer-Saas-sub000/internal/config"
	"github.com/MeghVyas3132/AI-Interviewer-Saas-sub000/internal/httpserver"
	"github.com/MeghVyas3132/AI-Interviewer-Saas-sub000/internal/live"
	"github.com/MeghVyas3132/AI-Interviewer-Saas-sub000/internal/llm"
	_ "github.com/MeghVyas3132/AI-Interviewer-Saas-sub000/internal/llm/gemini"
	"github.com/MeghVyas3132/AI-Interviewer-Saas-sub000/internal/store"
	"github.com/MeghVyas3132/AI-Interviewer-Saas-sub000/internal/transcript"
	"github.com/MeghVyas3132/AI-Interviewer-Saas-sub000/internal/tts"
)

// App holds the wired services of one server process.
type App struct {
	cfg config.Config
	log *zap.Logger

	db    *gorm.DB
	rdb   *redis.Client
	mongo *mongo.Client

	Sessions   *store.SessionRepository
	Candidates *store.Candidates
	Service    *store.Service
	State      *store.RedisState
	Registry   *live.Registry
	Invites    *auth.Invites

	questions agent.QuestionService
	speech    agent.StreamOpener
	remote    agent.Synthesizer
}

// New connects every backing service named in cfg. Optional services that
// are not configured are left out.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	a := &App{cfg: cfg, log: log, Registry: live.NewRegistry()}

	db, err := store.OpenDB(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	a.db = db
	a.Sessions = store.NewSessionRepository(db)
	a.Candidates = &store.Candidates{DB: db}

	var transcripts store.TranscriptStore = store.NewMemoryTranscripts()
	if cfg.MongoURI != "" {
		mc, err := store.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("mongo: %w", err)
		}
		a.mongo = mc
		transcripts = store.NewMongoTranscripts(mc.Database(cfg.MongoDatabase), "")
	} else {
		log.Warn("app: MONGO_URI not set, transcripts kept in memory")
	}

	var events store.EndedPublisher
	if cfg.RedisAddr != "" {
		a.rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := a.rdb.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.State = store.NewRedisState(a.rdb, 0, 0)
		events = a.State
	}

	var archive store.Archiver
	if cfg.SupabaseURL != "" {
		sa, err := store.NewSupabaseArchive(store.SupabaseConfig{URL: cfg.SupabaseURL, ServiceRoleKey: cfg.SupabaseServiceRoleKey, Bucket: cfg.SupabaseBucket})
		if err != nil {
			log.Warn("app: report archive disabled", zap.Error(err))
		} else {
			archive = sa
		}
	}
	a.Service = store.NewService(a.Sessions, transcripts, archive, events, log)

	if cfg.InviteSecret != "" {
		a.Invites = auth.NewInvites(cfg.InviteSecret, cfg.InviteIssuer)
	}

	provider, err := llm.NewProvider(cfg.LLMProvider, llm.Settings{APIKey: cfg.LLMKey(), Model: cfg.LLMModel})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("question provider: %w", err)
	}
	interviewer, err := llm.NewInterviewer(provider, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.questions = interviewer

	if cfg.AssemblyAIKey != "" {
		a.speech = transcript.NewAssemblyAI(cfg.AssemblyAIKey, log)
	}
	var voices []tts.Provider
	if cfg.ElevenLabsKey != "" {
		voices = append(voices, tts.NewElevenLabsClient(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID, log))
	}
	if cfg.DeepgramKey != "" {
		voices = append(voices, tts.NewDeepgramClient(cfg.DeepgramKey, cfg.DeepgramModel, log))
	}
	if len(voices) > 0 {
		a.remote = tts.NewFailover(log, voices...)
	}
	return a, nil
}

// Build creates the session for a socket. Invited sessions require a valid
// invite; its redirect becomes the session's completion target. A session
// that already ended is refused with the page the candidate belongs on.
func (a *App) Build(ctx context.Context, token string, invite *auth.InviteClaims, media live.Media) (*agent.Session, error) {
	// A reload reconnects while the old socket's session may still be
	// finalizing; let it settle so the record below reflects its outcome.
	if prev, ok := a.Registry.Get(token); ok {
		prev.Close()
	}
	rec, err := a.Sessions.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if rec.Invited && invite == nil {
		return nil, live.ErrInviteRequired
	}
	if rec.Status.Ended() {
		return nil, &live.EndedError{Redirect: store.EndedRedirect(rec)}
	}
	if invite != nil && invite.Redirect != "" {
		if err := a.Sessions.SetRedirect(ctx, token, invite.Redirect); err != nil {
			a.log.Warn("app: record invite redirect", zap.Error(err))
		}
	}

	opts := a.Options()
	opts.Token = token
	opts.Invited = rec.Invited
	if a.speech == nil {
		opts.VoiceMode = false
	}

	deps := agent.Deps{
		Questions: a.questions,
		Profiles:  a.Candidates,
		Store:     a.Service,
		Speech:    a.speech,
		Remote:    a.remote,
		Local:     media.Local,
		Player:    media.Player,
		Devices:   media.Devices,
		Proctor:   media.Proctor,
		Hooks:     media.Hooks,
		Logger:    a.log,
	}
	if a.State != nil {
		deps.Markers = a.State
		if a.cfg.PersistPauseSnapshots {
			deps.Snapshots = a.State
		}
	}
	return agent.NewSession(opts, deps), nil
}

// Options returns the session options derived from configuration.
func (a *App) Options() agent.Options {
	opts := agent.DefaultOptions()
	opts.MinQuestionsRequired = a.cfg.MinQuestions
	opts.QuestionLimit = a.cfg.QuestionLimit
	opts.RequireFullscreen = a.cfg.RequireFullscreen
	opts.TerminateOnHidden = a.cfg.TerminateOnHidden
	return opts
}

// Server builds the HTTP server over the wired services.
func (a *App) Server() *httpserver.Server {
	return httpserver.New(httpserver.Deps{
		Sessions: a.Service,
		Registry: a.Registry,
		Live: &live.Handler{
			Build:      a.Build,
			Registry:   a.Registry,
			Invites:    a.Invites,
			ICEServers: a.cfg.ICEServersJSON,
			Log:        a.log,
		},
		Log: a.log,
	})
}

// Sweeper builds the stale-session sweeper.
func (a *App) Sweeper() *store.Sweeper {
	return store.NewSweeper(a.Service, store.SweeperConfig{Schedule: a.cfg.SweepSchedule, MaxAge: a.cfg.SweepMaxAge}, a.log)
}

// Close releases backing connections.
func (a *App) Close() {
	if a.mongo != nil {
		_ = a.mongo.Disconnect(context.Background())
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
