package tts

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Provider is a named remote synthesizer.
type Provider interface {
	Name() string
	Synthesize(ctx context.Context, text, language string) ([]byte, error)
}

// Failover tries each provider in order and returns the first audio produced.
// The combined error is permanent only when every provider failed permanently.
type Failover struct {
	Providers []Provider
	Log       *zap.Logger
}

func NewFailover(log *zap.Logger, providers ...Provider) *Failover {
	if log == nil {
		log = zap.NewNop()
	}
	return &Failover{Providers: providers, Log: log}
}

func (f *Failover) Synthesize(ctx context.Context, text, language string) ([]byte, error) {
	if len(f.Providers) == 0 {
		return nil, permanent("failover", "no providers configured")
	}
	var errs []error
	allPermanent := true
	for _, p := range f.Providers {
		pcm, err := p.Synthesize(ctx, text, language)
		if err == nil && len(pcm) > 0 {
			return pcm, nil
		}
		if err == nil {
			err = errors.New(p.Name() + ": empty audio")
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		f.Log.Warn("tts: provider failed", zap.String("provider", p.Name()), zap.Error(err))
		errs = append(errs, err)
		if !IsPermanent(err) {
			allPermanent = false
		}
	}
	joined := errors.Join(errs...)
	if allPermanent {
		return nil, &PermanentError{Provider: "failover", Err: joined}
	}
	return nil, transientError{joined}
}

// transientError hides permanent errors from individual providers when at
// least one provider may still succeed on retry.
type transientError struct{ error }

func (e transientError) Unwrap() error   { return e.error }
func (e transientError) Permanent() bool { return false }
