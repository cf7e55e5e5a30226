package config

import (
	"testing"
	"time"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	t.Setenv("HTTP_ADDRESS", "")
	t.Setenv("ICE_SERVERS_JSON", "")
	t.Setenv("MIN_QUESTIONS", "")
	t.Setenv("LLM_PROVIDER", "")
	cfg := Load(nil)
	if cfg.HTTPAddress != ":8080" {
		t.Fatalf("expected default http address, got %q", cfg.HTTPAddress)
	}
	if cfg.ICEServersJSON == "" {
		t.Fatalf("expected default ice servers json")
	}
	if cfg.MinQuestions != 8 {
		t.Fatalf("expected default minimum of 8, got %d", cfg.MinQuestions)
	}
	if cfg.LLMProvider != "cerebras" {
		t.Fatalf("expected cerebras default provider, got %q", cfg.LLMProvider)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("MIN_QUESTIONS", "5")
	t.Setenv("QUESTION_LIMIT", "12")
	t.Setenv("REQUIRE_FULLSCREEN", "true")
	t.Setenv("TERMINATE_ON_HIDDEN", "true")
	t.Setenv("SWEEP_MAX_AGE", "45m")
	t.Setenv("LLM_PROVIDER", "Gemini")
	t.Setenv("GEMINI_API_KEY", "g-key")
	cfg := Load(nil)
	if cfg.MinQuestions != 5 || cfg.QuestionLimit != 12 {
		t.Fatalf("unexpected question bounds: %d/%d", cfg.MinQuestions, cfg.QuestionLimit)
	}
	if !cfg.RequireFullscreen || !cfg.TerminateOnHidden {
		t.Fatalf("expected fullscreen and hidden-tab termination on")
	}
	if cfg.SweepMaxAge != 45*time.Minute {
		t.Fatalf("unexpected sweep age %v", cfg.SweepMaxAge)
	}
	if cfg.LLMProvider != "gemini" || cfg.LLMKey() != "g-key" {
		t.Fatalf("unexpected llm selection %q/%q", cfg.LLMProvider, cfg.LLMKey())
	}
}

func TestGetEnvHelpers_FallBackOnGarbage(t *testing.T) {
	t.Setenv("X_INT", "nope")
	t.Setenv("X_BOOL", "maybe")
	t.Setenv("X_DUR", "soon")
	if getEnvInt("X_INT", 3) != 3 || getEnvBool("X_BOOL", true) != true || getEnvDuration("X_DUR", time.Second) != time.Second {
		t.Fatalf("helpers should fall back to defaults on unparsable values")
	}
}
