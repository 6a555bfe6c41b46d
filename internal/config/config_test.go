package config

import (
	"os"
	"testing"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	os.Setenv("HTTP_ADDRESS", "")
	os.Setenv("OPENAI_MODEL", "")
	os.Setenv("TTS_VOICE", "")
	os.Setenv("SPEECH_LANG", "")
	cfg := Load()
	if cfg.HTTPAddress == "" {
		t.Fatalf("expected default http address")
	}
	if cfg.OpenAIModel == "" {
		t.Fatalf("expected default model id")
	}
	if cfg.TTSVoice == "" {
		t.Fatalf("expected default voice")
	}
	if cfg.SpeechLang != "he-IL" {
		t.Fatalf("expected default language tag, got %q", cfg.SpeechLang)
	}
	if cfg.TTSSpeed != 0.95 {
		t.Fatalf("expected default speed 0.95, got %v", cfg.TTSSpeed)
	}
}

func TestLoad_InvalidSpeedFallsBack(t *testing.T) {
	os.Setenv("TTS_SPEED", "fast")
	defer os.Unsetenv("TTS_SPEED")
	cfg := Load()
	if cfg.TTSSpeed != 0.95 {
		t.Fatalf("expected fallback speed, got %v", cfg.TTSSpeed)
	}
}

func TestPublic_OmitsEmptyFields(t *testing.T) {
	cfg := Config{OpenAIModel: "gpt-4o", TTSSpeed: 0.95}
	m := cfg.Public()
	if m["OPENAI_MODEL"] != "gpt-4o" {
		t.Fatalf("expected model in public map")
	}
	if _, ok := m["DEEPGRAM_MODEL"]; ok {
		t.Fatalf("empty field must be omitted")
	}
}
