package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/roy2392/natalie-voice-agent-demo/internal/agent"
	"github.com/roy2392/natalie-voice-agent-demo/internal/config"
	"github.com/roy2392/natalie-voice-agent-demo/internal/conversation"
	"github.com/roy2392/natalie-voice-agent-demo/internal/httpserver"
	"github.com/roy2392/natalie-voice-agent-demo/internal/kb"
	"github.com/roy2392/natalie-voice-agent-demo/internal/llm"
	"github.com/roy2392/natalie-voice-agent-demo/internal/realtime"
	"github.com/roy2392/natalie-voice-agent-demo/internal/scenario"
	"github.com/roy2392/natalie-voice-agent-demo/internal/telephony"
	"github.com/roy2392/natalie-voice-agent-demo/internal/transcript"
	"github.com/roy2392/natalie-voice-agent-demo/internal/tts"
	"github.com/roy2392/natalie-voice-agent-demo/internal/webhook"
)

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg := config.Load()

	// Knowledge base and scenario documents; both degrade gracefully.
	knowledge, err := kb.Load(cfg.KnowledgeBasePath)
	if err != nil {
		log.Printf("kb: %v - using the default system prompt", err)
	}
	library, err := scenario.LoadLibrary(cfg.ScenarioPath)
	if err != nil {
		log.Printf("scenario: %v - scripted calls disabled", err)
		library = &scenario.Library{Scenarios: map[string]*scenario.Scenario{}}
	}
	log.Printf("scenario: %d scenarios loaded", len(library.Scenarios))

	// Response generation: hosted chat completions when a key is present,
	// otherwise the built-in Hebrew rule table.
	var generator llm.Generator
	if cfg.OpenAIKey != "" {
		generator = llm.NewOpenAIClient(cfg.OpenAIKey, cfg.OpenAIModel)
	} else {
		generator = llm.NewRuleTable(knowledge)
	}

	// Speech output: primary plus a one-shot fallback channel.
	var primary, fallback tts.Synthesizer
	if cfg.OpenAIKey != "" {
		primary = tts.NewOpenAIClient(cfg.OpenAIKey, cfg.TTSVoice, cfg.TTSSpeed)
	}
	if cfg.DeepgramKey != "" {
		fallback = tts.NewDeepgramFallback(cfg.DeepgramKey, cfg.DeepgramModel, cfg.SpeechLang)
	}

	hub := httpserver.NewHub()
	speech := tts.NewOutput(primary, fallback, hub)

	recognizer := transcript.NewAssemblyAIRecognizer(cfg.AssemblyAIKey)
	history := conversation.NewHistory()

	events := agent.Events{
		OnUser: func(text string) {
			hub.Publish(map[string]string{"type": "user", "text": text})
		},
		OnAssistant: func(text string) {
			hub.Publish(map[string]string{"type": "assistant", "text": text})
		},
		OnStatus: func(state agent.State) {
			hub.Publish(map[string]string{"type": "status", "state": state.String()})
		},
		OnNotice: func(text string) {
			hub.Publish(map[string]string{"type": "notice", "text": text})
		},
	}

	ag := agent.New(recognizer, generator, speech, history, knowledge.SystemPrompt, events, nil)

	// Collected-data delivery: webhook POST plus an optional storage archive.
	sinks := []webhook.Sink{webhook.NewHTTPSink(cfg.WebhookURL)}
	if cfg.SupabaseURL != "" && cfg.SupabaseServiceRoleKey != "" {
		archiver, err := webhook.NewSupabaseArchiver(cfg.SupabaseURL, cfg.SupabaseServiceRoleKey, cfg.SupabaseBucket)
		if err != nil {
			log.Printf("webhook: %v - archive disabled", err)
		} else {
			sinks = append(sinks, archiver)
		}
	}

	flow := scenario.NewEngine(library, scenario.Actions{
		Say:    ag.Say,
		Listen: ag.RequestListen,
		Ended: func(collected map[string]string) {
			hub.Publish(map[string]any{"type": "call_ended", "collected": collected})
		},
		ResetHistory: history.Clear,
	}, webhook.NewDispatcher(sinks...), nil)
	ag.SetFlow(flow)

	var launcher *telephony.Launcher
	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" {
		launcher = telephony.NewLauncher(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber)
	}

	var realtimeFactory func(events realtime.Events) *realtime.Client
	if cfg.OpenAIKey != "" {
		realtimeFactory = func(events realtime.Events) *realtime.Client {
			return realtime.NewClient(cfg.OpenAIKey, knowledge.SystemPrompt(), events)
		}
	}

	srv := httpserver.New(httpserver.Deps{
		Config:     &cfg,
		Agent:      ag,
		Flow:       flow,
		Library:    library,
		Recognizer: recognizer,
		Launcher:   launcher,
		Hub:        hub,
		Realtime:   realtimeFactory,
	})

	runCtx, stopAgent := context.WithCancel(context.Background())
	go ag.Run(runCtx)

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           srv.Echo,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddress)
		serverErrors <- server.ListenAndServe()
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-sigChan:
		log.Printf("shutdown signal received: %v", sig)
	}

	ag.Stop()
	stopAgent()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = server.Close()
	}
}
