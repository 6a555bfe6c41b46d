package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration. Every provider field is optional:
// a missing key disables the matching capability with a warning instead of
// failing startup, and the value is only consumed at first use.
type Config struct {
	HTTPAddress string

	// Response generation
	OpenAIKey   string
	OpenAIModel string

	// Speech output (primary) and fallback
	TTSVoice      string
	TTSSpeed      float64
	SpeechLang    string
	DeepgramKey   string
	DeepgramModel string

	// Transcription
	AssemblyAIKey string

	// Knowledge base and scenario documents
	KnowledgeBasePath string
	ScenarioPath      string

	// Collected-data delivery
	WebhookURL             string
	SupabaseURL            string
	SupabaseServiceRoleKey string
	SupabaseBucket         string

	// Outbound telephony
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("config: no .env file loaded: %v", err)
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":8080"
	}

	openAIKey := os.Getenv("OPENAI_API_KEY")
	if openAIKey == "" {
		log.Println("Warning: OPENAI_API_KEY not set - using the rule-table responder and no primary TTS")
	}
	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = "gpt-4o"
	}

	voice := os.Getenv("TTS_VOICE")
	if voice == "" {
		voice = "nova"
	}
	speed := 0.95
	if v := os.Getenv("TTS_SPEED"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			speed = f
		} else {
			log.Printf("Warning: invalid TTS_SPEED %q, using %.2f", v, speed)
		}
	}
	lang := os.Getenv("SPEECH_LANG")
	if lang == "" {
		lang = "he-IL"
	}

	deepgramKey := os.Getenv("DEEPGRAM_API_KEY")
	if deepgramKey == "" {
		log.Println("Warning: DEEPGRAM_API_KEY not set - fallback speech channel disabled")
	}

	assemblyAIKey := os.Getenv("ASSEMBLYAI_API_KEY")
	if assemblyAIKey == "" {
		log.Println("Warning: ASSEMBLYAI_API_KEY not set - server-side transcription disabled")
	}

	kbPath := os.Getenv("KNOWLEDGE_BASE_PATH")
	if kbPath == "" {
		kbPath = "natalie-knowledge-base.json"
	}
	scenarioPath := os.Getenv("SCENARIO_PATH")
	if scenarioPath == "" {
		scenarioPath = "scenarios.json"
	}

	log.Printf("config: HTTP_ADDRESS=%s model=%s voice=%s lang=%s", addr, model, voice, lang)
	return Config{
		HTTPAddress:            addr,
		OpenAIKey:              openAIKey,
		OpenAIModel:            model,
		TTSVoice:               voice,
		TTSSpeed:               speed,
		SpeechLang:             lang,
		DeepgramKey:            deepgramKey,
		DeepgramModel:          os.Getenv("DEEPGRAM_MODEL"),
		AssemblyAIKey:          assemblyAIKey,
		KnowledgeBasePath:      kbPath,
		ScenarioPath:           scenarioPath,
		WebhookURL:             os.Getenv("WEBHOOK_URL"),
		SupabaseURL:            os.Getenv("SUPABASE_URL"),
		SupabaseServiceRoleKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseBucket:         getEnv("SUPABASE_BUCKET", "call-data"),
		TwilioAccountSID:       os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:        os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber:       os.Getenv("TWILIO_FROM_NUMBER"),
	}
}

// Public returns the flat settings map served by /api/config. Empty fields
// are omitted; consumers treat every key as optional.
func (c Config) Public() map[string]string {
	m := map[string]string{}
	put := func(k, v string) {
		if v != "" {
			m[k] = v
		}
	}
	put("OPENAI_MODEL", c.OpenAIModel)
	put("TTS_VOICE", c.TTSVoice)
	put("TTS_SPEED", strconv.FormatFloat(c.TTSSpeed, 'f', -1, 64))
	put("SPEECH_LANG", c.SpeechLang)
	put("DEEPGRAM_MODEL", c.DeepgramModel)
	return m
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
