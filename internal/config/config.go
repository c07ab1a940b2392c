package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/chadiek/voicebot/internal/logging"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress string
	LogLevel    string

	LLMBaseURL     string
	LLMAPIKey      string
	LLMModel       string
	LLMTemperature float32
	LLMMaxTokens   int
	LLMTimeout     time.Duration

	STTProvider   string
	WhisperURL    string
	AssemblyAIKey string
	STTLanguage   string
	VADThreshold  float64

	TTSProvider       string
	DeepgramKey       string
	DeepgramModel     string
	ElevenLabsKey     string
	ElevenLabsVoiceID string
	TTSVoice          string
	SampleRate        int
	SynthesisGrace    time.Duration

	AmbienceDir     string
	AmbienceEnabled bool
	AmbienceType    string
	AmbienceLevel   float64

	ProfileFile    string
	DefaultProfile string
	CompanyName    string

	RedisURL        string
	SupabaseURL     string
	SupabaseKey     string
	SupabaseBucket  string
	SessionRate     float64
	ShutdownTimeout time.Duration

	AuthToken        string
	TwilioAccountSID string
	TwilioAuthToken  string
	RecordCalls      bool
	PublicBaseURL   string
	TransferNumber  string
}

// Load reads .env and environment variables and returns Config with sane defaults.
// Missing provider credentials are reported but never fatal: the engine runs degraded.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		logging.Debugw("no .env file loaded", "err", err)
	}

	cfg := Config{
		HTTPAddress: str("HTTP_ADDRESS", ":8080"),
		LogLevel:    str("LOG_LEVEL", "info"),

		LLMBaseURL:     str("LLM_BASE_URL", "http://127.0.0.1:11434/v1"),
		LLMAPIKey:      str("LLM_API_KEY", "ollama"),
		LLMModel:       str("LLM_MODEL", "llama3.1:8b"),
		LLMTemperature: float32(float("LLM_TEMPERATURE", 0.7)),
		LLMMaxTokens:   integer("LLM_MAX_TOKENS", 256),
		LLMTimeout:     duration("LLM_TIMEOUT", 30*time.Second),

		STTProvider:   strings.ToLower(str("STT_PROVIDER", "whisper")),
		WhisperURL:    os.Getenv("WHISPER_URL"),
		AssemblyAIKey: os.Getenv("ASSEMBLYAI_API_KEY"),
		STTLanguage:   str("STT_LANGUAGE", "de"),
		VADThreshold:  float("VAD_THRESHOLD", 0.3),

		TTSProvider:       strings.ToLower(str("TTS_PROVIDER", "deepgram")),
		DeepgramKey:       os.Getenv("DEEPGRAM_API_KEY"),
		DeepgramModel:     str("DEEPGRAM_MODEL", "aura-2-thalia-en"),
		ElevenLabsKey:     os.Getenv("ELEVENLABS_API_KEY"),
		ElevenLabsVoiceID: os.Getenv("ELEVENLABS_VOICE_ID"),
		TTSVoice:          os.Getenv("TTS_VOICE"),
		SampleRate:        integer("SAMPLE_RATE", 16000),
		SynthesisGrace:    duration("SYNTHESIS_GRACE", 50*time.Millisecond),

		AmbienceDir:     str("AMBIENCE_DIR", "data/ambience"),
		AmbienceEnabled: boolean("AMBIENCE_ENABLED", true),
		AmbienceType:    str("AMBIENCE_TYPE", "office"),
		AmbienceLevel:   float("AMBIENCE_LEVEL", 0.08),

		ProfileFile:    os.Getenv("PROFILE_FILE"),
		DefaultProfile: str("DEFAULT_PROFILE", "medical-practice"),
		CompanyName:    os.Getenv("COMPANY_NAME"),

		RedisURL:        os.Getenv("REDIS_URL"),
		SupabaseURL:     os.Getenv("SUPABASE_URL"),
		SupabaseKey:     os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseBucket:  str("SUPABASE_BUCKET", "transcripts"),
		SessionRate:     float("SESSION_RATE", 20),
		ShutdownTimeout: duration("SHUTDOWN_TIMEOUT", 10*time.Second),

		AuthToken:        os.Getenv("AUTH_TOKEN"),
		TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		RecordCalls:      boolean("RECORD_CALLS", false),
		PublicBaseURL:    os.Getenv("PUBLIC_BASE_URL"),
		TransferNumber:   os.Getenv("TRANSFER_NUMBER"),
	}

	switch cfg.STTProvider {
	case "assemblyai":
		if cfg.AssemblyAIKey == "" {
			logging.Warnw("ASSEMBLYAI_API_KEY not set - speech recognition disabled")
		}
	default:
		if cfg.WhisperURL == "" {
			logging.Warnw("WHISPER_URL not set - speech recognition disabled")
		}
	}
	switch cfg.TTSProvider {
	case "elevenlabs":
		if cfg.ElevenLabsKey == "" || cfg.ElevenLabsVoiceID == "" {
			logging.Warnw("ELEVENLABS_API_KEY or ELEVENLABS_VOICE_ID not set - synthesis falls back to silence")
		}
	default:
		if cfg.DeepgramKey == "" {
			logging.Warnw("DEEPGRAM_API_KEY not set - synthesis falls back to silence")
		}
	}

	if cfg.TwilioAuthToken == "" {
		logging.Infow("TWILIO_AUTH_TOKEN not set - phone webhook rejects all requests")
	}

	logging.Infow("config loaded",
		"http_address", cfg.HTTPAddress,
		"llm_base_url", cfg.LLMBaseURL,
		"llm_model", cfg.LLMModel,
		"stt_provider", cfg.STTProvider,
		"tts_provider", cfg.TTSProvider,
		"default_profile", cfg.DefaultProfile,
	)
	return cfg
}

func str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func integer(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logging.Warnw("invalid integer in environment, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func float(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		logging.Warnw("invalid number in environment, using default", "key", key, "value", v, "default", def)
		return def
	}
	return f
}

func boolean(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logging.Warnw("invalid duration in environment, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}
