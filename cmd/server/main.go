package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chadiek/voicebot/internal/agent"
	"github.com/chadiek/voicebot/internal/barge"
	"github.com/chadiek/voicebot/internal/config"
	"github.com/chadiek/voicebot/internal/httpserver"
	"github.com/chadiek/voicebot/internal/infra/storage"
	"github.com/chadiek/voicebot/internal/llm"
	"github.com/chadiek/voicebot/internal/logging"
	"github.com/chadiek/voicebot/internal/metrics"
	"github.com/chadiek/voicebot/internal/mixer"
	"github.com/chadiek/voicebot/internal/profile"
	"github.com/chadiek/voicebot/internal/telephony"
	"github.com/chadiek/voicebot/internal/transcript"
	"github.com/chadiek/voicebot/internal/transport"
	"github.com/chadiek/voicebot/internal/tts"
)

func main() {
	logging.Init()
	defer func() { _ = logging.Sync() }()

	cfg := config.Load()

	profiles := profile.NewCatalog(cfg.DefaultProfile)
	if cfg.ProfileFile != "" {
		if err := profiles.LoadFile(cfg.ProfileFile); err != nil {
			logging.Errorw("profile file not loaded, using built-in profiles", "path", cfg.ProfileFile, "err", err)
		}
	}

	engine := agent.NewEngine(engineConfig(cfg), profiles, loaders(cfg))
	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	status := engine.Initialize(initCtx)
	cancelInit()
	if status.TotalFailure() {
		logging.Warnw("BOOT WARNING: recognizer, synthesizer and generator all unavailable; every call is transferred to a human")
	}

	sinks, store, archive, closeStore := transcriptSinks(cfg)
	defer closeStore()

	callOpts := transport.Options{
		AuthToken:   cfg.AuthToken,
		SessionRate: cfg.SessionRate,
		EndTimeout:  cfg.LLMTimeout + 5*time.Second,
		SampleRate:  cfg.SampleRate,
	}
	if len(sinks) > 0 {
		callOpts.Sink = sinks
	}
	recorder := callRecorder(cfg, archive)
	if recorder != nil {
		callOpts.OnPhoneCall = func(r *http.Request, callSid string) {
			if err := recorder.Start(r, callSid); err != nil {
				logging.Warnw("call not recorded", "call_sid", callSid, "err", err)
			}
		}
	}
	calls := transport.NewHandler(engine, callOpts)

	deps := httpserver.Deps{
		Engine:    engine,
		Transport: calls,
		Webhook: telephony.Webhook{
			BaseURL:        cfg.PublicBaseURL,
			StreamPath:     "/twilio/media",
			TransferNumber: cfg.TransferNumber,
			Unavailable:    engine.TotalFailure,
		},
		TwilioAuthToken: cfg.TwilioAuthToken,
		Recorder:        recorder,
		Metrics:         metrics.Handler(metrics.NewRegistry()),
	}
	if store != nil {
		deps.Transcripts = store
	}
	srv := httpserver.NewServer(deps)

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           srv.Router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logging.Infow("server listening", "addr", cfg.HTTPAddress)
		serverErrors <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Errorw("server error", "err", err)
		}
	case sig := <-sigChan:
		logging.Infow("shutdown signal received", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logging.Warnw("graceful shutdown failed", "err", err)
		_ = server.Close()
	}
	if err := calls.Shutdown(ctx); err != nil {
		logging.Warnw("calls still open at shutdown", "err", err)
	}
	if err := engine.Shutdown(ctx); err != nil {
		logging.Warnw("engine shutdown", "err", err)
	}
}

func engineConfig(cfg config.Config) agent.Config {
	ec := agent.DefaultConfig()
	ec.Company = cfg.CompanyName
	ec.Stream.SampleRate = cfg.SampleRate
	ec.Stream.Language = cfg.STTLanguage
	ec.Barge = barge.Config{Threshold: cfg.VADThreshold, Grace: cfg.SynthesisGrace}
	ec.Voice = cfg.TTSVoice
	ec.Ambience = cfg.AmbienceType
	ec.AmbienceLevel = cfg.AmbienceLevel
	ec.AmbienceEnabled = cfg.AmbienceEnabled
	ec.SampleRate = cfg.SampleRate
	ec.GenerationTimeout = cfg.LLMTimeout
	return ec
}

// loaders build each capability from config. A provider without
// credentials loads as not configured.
func loaders(cfg config.Config) agent.Loaders {
	return agent.Loaders{
		Recognizer: func(context.Context) (agent.Recognizer, error) {
			switch cfg.STTProvider {
			case "assemblyai":
				if cfg.AssemblyAIKey == "" {
					return nil, nil
				}
				return transcript.NewQueue(transcript.NewAssemblyAIClient(cfg.AssemblyAIKey, cfg.SampleRate), 4), nil
			default:
				if cfg.WhisperURL == "" {
					return nil, nil
				}
				return transcript.NewQueue(transcript.NewWhisperClient(cfg.WhisperURL, cfg.SampleRate), 1), nil
			}
		},
		Synthesizer: func(context.Context) (agent.Synthesizer, error) {
			var provider tts.Provider
			switch cfg.TTSProvider {
			case "elevenlabs":
				if cfg.ElevenLabsKey != "" && cfg.ElevenLabsVoiceID != "" {
					provider = tts.NewElevenLabsClient(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID, cfg.SampleRate)
				}
			default:
				if cfg.DeepgramKey != "" {
					provider = tts.NewDeepgramClient(cfg.DeepgramKey, cfg.DeepgramModel, cfg.SampleRate)
				}
			}
			if provider == nil {
				return nil, nil
			}
			return tts.NewService(provider, cfg.SampleRate, 4), nil
		},
		Generator: func(context.Context) (agent.TurnGenerator, error) {
			if cfg.LLMBaseURL == "" {
				return nil, nil
			}
			return llm.NewClient(llm.Config{
				BaseURL:     cfg.LLMBaseURL,
				APIKey:      cfg.LLMAPIKey,
				Model:       cfg.LLMModel,
				Temperature: cfg.LLMTemperature,
				MaxTokens:   cfg.LLMMaxTokens,
				Timeout:     cfg.LLMTimeout,
			}), nil
		},
		Mixer: func(context.Context) (agent.Mixer, error) {
			if !cfg.AmbienceEnabled {
				return nil, nil
			}
			return mixer.LoadDir(cfg.AmbienceDir, cfg.SampleRate), nil
		},
	}
}

// transcriptSinks wires the configured transcript stores. The Redis sink
// doubles as the read side of /transcripts.
func transcriptSinks(cfg config.Config) (storage.Multi, *storage.RedisSink, *storage.SupabaseArchive, func()) {
	var (
		sinks   storage.Multi
		store   *storage.RedisSink
		archive *storage.SupabaseArchive
	)
	closeStore := func() {}
	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		client, err := storage.OpenRedis(ctx, cfg.RedisURL)
		cancel()
		if err != nil {
			logging.Errorw("redis transcript store unavailable", "err", err)
		} else {
			store = storage.NewRedisSink(client)
			sinks = append(sinks, store)
			closeStore = func() { _ = store.Close() }
		}
	}
	if cfg.SupabaseURL != "" {
		a, err := storage.NewSupabaseArchive(storage.SupabaseConfig{
			URL:            cfg.SupabaseURL,
			ServiceRoleKey: cfg.SupabaseKey,
			Bucket:         cfg.SupabaseBucket,
		})
		if err != nil {
			logging.Errorw("transcript archive unavailable", "err", err)
		} else {
			archive = a
			sinks = append(sinks, a)
		}
	}
	return sinks, store, archive, closeStore
}

func callRecorder(cfg config.Config, archive *storage.SupabaseArchive) *telephony.Recorder {
	if !cfg.RecordCalls {
		return nil
	}
	if archive == nil {
		logging.Warnw("RECORD_CALLS set but no Supabase archive configured - calls are not recorded")
		return nil
	}
	rec, err := telephony.NewRecorder(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.PublicBaseURL, archive)
	if err != nil {
		logging.Warnw("call recording disabled", "err", err)
		return nil
	}
	return rec
}
