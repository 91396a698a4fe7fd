package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/harrisonrobin/jarvis/pkg/actions"
	"github.com/harrisonrobin/jarvis/pkg/api"
	"github.com/harrisonrobin/jarvis/pkg/auth"
	"github.com/harrisonrobin/jarvis/pkg/claude"
	"github.com/harrisonrobin/jarvis/pkg/colors"
	"github.com/harrisonrobin/jarvis/pkg/config"
	"github.com/harrisonrobin/jarvis/pkg/conversation"
	"github.com/harrisonrobin/jarvis/pkg/google"
	"github.com/harrisonrobin/jarvis/pkg/index"
	"github.com/harrisonrobin/jarvis/pkg/mcp"
	"github.com/harrisonrobin/jarvis/pkg/overdue"
	"github.com/harrisonrobin/jarvis/pkg/taskstore"
	"github.com/harrisonrobin/jarvis/pkg/voice"
	"github.com/joho/godotenv"
)

const usage = `Usage: jarvis [flags] [serve|mcp]

  serve   run the HTTP API (default)
  mcp     expose the task list as MCP tools on stdio

Flags:
`

func main() {
	// 1. Parse Flags
	calendarName := flag.String("calendar", "", "Google Calendar name to sync with (overrides config)")
	setCalendar := flag.String("set-calendar", "", "Set the default Google Calendar name")
	doAuth := flag.Bool("auth", false, "Authenticate with Google Calendar")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	// 2. Load Configuration (.env, then config file, then environment)
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: could not load .env: %v\n", err)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	log := newLogger(cfg.LogLevel)

	// 3. Handle Set Calendar
	if *setCalendar != "" {
		cfg.Calendar.Name = *setCalendar
		if err := config.Save(cfg); err != nil {
			fatal(log, "error saving config", err)
		}
		fmt.Printf("Default calendar set to: %s\n", *setCalendar)
		return
	}
	if *calendarName != "" {
		cfg.Calendar.Name = *calendarName
	}

	configDir, err := config.Dir()
	if err != nil {
		fatal(log, "could not find path to configuration directory", err)
	}
	authOpts := auth.Options{
		Dir:          configDir,
		ClientID:     cfg.Calendar.ClientID,
		ClientSecret: cfg.Calendar.ClientSecret,
		Logger:       log,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Handle Authentication
	if *doAuth {
		if err := auth.Reset(authOpts); err != nil {
			fatal(log, "could not reset token", err)
		}
		if _, err := auth.GetCalendarService(ctx, authOpts); err != nil {
			fatal(log, "authentication failed", err)
		}
		log.Info("authentication successful", "token", authOpts.TokenPath())
		return
	}

	// 5. Task Store
	backend, err := openBackend(ctx, cfg)
	if err != nil {
		fatal(log, "could not open task storage", err)
	}
	store, err := taskstore.Open(ctx, backend, taskstore.WithLogger(log))
	if err != nil {
		fatal(log, "could not load tasks", err)
	}
	defer store.Close()
	log.Info("tasks loaded", "backend", cfg.Storage.Backend, "count", store.Len())

	// 6. Calendar (optional: needs a token from -auth)
	cal := openCalendar(ctx, cfg, authOpts, log)

	switch flag.Arg(0) {
	case "mcp":
		var mcpCal mcp.Calendar
		if cal != nil {
			mcpCal = cal
		}
		if err := mcp.Serve(mcp.NewServer(store, mcpCal)); err != nil {
			fatal(log, "mcp server stopped", err)
		}
	case "", "serve":
		if err := serve(ctx, cfg, store, cal, log); err != nil {
			fatal(log, "server stopped", err)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func serve(ctx context.Context, cfg *config.Config, store *taskstore.Store, cal *google.CalendarClient, log *slog.Logger) error {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	deps := api.Deps{Tasks: store, Logger: log}

	// Assistant
	if llm, err := claude.NewClient(claude.Config{
		APIKey:      cfg.Claude.APIKey,
		Model:       cfg.Claude.Model,
		BaseURL:     cfg.Claude.BaseURL,
		MaxTokens:   cfg.Claude.MaxTokens,
		Temperature: cfg.Claude.Temperature,
		Timeout:     cfg.Claude.Timeout.Duration,
	}); err != nil {
		log.Warn("assistant disabled", "err", err)
	} else {
		registry := conversation.NewRegistry(sessionFactory(cfg, llm, log),
			conversation.WithIdleTimeout(cfg.Assistant.SessionTimeout.Duration),
			conversation.WithRegistryLogger(log),
		)
		go registry.Run(ctx, time.Minute)
		deps.Sessions = registry
	}

	// Voice
	if audio, recognizer, err := openVoice(cfg, log); err != nil {
		log.Warn("voice disabled", "err", err)
	} else {
		go audio.Run(ctx, cfg.Voice.CleanupInterval.Duration, cfg.Voice.MaxAge.Duration)
		deps.Recognizer = recognizer
		deps.Speaker = audio
		deps.AudioDir = audio.Dir
	}

	if cal != nil {
		go cal.RunOverdueSweep(ctx, cfg.Calendar.OverdueSweep.Duration)
		deps.Calendar = cal
	}

	return api.New(cfg, deps).Run(ctx)
}

func sessionFactory(cfg *config.Config, llm conversation.Model, log *slog.Logger) func() *conversation.Session {
	return func() *conversation.Session {
		opts := []conversation.Option{
			conversation.WithWindow(cfg.Assistant.Window),
			conversation.WithHistoryLimit(cfg.Assistant.HistoryLimit),
			conversation.WithLogger(log),
		}
		if cfg.Assistant.StructuredActions {
			opts = append(opts,
				conversation.WithSystemPrompt(conversation.SystemPrompt+"\n\n"+actions.Directive),
				conversation.WithExtractor(actions.NewStructuredExtractor(actions.NewPhraseExtractor())),
			)
		}
		return conversation.NewSession(llm, opts...)
	}
}

func openVoice(cfg *config.Config, log *slog.Logger) (*voice.AudioStore, *voice.WhisperRecognizer, error) {
	vc := voice.Config{
		APIKey:   cfg.Voice.APIKey,
		BaseURL:  cfg.Voice.BaseURL,
		Language: cfg.Voice.Language,
		Voice:    cfg.Voice.Voice,
		Timeout:  cfg.Voice.Timeout.Duration,
	}
	stt := vc
	stt.Model = cfg.Voice.STTModel
	recognizer, err := voice.NewWhisperRecognizer(stt)
	if err != nil {
		return nil, nil, err
	}
	tts := vc
	tts.Model = cfg.Voice.TTSModel
	synth, err := voice.NewSpeechSynthesizer(tts)
	if err != nil {
		return nil, nil, err
	}
	audio, err := voice.NewAudioStore(cfg.AudioDir(), synth, voice.WithAudioLogger(log))
	if err != nil {
		return nil, nil, err
	}
	return audio, recognizer, nil
}

func openBackend(ctx context.Context, cfg *config.Config) (taskstore.Backend, error) {
	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		return taskstore.OpenSQLite(ctx, cfg.SQLitePath())
	case config.BackendRedis:
		r := cfg.Storage.Redis
		return taskstore.NewRedisBackend(taskstore.RedisConfig{
			Addr:         r.Addr,
			Password:     r.Password,
			DB:           r.DB,
			Key:          r.Key,
			DialTimeout:  r.DialTimeout.Duration,
			ReadTimeout:  r.ReadTimeout.Duration,
			WriteTimeout: r.WriteTimeout.Duration,
		}), nil
	default:
		return taskstore.NewFileBackend(cfg.TasksPath()), nil
	}
}

// openCalendar returns nil when the calendar can't be used; the rest of jarvis
// works without it.
func openCalendar(ctx context.Context, cfg *config.Config, authOpts auth.Options, log *slog.Logger) *google.CalendarClient {
	if _, err := os.Stat(authOpts.TokenPath()); err != nil {
		log.Warn("calendar disabled: not authenticated, run jarvis -auth", "token", authOpts.TokenPath())
		return nil
	}

	palette, err := colors.Default().WithOverrides(cfg.Calendar.Colors)
	if err != nil {
		log.Warn("ignoring calendar colors", "err", err)
		palette = colors.Default()
	}
	opts := []google.Option{
		google.WithTimeZone(cfg.Calendar.TimeZone),
		google.WithPalette(palette),
		google.WithLogger(log),
	}

	evtIndex, err := index.Open(cfg.IndexPath())
	if err != nil {
		log.Warn("failed to initialize event index", "err", err)
	} else {
		opts = append(opts, google.WithIndex(evtIndex))
	}
	sweepTable, err := overdue.Open(cfg.OverduePath())
	if err != nil {
		log.Warn("failed to initialize overdue sweep table", "err", err)
	} else {
		opts = append(opts, google.WithOverdueTable(sweepTable))
	}

	cal, err := google.NewClient(ctx, authOpts, cfg.Calendar.Name, opts...)
	if err != nil {
		log.Error("calendar disabled", "calendar", cfg.Calendar.Name, "err", err)
		return nil
	}
	log.Info("calendar ready", "calendar", cfg.Calendar.Name, "id", cal.CalendarID())
	return cal
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	// stdout belongs to the MCP protocol in mcp mode.
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, "err", err)
	os.Exit(1)
}
