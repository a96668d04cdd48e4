package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"engagepilot/internal/approval"
	"engagepilot/internal/bot"
	"engagepilot/internal/capture"
	"engagepilot/internal/config"
	"engagepilot/internal/cooldown"
	"engagepilot/internal/engine"
	"engagepilot/internal/model"
	"engagepilot/internal/reply"
	"engagepilot/internal/safety"
	"engagepilot/internal/scorer"
	"engagepilot/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var generator reply.Generator
	gen, err := reply.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	switch {
	case errors.Is(err, reply.ErrNoAPIKey):
		log.Warn("no OpenAI API key configured, running in like-only mode")
	case err != nil:
		log.Error("create generator", "error", err)
		os.Exit(1)
	default:
		generator = gen
	}

	cooldowns := cooldown.New(store, log)
	if err := cooldowns.Load(ctx); err != nil {
		log.Error("load cooldowns", "error", err)
		os.Exit(1)
	}

	governor := safety.New(store, model.SafetyLimits{
		MaxDailyInteractions:  cfg.Safety.MaxDailyInteractions,
		PauseAfterInteraction: cfg.Safety.PauseAfterInteraction,
		PauseDuration:         cfg.Safety.PauseDuration,
	}, log)
	if err := governor.Load(ctx, time.Now()); err != nil {
		log.Error("load safety state", "error", err)
		os.Exit(1)
	}

	source := capture.NewRSSSource(http.DefaultClient, sourceURLs(ctx, store, log), nil)
	actuator := &capture.LogActuator{Log: log}

	// The broker needs a notifier and the bot needs the broker; the
	// deferred notifier breaks the construction cycle.
	notifier := &deferredNotifier{}
	broker := approval.New(notifier, cfg.ApprovalTimeout, log)

	eng := engine.New(
		source,
		actuator,
		generator,
		broker,
		cooldowns,
		governor,
		scorer.New(scorer.DefaultWeights()),
		store,
		notifier,
		log,
		engine.Options{
			ActionDelay:          cfg.Timing.ActionDelay,
			NotificationInterval: cfg.Timing.NotificationInterval,
			ReplyTone:            cfg.ReplyTone,
		},
	)
	if err := eng.Load(ctx); err != nil {
		log.Error("load processed set", "error", err)
		os.Exit(1)
	}

	b, err := bot.New(cfg.TelegramBotToken, store, cfg, broker, eng, governor, log)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}
	notifier.target = b

	log.Info("starting engagepilot")

	go eng.Run(ctx)

	b.Run(ctx)

	log.Info("engagepilot stopped")
}

// deferredNotifier breaks the construction cycle between the broker (which
// needs a notifier) and the bot (which needs the broker).
type deferredNotifier struct {
	target interface {
		ApprovalRequested(req model.ApprovalRequest)
		Accomplishment(msg string)
	}
}

func (d *deferredNotifier) ApprovalRequested(req model.ApprovalRequest) {
	if d.target != nil {
		d.target.ApprovalRequested(req)
	}
}

func (d *deferredNotifier) Accomplishment(msg string) {
	if d.target != nil {
		d.target.Accomplishment(msg)
	}
}

func sourceURLs(ctx context.Context, store storage.Storage, log *slog.Logger) []string {
	sources, err := store.ListSources(ctx)
	if err != nil {
		log.Error("list sources", "error", err)
		return nil
	}
	var urls []string
	for _, src := range sources {
		if src.IsActive {
			urls = append(urls, src.URL)
		}
	}
	if len(urls) == 0 {
		log.Warn("no active capture sources configured, use /addsource and restart")
	}
	return urls
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
