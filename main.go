// Package main implements a digest notifier for a Moodle-compatible learning
// platform. It polls the platform's REST web services for recent forum
// activity and unread messages, then emails one digest per affected user.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"moodle-notifier/aggregate"
	"moodle-notifier/config"
	"moodle-notifier/email"
	"moodle-notifier/moodle"
	"moodle-notifier/notify"
	"moodle-notifier/scheduler"
)

func main() {
	configPath := flag.String("config", config.Path(), "path to the YAML config file")
	once := flag.Bool("once", false, "run a single digest cycle and exit, even if digest_time is set")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("Failed to load config",
			"path", *configPath, "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	provider, err := buildProvider(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize mail provider", "provider", cfg.MailProvider, "error", err)
		os.Exit(1)
	}

	client := moodle.New(cfg.MoodleRestURL, cfg.MoodleToken,
		&http.Client{Timeout: 30 * time.Second}, logger).
		WithMessageLimit(cfg.MessageLimit)

	engine := aggregate.New(client, logger).
		WithWindow(time.Duration(cfg.WindowHours) * time.Hour)

	sender := email.New(provider, logger, cfg.Subject)
	runner := notify.New(engine, sender, logger, cfg.ExcludeUserIDs)

	if *once || cfg.DigestTime == "" {
		if err := runner.RunOnce(ctx); err != nil {
			logger.Error("Digest cycle failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := runDaemon(ctx, cfg, runner, logger); err != nil {
		logger.Error("Scheduler failed", "error", err)
		os.Exit(1)
	}
}

// runDaemon runs one digest cycle per day at the configured local time
// until the process receives SIGINT or SIGTERM.
func runDaemon(ctx context.Context, cfg *config.Config, runner *notify.Runner, logger *slog.Logger) error {
	sched, err := scheduler.New(cfg.Timezone)
	if err != nil {
		return err
	}

	if err := sched.Schedule(cfg.DigestTime, func() {
		if err := runner.RunOnce(ctx); err != nil {
			logger.Error("Digest cycle failed", "error", err)
		}
	}); err != nil {
		return err
	}

	sched.Start()
	defer sched.Stop()

	logger.Info("Scheduler started",
		"digest_time", cfg.DigestTime,
		"timezone", cfg.Timezone)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop

	logger.Info("Shutting down", "signal", sig.String())
	return nil
}

func buildProvider(ctx context.Context, cfg *config.Config, logger *slog.Logger) (email.Provider, error) {
	switch cfg.MailProvider {
	case "smtp":
		return email.NewSMTPProvider(cfg.SMTPHost, cfg.SMTPPort,
			cfg.SMTPUsername, cfg.SMTPPassword,
			cfg.FromAddress, cfg.FromName, logger), nil
	case "gmail":
		service, err := initGmailService(ctx)
		if err != nil {
			return nil, err
		}
		return email.NewGmailProvider(service, logger), nil
	case "brevo":
		return email.NewBrevoProvider(cfg.BrevoAPIKey, cfg.FromAddress, cfg.FromName, logger), nil
	case "mock":
		return email.NewMockProvider(logger), nil
	}
	return nil, errors.New("unknown mail provider " + cfg.MailProvider)
}

func initGmailService(ctx context.Context) (*gmail.Service, error) {
	// Explicit credentials take priority over Application Default Credentials.
	if credsJSON := os.Getenv("GOOGLE_CREDENTIALS_JSON"); credsJSON != "" {
		return gmail.NewService(ctx, option.WithCredentialsJSON([]byte(credsJSON)))
	}
	return gmail.NewService(ctx)
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
