package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/Manjussha/budgetguard/internal/analytics"
	"github.com/Manjussha/budgetguard/internal/api"
	"github.com/Manjussha/budgetguard/internal/billing"
	"github.com/Manjussha/budgetguard/internal/config"
	"github.com/Manjussha/budgetguard/internal/db"
	"github.com/Manjussha/budgetguard/internal/importer"
	"github.com/Manjussha/budgetguard/internal/limiter"
	"github.com/Manjussha/budgetguard/internal/notify"
	"github.com/Manjussha/budgetguard/internal/platform"
	"github.com/Manjussha/budgetguard/internal/scheduler"
	"github.com/Manjussha/budgetguard/internal/sessions"
	"github.com/Manjussha/budgetguard/internal/telegram"
	"github.com/Manjussha/budgetguard/internal/webhook"
	"github.com/Manjussha/budgetguard/internal/ws"
)

const defaultCheckoutSecret = "change-me-in-production"

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP daemon",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "port",
				Usage:   "Listen port (overrides PORT)",
				EnvVars: []string{"PORT"},
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	log.Printf("BudgetGuard %s starting…", Version)

	// ── 1. Load configuration ────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if p := c.String("port"); p != "" {
		cfg.Port = p
	}
	log.Printf("Config: port=%s workDir=%s file=%q", cfg.Port, cfg.WorkDir, cfg.ConfigFile)
	if cfg.CheckoutSecret == defaultCheckoutSecret {
		log.Println("⚠  CHECKOUT_SECRET is the built-in default. Set it before going to production.")
	}

	// ── 2. Ensure work directories exist ────────────────────────────────────
	for _, dir := range []string{cfg.WorkDir, filepath.Dir(cfg.DBPath)} {
		if err := platform.EnsureDir(dir); err != nil {
			return err
		}
	}

	// ── 3. Open database + migrate ───────────────────────────────────────────
	database, err := db.New(cfg.DBPath)
	if err != nil {
		return err
	}
	defer database.Close()
	if err := database.Migrate(); err != nil {
		return err
	}
	log.Printf("Database ready: %s", cfg.DBPath)

	// Root context, cancelled on shutdown signal.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── 4. Domain services ───────────────────────────────────────────────────
	store := sessions.New(database)
	tracker := analytics.New(database)
	bill, err := billing.New(database, cfg.CheckoutSecret, cfg.PackPriceUSD, cfg.CheckoutTTL)
	if err != nil {
		return err
	}
	imp := importer.New(importer.Options{
		Timeout:      cfg.ImportTimeout,
		MaxBytes:     cfg.ImportMaxBytes,
		AllowedHosts: cfg.ImportAllowedHosts,
	})
	rl := limiter.New(cfg.RateLimitPerMinute)

	// ── 5. WebSocket hub ─────────────────────────────────────────────────────
	hub := ws.NewHub()
	go hub.Run(ctx)

	// ── 6. Telegram bot ──────────────────────────────────────────────────────
	cmdHandler := telegram.NewCommandHandler(database, tracker, store)
	bot, err := telegram.New(cfg.TelegramToken, cfg.TelegramChatID, cmdHandler)
	if err != nil {
		log.Printf("Telegram init error (continuing without Telegram): %v", err)
	}
	if bot != nil {
		go bot.Start(ctx)
		log.Printf("Telegram bot started (chatID=%d)", cfg.TelegramChatID)
	}

	// ── 7. Notify + Webhook dispatchers ─────────────────────────────────────
	webhookDispatcher := webhook.New(database, cfg.WebhookURLs)
	notifier := notify.New(telegramSender(bot), webhookDispatcher)
	notifier.SendTelegram(fmt.Sprintf("BudgetGuard %s started on port %s", Version, cfg.Port))

	// ── 8. Cron scheduler ────────────────────────────────────────────────────
	schedEngine := scheduler.New(database, scheduler.Deps{
		Checkouts:     bill,
		Events:        tracker,
		Notifier:      notifier,
		Limiter:       rl,
		RetentionDays: cfg.EventRetentionDays,
	})
	if err := schedEngine.Start(ctx); err != nil {
		log.Printf("scheduler.Start: %v", err)
	}

	// ── 9. HTTP router ───────────────────────────────────────────────────────
	mux := http.NewServeMux()
	api.SetupRoutes(mux, &api.Deps{
		DB:        database,
		Config:    cfg,
		Sessions:  store,
		Analytics: tracker,
		Importer:  imp,
		Billing:   bill,
		Hub:       hub,
		Notify:    notifier,
		Webhook:   webhookDispatcher,
		Scheduler: schedEngine,
		Version:   Version,
	}, rl)
	mux.Handle("GET /", serveFrontend())

	handler := loggingMiddleware(recoveryMiddleware(mux))

	// ── 10. Start HTTP server ────────────────────────────────────────────────
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received %s, shutting down…", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP shutdown: %v", err)
		}
	}()

	log.Printf("BudgetGuard listening on http://0.0.0.0:%s", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	webhookDispatcher.Wait()
	log.Printf("BudgetGuard stopped.")
	return nil
}

// telegramSender wraps *telegram.Bot to implement notify.Sender.
// Returns nil if bot is nil (Telegram disabled).
func telegramSender(bot *telegram.Bot) notify.Sender {
	if bot == nil {
		return nil
	}
	return bot
}
