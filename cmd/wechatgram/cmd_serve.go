package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/user/wechatgram/internal/config"
	"github.com/user/wechatgram/internal/delivery"
	"github.com/user/wechatgram/internal/gateway"
	"github.com/user/wechatgram/internal/scheduler"
	"github.com/user/wechatgram/internal/state"
	"github.com/user/wechatgram/internal/telegram"
	"github.com/user/wechatgram/internal/webhook"
	"github.com/user/wechatgram/internal/wechat"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the wechatgram daemon",
	RunE:  runServe,
}

// wechatConfig maps the config file onto the client's settings. Empty
// values keep the client defaults.
func wechatConfig(cfg *config.Config) (wechat.Config, error) {
	d, err := cfg.Durations()
	if err != nil {
		return wechat.Config{}, err
	}
	return wechat.Config{
		LoginURL:     cfg.WeChat.LoginURL,
		BaseURL:      cfg.WeChat.BaseURL,
		PushURL:      cfg.WeChat.PushURL,
		FileURL:      cfg.WeChat.FileURL,
		UserAgent:    cfg.WeChat.UserAgent,
		ExtSpam:      cfg.WeChat.ExtSpam,
		RetryLimit:   cfg.WeChat.RetryLimit,
		RetryDelay:   d.RetryDelay,
		PollInterval: d.PollInterval,
		SyncInterval: d.SyncInterval,
		Logger:       slog.Default(),
	}, nil
}

// loadSnapshot reads the persisted state. An unreadable file means a fresh
// login, not a failed start.
func loadSnapshot(store *state.Store) (*wechat.Snapshot, error) {
	snap, err := store.Load()
	if errors.Is(err, state.ErrCorrupt) {
		slog.Warn("ignoring unreadable state file", "path", store.Path(), "error", err)
		return nil, nil
	}
	return snap, err
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if cfg.Telegram.Token == "" || cfg.Telegram.ChatID == 0 {
		return fmt.Errorf("telegram.token and telegram.chat_id are required (run %q)", "wechatgram setup")
	}
	for _, spec := range []string{cfg.State.CheckpointSchedule, cfg.State.RefreshSchedule} {
		if err := scheduler.Validate(spec); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", spec, err)
		}
	}
	wcfg, err := wechatConfig(cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// Write PID file
	pidPath, err := writePIDFile(cfg)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	// Stores
	store := state.NewStore(cfg.DataDir)
	journal := state.NewJournal(cfg.DataDir)

	snap, err := loadSnapshot(store)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	// Adapters
	client, err := wechat.New(wcfg, snap)
	if err != nil {
		return fmt.Errorf("create wechat client: %w", err)
	}
	tg, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, ChatID: cfg.Telegram.ChatID}, client)
	if err != nil {
		return fmt.Errorf("create telegram adapter: %w", err)
	}

	// Delivery registry and gateway
	deliveryReg := delivery.NewRegistry()
	deliveryReg.RegisterAdapter(client)
	deliveryReg.RegisterAdapter(tg)

	gw := gateway.New(deliveryReg, journal, int64(cfg.MaxConcurrent))
	gw.Route(wechat.Name, telegram.Name)
	gw.Route(telegram.Name, wechat.Name)
	gw.Route(webhook.Source, wechat.Name)
	gw.SetNotifier(tg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw.Start(ctx)

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return client.Run(gctx, gw.Handle) })
	group.Go(func() error { return tg.Run(gctx, gw.Handle) })
	done := make(chan error, 1)
	go func() { done <- group.Wait() }()

	slog.Info("wechatgram started",
		"data_dir", cfg.DataDir,
		"log_level", cfg.LogLevel,
		"max_concurrent", cfg.MaxConcurrent,
		"restored_session", snap != nil && snap.Session.Valid,
		"pid_file", pidPath,
	)

	// Scheduler
	sched := scheduler.New(
		scheduler.Checkpoint(cfg.State.CheckpointSchedule, store, client),
		scheduler.Refresh(cfg.State.RefreshSchedule, client),
	)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	slog.Info("scheduler started")

	// Status API
	if cfg.HTTP.Enabled {
		apiSrv := webhook.NewServer(webhook.Options{
			Status:     client,
			Contacts:   client,
			Failures:   journal,
			Dispatcher: gw,
			Jobs:       sched,
		})
		httpServer := &http.Server{
			Addr:    cfg.HTTP.Listen,
			Handler: apiSrv,
		}
		go func() {
			slog.Info("status API started", "listen", cfg.HTTP.Listen)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("status API error", "error", err)
			}
		}()
		go func() {
			<-ctx.Done()
			httpServer.Close()
		}()
	}

	// shutdown stops everything and writes the state exactly once.
	shutdown := func() {
		cancel()
		sched.Stop()
		if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("adapter stopped", "error", err)
		}
		gw.Stop()
		flush(store, client)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		var sig os.Signal
		select {
		case sig = <-sigChan:
		case err := <-done:
			// An adapter gave up on its own; put the result back for shutdown.
			done <- err
			slog.Error("adapter exited, shutting down", "error", err)
			shutdown()
			return err
		}

		if sig == syscall.SIGHUP {
			slog.Info("received SIGHUP, restarting")
			execPath, err := os.Executable()
			if err != nil {
				slog.Error("failed to get executable path", "error", err)
				continue
			}
			shutdown()
			// Clean up PID file before re-exec
			os.Remove(pidPath)
			if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
				slog.Error("failed to re-exec", "error", err)
				return err
			}
		}
		// SIGINT or SIGTERM
		slog.Info("shutting down", "signal", sig)
		shutdown()
		return nil
	}
}

// flush writes the client's session and cookies to disk.
func flush(store *state.Store, client *wechat.Client) {
	snap := client.Snapshot()
	if err := store.Save(snap); err != nil {
		slog.Error("failed to save state", "error", err)
		return
	}
	slog.Info("state saved", "path", store.Path(), "valid", snap.Session.Valid, "cookies", len(snap.Cookies))
}
