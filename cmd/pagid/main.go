// Package main implements pagid, the heartbeat daemon: it ticks the
// heartbeat loop against its own storage path so it never contends with
// the interactive pagi CLI for bbolt's single-writer lock.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"pagi/internal/collab"
	"pagi/internal/config"
	"pagi/internal/heartbeat"
	"pagi/internal/logging"
	"pagi/internal/store"
	"pagi/internal/vault"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "pagid: "+err.Error())
		os.Exit(1)
	}
}

func run() error {
	ws, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getwd: %w", err)
	}

	cfg, err := config.Load(filepath.Join(ws, "pagi.yaml"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logging.Initialize(cfg.Logging.DebugMode, cfg.Logging.JSONFormat, cfg.Logging.Categories); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	log := logging.Get(logging.CategoryBoot)

	daemonPath := cfg.StoragePath + "_daemon"
	if !filepath.IsAbs(daemonPath) {
		daemonPath = filepath.Join(ws, daemonPath)
	}
	if err := os.MkdirAll(filepath.Dir(daemonPath), 0o755); err != nil {
		return fmt.Errorf("prepare daemon storage dir: %w", err)
	}

	v := vault.FromShadowKeyHex(cfg.ShadowKeyHex)
	st, err := store.Open(daemonPath, v)
	if err != nil {
		return fmt.Errorf("open daemon store: %w", err)
	}
	defer st.Close()

	var resp heartbeat.Responder
	if apiKey := os.Getenv("PAGI_GENAI_API_KEY"); apiKey != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		gen, err := collab.NewGenAIGenerator(ctx, apiKey, os.Getenv("PAGI_GENAI_MODEL"))
		if err != nil {
			log.Warnf("genai responder unavailable, heartbeat replies will carry a generation-failure notice: %v", err)
		} else {
			resp = gen
		}
	}

	svc := heartbeat.NewService(st, resp, cfg.TickInterval())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Infof("heartbeat daemon starting, tick=%s, storage=%s", cfg.TickInterval(), daemonPath)
	svc.Run(ctx)
	log.Infof("heartbeat daemon stopped")
	return nil
}
