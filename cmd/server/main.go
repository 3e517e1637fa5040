// Package main is the entry point for the JS playground server.
//
// main stays small: load configuration, build the long-lived resources
// (logger, database, execution engine, metrics) and hand them to the
// server, which owns and closes them from then on.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/js-playground/internal/config"
	"github.com/sakif/js-playground/internal/executor"
	"github.com/sakif/js-playground/internal/executor/docker"
	"github.com/sakif/js-playground/internal/executor/javascript"
	"github.com/sakif/js-playground/internal/executor/typescript"
	"github.com/sakif/js-playground/internal/metrics"
	sqliteRepo "github.com/sakif/js-playground/internal/repository/sqlite"
	"github.com/sakif/js-playground/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Validate has already checked the level.
	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	if err := run(cfg, logger); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	if cfg.Database.Path != ":memory:" {
		dbDir := filepath.Dir(cfg.Database.Path)
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			return err
		}
	}

	db, err := sqliteRepo.New(cfg.Database.Path)
	if err != nil {
		return err
	}

	m := metrics.New()

	handlers := []executor.Handler{
		javascript.New(javascript.Config{MaxCallStackSize: cfg.Exec.MaxCallStack}, logger),
		typescript.New(),
	}

	// The Docker-backed "node" language is optional: without a daemon the
	// server still runs JavaScript in-process.
	var sandboxes []io.Closer
	if cfg.Docker.Enabled {
		node, err := docker.New(docker.Config{
			Image:       cfg.Docker.Image,
			MemoryLimit: cfg.Docker.MemoryMB * 1024 * 1024,
			CPULimit:    cfg.Docker.CPUs,
			PoolSize:    cfg.Docker.PoolSize,
		}, logger, m)
		if err != nil {
			logger.Warn("Docker executor unavailable; the node language is disabled",
				slog.String("error", err.Error()),
			)
		} else {
			handlers = append(handlers, node)
			sandboxes = append(sandboxes, node)
		}
	}

	engine, err := executor.NewEngine(executor.Config{
		Timeout:        cfg.Exec.Timeout,
		MaxConcurrent:  cfg.Exec.MaxConcurrent,
		MaxOutputBytes: cfg.Exec.MaxOutputBytes,
	}, logger, handlers, executor.WithRecorder(m))
	if err != nil {
		db.Close()
		return err
	}

	if cfg.Auth.SessionSecret == "" {
		secret, err := randomSecret()
		if err != nil {
			db.Close()
			return err
		}
		cfg.Auth.SessionSecret = secret
		logger.Warn("SESSION_SECRET not set; sessions will not survive a restart")
	}

	srv, err := server.New(cfg, server.Deps{
		DB:        db,
		Engine:    engine,
		Metrics:   m,
		Sandboxes: sandboxes,
	}, logger)
	if err != nil {
		for _, c := range sandboxes {
			c.Close()
		}
		db.Close()
		return err
	}

	// Start blocks until SIGINT/SIGTERM.
	return srv.Start()
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
