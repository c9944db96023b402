// Package app orchestrates startup: config, logging, workspace
// directories, the instance lock, and the audit store.
package app

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/DMHCAIT/turteltrader/internal/infra"
	"github.com/DMHCAIT/turteltrader/internal/storage"
)

// Bootstrap orchestrates the application startup sequence.
type Bootstrap struct {
	Config     *infra.Config
	AuditStore *storage.AuditStore
	Snapshots  *storage.SnapshotManager

	unlock func()
}

// NewBootstrap creates a new Bootstrap instance.
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs core system initialization (config, logger,
// directories, lock, audit DB).
func (b *Bootstrap) Initialize() error {
	slog.Info("bootstrapping turtle trader")

	// 1. Load config (dynamic path resolution).
	cfg, err := infra.LoadConfig(infra.ResolveConfigPath())
	if err != nil {
		return err // let main handle the error
	}
	b.Config = cfg

	// 2. Setup logger.
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	// 3. Data isolation: _workspace/data/{mode}/audit.db so a paper run
	// can never pollute a live audit trail.
	mode := strings.ToLower(cfg.Trading.Mode)

	workDir := infra.GetWorkspaceDir()
	dataDir := filepath.Join(workDir, "data", mode)
	snapDir := filepath.Join(workDir, "snapshots", mode)

	if err := infra.EnsureDir(dataDir); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := infra.EnsureDir(snapDir); err != nil {
		return fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	// 3.1 Singleton instance lock. Two engines sharing one capital pool
	// and audit DB would corrupt both.
	unlock, err := infra.CreateLockFile(workDir)
	if err != nil {
		return err
	}
	b.unlock = unlock

	dbPath := filepath.Join(dataDir, "audit.db")
	store, err := storage.NewAuditStore(dbPath)
	if err != nil {
		return err
	}
	b.AuditStore = store
	slog.Info("audit store initialized (WAL mode)",
		slog.String("path", dbPath), slog.String("mode", mode))

	b.Snapshots = storage.NewSnapshotManager(snapDir)

	return nil
}

// Shutdown releases the instance lock and closes the audit store.
func (b *Bootstrap) Shutdown() {
	if b.AuditStore != nil {
		if err := b.AuditStore.Close(); err != nil {
			slog.Warn("audit store close failed", slog.String("err", err.Error()))
		}
	}
	if b.unlock != nil {
		b.unlock()
	}
}
