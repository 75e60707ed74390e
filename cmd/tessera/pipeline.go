package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattjoyce/tessera/internal/config"
	"github.com/mattjoyce/tessera/internal/processor"
	"github.com/mattjoyce/tessera/internal/processors/builtin"
	"github.com/mattjoyce/tessera/internal/runlog"
	"github.com/mattjoyce/tessera/internal/storage"
	"github.com/mattjoyce/tessera/internal/toolbox"
)

// resolveConfigPath applies the --config fallbacks.
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("TESSERA_CONFIG"); env != "" {
		return env
	}
	return "."
}

func loadConfig(flagValue string) (*config.Config, error) {
	return config.Load(resolveConfigPath(flagValue))
}

// newRegistry returns a factory for every processor type built into the
// binary. Printers write to out.
func newRegistry(out io.Writer) (*processor.Registry, error) {
	reg := processor.NewRegistry()
	if err := builtin.Register(reg, out); err != nil {
		return nil, err
	}
	return reg, nil
}

// buildPipeline creates the toolbox described by cfg and applies the
// processor_config section.
func buildPipeline(cfg *config.Config, out io.Writer) (*toolbox.Toolbox, error) {
	node := cfg.Toolbox()
	if node == nil {
		return nil, fmt.Errorf("config has no %s section", config.ToolboxKey)
	}
	reg, err := newRegistry(out)
	if err != nil {
		return nil, err
	}
	tb := toolbox.New(reg)
	if err := tb.Configure(node); err != nil {
		return nil, fmt.Errorf("configure toolbox: %w", err)
	}
	if pc := cfg.ProcessorConfig(); pc != nil {
		if err := tb.ConfigureProcessors(pc); err != nil {
			return nil, err
		}
	}
	return tb, nil
}

// openJournal opens the run journal at state.path and prunes runs older than
// the retention window. The returned close func is always safe to call.
func openJournal(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*runlog.Store, func(), error) {
	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		return nil, func() {}, err
	}
	store := runlog.NewStore(db)
	if n, err := store.Prune(ctx, cfg.State.Retention); err != nil {
		logger.Warn("failed to prune run journal", "error", err)
	} else if n > 0 {
		logger.Info("pruned run journal", "removed", n, "retention", cfg.State.Retention)
	}
	logger.Info("run journal opened", "path", cfg.State.Path)
	return store, func() { _ = db.Close() }, nil
}
