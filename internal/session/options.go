package session

import (
	"path/filepath"

	"dpack/internal/archive"
	"dpack/internal/config"
	"dpack/internal/overlay"

	"go.uber.org/zap"
)

// OptionsFromConfig maps the export and resolver sections of cfg onto
// session options. The overlay stays in memory.
func OptionsFromConfig(cfg *config.Config, logger *zap.Logger) Options {
	opts := DefaultOptions()
	opts.Logger = logger

	if cfg.Export.Level != 0 {
		opts.Export.Writer.Level = cfg.Export.Level
	}
	if cfg.Export.YieldEvery > 0 {
		opts.Export.YieldEvery = cfg.Export.YieldEvery
	}
	if cfg.Export.StoreExtensions != nil {
		opts.Export.Writer.StoreExtensions = cfg.Export.StoreExtensions
	}
	if cfg.Resolver.Concurrency > 0 {
		opts.Resolver.Concurrency = cfg.Resolver.Concurrency
	}
	if len(cfg.Resolver.ImageExtensions) > 0 {
		opts.Resolver.ImageExtensions = cfg.Resolver.ImageExtensions
	}
	return opts
}

// DurableOverlay keeps edits under dir/<fingerprint>, so reopening the same
// archive picks them up again.
func DurableOverlay(dir string) OverlayFactory {
	return func(a *archive.Archive) (overlay.Store, error) {
		return overlay.OpenDurable(filepath.Join(dir, a.Fingerprint()))
	}
}
