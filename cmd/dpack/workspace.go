package main

import (
	"fmt"

	"dpack/internal/archive"
	"dpack/internal/config"
	"dpack/internal/session"

	"go.uber.org/zap"
)

// workspace is one archive opened from disk with its durable edits.
type workspace struct {
	cfg     *config.Config
	archive *archive.Archive
	session *session.Session
}

func openWorkspace(path string) (*workspace, error) {
	if configPath == "" {
		configPath = config.Path()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	a, err := archive.OpenFile(path)
	if err != nil {
		return nil, err
	}

	opts := session.OptionsFromConfig(cfg, logger)
	opts.OverlayFactory = session.DurableOverlay(cfg.Sessions.Dir)
	s := session.New(opts)
	if err := s.LoadArchive(a); err != nil {
		return nil, fmt.Errorf("opening edits: %w", err)
	}

	if displayName != "" {
		if err := s.SetDisplayName(displayName); err != nil {
			s.Close()
			return nil, err
		}
		if _, ok := s.Rename(); !ok {
			logger.Warn("display name ignored, archive has no single root folder",
				zap.String("name", displayName))
		}
	}
	return &workspace{cfg: cfg, archive: a, session: s}, nil
}

// edits lists pending edits by display path.
func (w *workspace) edits() []string {
	return w.session.OverlayPaths()
}

func (w *workspace) Close() error {
	return w.session.Close()
}
