package session

import (
	"testing"

	"dpack/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Export.Level = 9
	cfg.Export.YieldEvery = 5
	cfg.Export.StoreExtensions = []string{".bin"}
	cfg.Resolver.Concurrency = 2

	opts := OptionsFromConfig(cfg, nil)

	assert.Equal(t, 9, opts.Export.Writer.Level)
	assert.Equal(t, 5, opts.Export.YieldEvery)
	assert.Equal(t, []string{".bin"}, opts.Export.Writer.StoreExtensions)
	assert.Equal(t, 2, opts.Resolver.Concurrency)
	assert.Equal(t, cfg.Resolver.ImageExtensions, opts.Resolver.ImageExtensions)
	assert.NotNil(t, opts.OverlayFactory)
}
