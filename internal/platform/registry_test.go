package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/maheshrc27/crosspost/configs"
)

func TestRegistryWithLateKey(t *testing.T) {
	cfg := &config.Config{
		MetaAppID:        "app",
		MetaAppSecret:    "secret",
		LinkedinClientID: "cid",
		LinkedinSecret:   "csecret",
		LateAPIKey:       "late-key",
	}
	r := NewRegistry(cfg, newTestHTTPClient())

	for _, p := range []Platform{Bluesky, Linkedin, Facebook, Instagram, Threads, Tiktok, X} {
		_, ok := r.Get(p)
		assert.True(t, ok, "expected adapter for %s", p)
	}
	assert.Len(t, r.Supported(), 7)

	// Aggregator platforms route through LATE.
	svc, _ := r.Get(Tiktok)
	_, isLate := svc.(*lateService)
	assert.True(t, isLate)
}

func TestRegistryWithoutLateKeyFallsBackToMeta(t *testing.T) {
	cfg := &config.Config{MetaAppID: "app", MetaAppSecret: "secret"}
	r := NewRegistry(cfg, newTestHTTPClient())

	svc, ok := r.Get(Instagram)
	require.True(t, ok)
	_, isMeta := svc.(*metaService)
	assert.True(t, isMeta)

	_, ok = r.Get(Threads)
	assert.True(t, ok)

	// TikTok and X need the aggregator.
	_, ok = r.Get(Tiktok)
	assert.False(t, ok)
	_, ok = r.Get(X)
	assert.False(t, ok)
}

func TestRegistryGetUnknownPlatform(t *testing.T) {
	r := NewRegistry(&config.Config{}, newTestHTTPClient())
	_, ok := r.Get(Platform("myspace"))
	assert.False(t, ok)
}

func TestRegistryRebuildSwapsAdapters(t *testing.T) {
	cfg := &config.Config{MetaAppID: "app", MetaAppSecret: "secret"}
	r := NewRegistry(cfg, newTestHTTPClient())

	_, ok := r.Get(X)
	require.False(t, ok)

	cfg.LateAPIKey = "late-key"
	r.Rebuild(cfg)

	_, ok = r.Get(X)
	assert.True(t, ok)
}
