package platform

import (
	"log/slog"
	"sync"

	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/httpclient"
)

// Registry maps a target network to the adapter that posts to it. Bluesky,
// LinkedIn and Facebook always go direct. Instagram, Threads, TikTok and X go
// through the LATE aggregator when an API key is configured; without one,
// Instagram and Threads fall back to the direct Meta API and TikTok/X are
// unsupported (both need aggregator access).
type Registry struct {
	mu       sync.RWMutex
	services map[Platform]Service
	http     *httpclient.Client
}

func NewRegistry(cfg *config.Config, hc *httpclient.Client) *Registry {
	r := &Registry{http: hc}
	r.Rebuild(cfg)
	return r
}

// Rebuild swaps in a fresh adapter table; safe to call while lookups are in
// flight, for runtime configuration changes.
func (r *Registry) Rebuild(cfg *config.Config) {
	services := map[Platform]Service{
		Bluesky:  NewBlueskyService(r.http),
		Linkedin: NewLinkedinService(cfg.LinkedinClientID, cfg.LinkedinSecret, r.http),
		Facebook: NewMetaService(Facebook, cfg.MetaAppID, cfg.MetaAppSecret, r.http),
	}

	if cfg.LateAPIKey != "" {
		slog.Info("using LATE API for instagram, threads, tiktok and x")
		for _, p := range []Platform{Instagram, Threads, Tiktok, X} {
			svc, err := NewLateService(p, cfg.LateAPIKey, r.http)
			if err != nil {
				slog.Error("failed to build LATE service", "platform", p, "error", err)
				continue
			}
			services[p] = svc
		}
	} else {
		slog.Info("LATE not configured, using direct APIs for instagram and threads")
		services[Instagram] = NewMetaService(Instagram, cfg.MetaAppID, cfg.MetaAppSecret, r.http)
		services[Threads] = NewMetaService(Threads, cfg.MetaAppID, cfg.MetaAppSecret, r.http)
	}

	r.mu.Lock()
	r.services = services
	r.mu.Unlock()
}

// Get returns the adapter for p, or false when the platform has no configured
// adapter. Callers treat false as a per-target failure, never a crash.
func (r *Registry) Get(p Platform) (Service, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	svc, ok := r.services[p]
	return svc, ok
}

// Supported lists the platforms with a configured adapter.
func (r *Registry) Supported() []Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Platform, 0, len(r.services))
	for p := range r.services {
		out = append(out, p)
	}
	return out
}
