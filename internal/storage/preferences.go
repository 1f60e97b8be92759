package storage

import (
	"log/slog"

	"github.com/scaleformeter/scaleformeter/pkg/host"
)

var _ host.Preferences = (*Preferences)(nil)

// Preferences exposes one profile of a Backend as a host.Preferences store.
// Backend errors are logged and read as a missing key.
type Preferences struct {
	backend Backend
	profile string
	log     *slog.Logger
}

// NewPreferences scopes backend to profile.
func NewPreferences(backend Backend, profile string, logger *slog.Logger) *Preferences {
	if logger == nil {
		logger = slog.Default()
	}
	return &Preferences{
		backend: backend,
		profile: profile,
		log:     logger.With("component", "preferences", "profile", profile),
	}
}

func (p *Preferences) GetString(key string) (string, bool) {
	v, ok, err := p.backend.GetPreference(p.profile, key)
	if err != nil {
		p.log.Error("Failed to read preference", "key", key, "error", err)
		return "", false
	}
	return v, ok
}

func (p *Preferences) SetString(key, value string) {
	if err := p.backend.SetPreference(p.profile, key, value); err != nil {
		p.log.Error("Failed to write preference", "key", key, "error", err)
	}
}
