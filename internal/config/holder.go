package config

import "sync"

// Holder shares the live configuration between the reload paths (SIGHUP,
// file watch, the reload command) and the components that read it. Every
// successful reload bumps the generation.
type Holder struct {
	mu         sync.RWMutex
	cfg        *Config
	generation uint64
	path       string
}

// NewHolder starts at generation 1 with cfg, loaded from path ("" when no
// file was read).
func NewHolder(cfg *Config, path string) *Holder {
	return &Holder{cfg: cfg, generation: 1, path: path}
}

// Config returns the current snapshot. Callers must not mutate it.
func (h *Holder) Config() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.cfg
}

// Generation counts installed configurations, starting at 1.
func (h *Holder) Generation() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.generation
}

// Path is the file the configuration was resolved from.
func (h *Holder) Path() string {
	return h.path
}

// Update installs cfg and returns the new generation.
func (h *Holder) Update(cfg *Config) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.cfg = cfg
	h.generation++

	return h.generation
}
