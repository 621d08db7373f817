// Package rulesync keeps the engine's ruleset current. It loads the ruleset
// file at startup, reloads it on demand or when the file changes, and shares
// every accepted ruleset with other instances through the ruleset cache.
package rulesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"piigate/internal/cache"
	"piigate/internal/ruleset"
)

// Target receives compiled snapshots. *redact.Engine implements it.
type Target interface {
	Snapshot() *ruleset.Snapshot
	Reload(s *ruleset.Snapshot) *ruleset.Snapshot
	RejectReload(err error)
}

// Manager loads, validates and distributes rulesets.
type Manager struct {
	target Target
	path   string
	cache  cache.Cache

	mu        sync.Mutex
	modTime   time.Time
	seenEntry string
}

// New creates a Manager. An empty path serves the built-in ruleset; a nil
// cache disables distribution.
func New(target Target, path string, c cache.Cache) *Manager {
	return &Manager{target: target, path: path, cache: c}
}

// Attach sets the target. Startup loads the first snapshot with Load before
// the engine exists and attaches the engine afterwards.
func (m *Manager) Attach(target Target) {
	m.mu.Lock()
	m.target = target
	m.mu.Unlock()
}

// Path returns the ruleset file the manager watches.
func (m *Manager) Path() string { return m.path }

// Load compiles the configured ruleset without installing it. Startup uses
// it before the engine exists. If the file is unusable the last ruleset
// published to the cache is tried.
func (m *Manager) Load(ctx context.Context) (*ruleset.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, snap, err := m.readSource()
	if err == nil {
		m.publish(ctx, snap, raw)
		return snap, nil
	}
	if m.cache == nil {
		return nil, err
	}
	entry, cerr := m.cache.Get(ctx)
	if cerr != nil || entry == nil {
		return nil, err
	}
	cached, cerr := compile(entry.Document)
	if cerr != nil {
		return nil, err
	}
	slog.Warn("ruleset file unusable, starting from the shared ruleset",
		"path", m.path, "version", cached.Version(), "error", err)
	m.seenEntry = entry.Version
	return cached, nil
}

// Reload re-reads the ruleset file and installs it. On failure the active
// snapshot is kept and the error is returned.
func (m *Manager) Reload(ctx context.Context) (*ruleset.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, snap, err := m.readSource()
	if err != nil {
		m.target.RejectReload(err)
		return nil, err
	}
	m.install(ctx, snap, raw)
	return snap, nil
}

// Install compiles a YAML ruleset supplied by an operator and installs it.
// The file on disk is left untouched.
func (m *Manager) Install(ctx context.Context, raw []byte) (*ruleset.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap, err := compile(raw)
	if err != nil {
		m.target.RejectReload(err)
		return nil, err
	}
	m.install(ctx, snap, raw)
	return snap, nil
}

// Start polls the file and the cache every interval until the returned
// function is called.
func (m *Manager) Start(interval time.Duration) func() {
	ctx, cancel := context.WithCancel(context.Background())
	if interval <= 0 {
		return cancel
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pollCtx, pollCancel := context.WithTimeout(ctx, 30*time.Second)
				m.Poll(pollCtx)
				pollCancel()
			}
		}
	}()

	return cancel
}

// Poll reloads the file if it changed, otherwise adopts a ruleset another
// instance published.
func (m *Manager) Poll(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fileChanged() {
		raw, snap, err := m.readSource()
		if err != nil {
			m.target.RejectReload(err)
			return
		}
		m.install(ctx, snap, raw)
		return
	}

	if m.cache == nil {
		return
	}
	entry, err := m.cache.Get(ctx)
	if err != nil {
		slog.Warn("failed to read shared ruleset", "error", err)
		return
	}
	if entry == nil || entry.Version == m.seenEntry {
		return
	}
	m.seenEntry = entry.Version
	if entry.Version == m.target.Snapshot().Version() {
		return
	}
	snap, err := compile(entry.Document)
	if err != nil {
		m.target.RejectReload(fmt.Errorf("shared ruleset %s: %w", entry.Version, err))
		return
	}
	slog.Info("adopting shared ruleset", "name", entry.Name, "version", snap.Version(), "published_at", entry.UpdatedAt)
	m.target.Reload(snap)
}

func (m *Manager) install(ctx context.Context, snap *ruleset.Snapshot, raw []byte) {
	m.target.Reload(snap)
	m.publish(ctx, snap, raw)
}

// publish shares raw through the cache. Documents with literal salt secrets
// stay local: the cache is readable by every instance and, for the file
// cache, by anyone with access to the cache directory.
func (m *Manager) publish(ctx context.Context, snap *ruleset.Snapshot, raw []byte) {
	if m.cache == nil {
		return
	}
	doc, err := ruleset.Parse(raw)
	if err != nil {
		slog.Warn("failed to publish ruleset", "version", snap.Version(), "error", err)
		return
	}
	if refs := doc.LiteralSalts(); len(refs) > 0 {
		slog.Warn("ruleset not shared: salts hold literal secrets, use ${VAR} references to share it",
			"version", snap.Version(), "salts", refs)
		return
	}
	entry := &cache.RulesetEntry{
		Version:   snap.Version(),
		Name:      snap.Name(),
		UpdatedAt: time.Now().UTC(),
		Document:  raw,
	}
	if err := m.cache.Set(ctx, entry); err != nil {
		slog.Warn("failed to publish ruleset", "version", snap.Version(), "error", err)
		return
	}
	m.seenEntry = entry.Version
}

// readSource reads and compiles the configured ruleset and remembers the
// file's modification time.
func (m *Manager) readSource() ([]byte, *ruleset.Snapshot, error) {
	if m.path == "" {
		raw, err := yaml.Marshal(ruleset.Default())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode default ruleset: %w", err)
		}
		snap, err := compile(raw)
		return raw, snap, err
	}

	info, err := os.Stat(m.path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read ruleset: %w", err)
	}
	m.modTime = info.ModTime()

	raw, err := os.ReadFile(m.path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read ruleset: %w", err)
	}
	snap, err := compile(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", m.path, err)
	}
	return raw, snap, nil
}

func (m *Manager) fileChanged() bool {
	if m.path == "" {
		return false
	}
	info, err := os.Stat(m.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("failed to stat ruleset", "path", m.path, "error", err)
		}
		return false
	}
	return !info.ModTime().Equal(m.modTime)
}

func compile(raw []byte) (*ruleset.Snapshot, error) {
	doc, err := ruleset.Parse(raw)
	if err != nil {
		return nil, err
	}
	return ruleset.Compile(doc)
}
