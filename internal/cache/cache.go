// Package cache shares the active detection ruleset between instances.
// A local file backend serves single-instance deployments; the Redis backend
// lets every replica pick up a reload published by any of them.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// RulesetEntry is the published form of a ruleset.
type RulesetEntry struct {
	// Version is the snapshot fingerprint of Document.
	Version   string    `msgpack:"version"`
	Name      string    `msgpack:"name"`
	UpdatedAt time.Time `msgpack:"updated_at"`
	// Document holds the YAML ruleset text as loaded. Salt secrets are kept
	// as ${VAR} references and are expanded by each instance.
	Document []byte `msgpack:"document"`
}

// Cache defines the interface for ruleset distribution.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns the published ruleset, or nil, nil if nothing was published yet.
	Get(ctx context.Context) (*RulesetEntry, error)

	// Set publishes a ruleset.
	Set(ctx context.Context, entry *RulesetEntry) error

	// Close releases any resources held by the cache.
	Close() error
}

func encode(entry *RulesetEntry) ([]byte, error) {
	data, err := msgpack.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to encode ruleset entry: %w", err)
	}
	return data, nil
}

func decode(data []byte) (*RulesetEntry, error) {
	var entry RulesetEntry
	if err := msgpack.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode ruleset entry: %w", err)
	}
	return &entry, nil
}
