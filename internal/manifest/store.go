package manifest

import (
	"context"
	"fmt"
	"strings"

	"flipper-bridge/internal/session"
	"flipper-bridge/pkg/log"
)

// Store reads and writes manifest records on the device filesystem. It
// resolves the session per call so it always talks to the currently bound
// link.
type Store struct {
	io func() session.IO
}

// NewStore creates a store over the given session provider.
func NewStore(io func() session.IO) *Store {
	return &Store{io: io}
}

// Scan lists the manifests directory and decodes every record, keyed by
// application uid. A manifest that cannot be read or decoded is logged and
// skipped; partial success is preferred over aborting the whole listing.
func (s *Store) Scan(ctx context.Context) (map[string]Manifest, error) {
	io := s.io()
	entries, err := io.ListDirectory(ctx, ManifestsDir)
	if err != nil {
		return nil, fmt.Errorf("manifest: scan: %w", err)
	}

	found := make(map[string]Manifest)
	for _, entry := range entries {
		if entry.Dir || !strings.HasSuffix(entry.Name, ManifestExt) {
			continue
		}
		p := ManifestsDir + "/" + entry.Name
		data, err := io.ReadFile(ctx, p)
		if err != nil {
			log.Warn("manifest: unreadable record skipped", "path", p, "error", err)
			continue
		}
		m, err := Decode(data)
		if err != nil {
			log.Warn("manifest: corrupt record skipped", "path", p, "error", err)
			continue
		}
		found[m.UID] = m
	}
	return found, nil
}

// Write serializes the manifest and writes it to the given device path.
func (s *Store) Write(ctx context.Context, m Manifest, path string) error {
	if err := s.io().WriteFile(ctx, path, Encode(m), nil); err != nil {
		return fmt.Errorf("manifest: write %s: %w", path, err)
	}
	return nil
}

// Delete removes the manifest file for an alias.
func (s *Store) Delete(ctx context.Context, alias string) error {
	if err := s.io().DeleteFile(ctx, ManifestPath(alias)); err != nil {
		return fmt.Errorf("manifest: delete %s: %w", alias, err)
	}
	return nil
}
