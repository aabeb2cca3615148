package store

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ticketflow/backend/internal/models"
)

const settingsFile = "settings.json"

// SettingsStore owns the settings document, including the category registry.
// Persistence is whole-document replace, so every mutation re-reads the
// current document and runs under the store mutex.
type SettingsStore struct {
	path string
	mu   sync.Mutex
}

func NewSettingsStore(dataDir string) *SettingsStore {
	return &SettingsStore{path: filepath.Join(dataDir, settingsFile)}
}

// Settings returns the current persisted document. Callers treat the result
// as a snapshot; nothing is cached between calls.
func (s *SettingsStore) Settings(ctx context.Context) (models.Settings, error) {
	if err := ctx.Err(); err != nil {
		return models.Settings{}, err
	}
	var doc models.Settings
	if err := readDoc(s.path, &doc); err != nil {
		return models.Settings{}, err
	}
	if doc.Categories == nil {
		doc.Categories = map[string]models.CategoryDefinition{}
	}
	if doc.TicketNamePrefix == "" {
		doc.TicketNamePrefix = "ticket-"
	}
	return doc, nil
}

// Category resolves a single registry entry.
func (s *SettingsStore) Category(ctx context.Context, key string) (models.CategoryDefinition, error) {
	doc, err := s.Settings(ctx)
	if err != nil {
		return models.CategoryDefinition{}, err
	}
	def, ok := doc.Categories[key]
	if !ok {
		return models.CategoryDefinition{}, fmt.Errorf("category %q: %w", key, ErrNotFound)
	}
	return def, nil
}

// Categories lists (key, definition) pairs in registration order.
func (s *SettingsStore) Categories(ctx context.Context) ([]string, map[string]models.CategoryDefinition, error) {
	doc, err := s.Settings(ctx)
	if err != nil {
		return nil, nil, err
	}
	return doc.OrderedKeys(), doc.Categories, nil
}

// NormalizeKey applies the registry key rules: lowercase, trimmed, inner
// spaces replaced with underscores.
func NormalizeKey(key string) string {
	return strings.ReplaceAll(strings.TrimSpace(strings.ToLower(key)), " ", "_")
}

// AddCategory registers a new category definition under its normalized key.
// The key must be new and both group ids must be present.
func (s *SettingsStore) AddCategory(ctx context.Context, key string, def models.CategoryDefinition) error {
	key = NormalizeKey(key)
	if key == "" {
		return fmt.Errorf("category key is empty: %w", ErrInvalid)
	}
	if def.GroupID == "" || def.ArchiveGroupID == "" {
		return fmt.Errorf("category %q is missing a group id: %w", key, ErrInvalid)
	}
	if def.GroupID == def.ArchiveGroupID {
		return fmt.Errorf("category %q active and archive groups are the same: %w", key, ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.Settings(ctx)
	if err != nil {
		return err
	}
	if _, ok := doc.Categories[key]; ok {
		return fmt.Errorf("category %q: %w", key, ErrConflict)
	}
	doc.Categories[key] = def
	doc.CategoryOrder = append(doc.CategoryOrder, key)
	return writeDoc(s.path, doc)
}

// SeedDefaults writes an initial settings document when none exists yet, so
// operators have a file to fill in. Existing documents are left untouched.
func (s *SettingsStore) SeedDefaults(ctx context.Context, workspaceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.Settings(ctx)
	if err != nil {
		return err
	}
	if doc.WorkspaceID != "" || len(doc.Categories) > 0 {
		return nil
	}
	doc.WorkspaceID = workspaceID
	return writeDoc(s.path, doc)
}
