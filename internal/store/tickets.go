package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/ticketflow/backend/internal/models"
)

const ticketsFile = "tickets.json"

// ChannelState is the slice of the gateway the ticket index needs to decide
// whether a record still points at a live, unarchived channel.
type ChannelState interface {
	ChannelExists(ctx context.Context, channelID string) (bool, error)
	CurrentGroupOf(ctx context.Context, channelID string) (string, error)
}

// TicketStore owns the ticket index document: channel id → ticket record.
// The persisted file is the single source of truth; every operation re-reads
// it before acting.
type TicketStore struct {
	path string
	mu   sync.Mutex
}

func NewTicketStore(dataDir string) *TicketStore {
	return &TicketStore{path: filepath.Join(dataDir, ticketsFile)}
}

func (s *TicketStore) load() (map[string]models.TicketRecord, error) {
	doc := map[string]models.TicketRecord{}
	if err := readDoc(s.path, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *TicketStore) Get(ctx context.Context, channelID string) (models.TicketRecord, error) {
	if err := ctx.Err(); err != nil {
		return models.TicketRecord{}, err
	}
	doc, err := s.load()
	if err != nil {
		return models.TicketRecord{}, err
	}
	rec, ok := doc[channelID]
	if !ok {
		return models.TicketRecord{}, fmt.Errorf("ticket %s: %w", channelID, ErrNotFound)
	}
	return rec, nil
}

// All returns a copy of the full index.
func (s *TicketStore) All(ctx context.Context) (map[string]models.TicketRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.load()
}

func (s *TicketStore) Put(ctx context.Context, channelID string, rec models.TicketRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	doc[channelID] = rec
	return writeDoc(s.path, doc)
}

func (s *TicketStore) Remove(ctx context.Context, channelID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := doc[channelID]; !ok {
		return nil
	}
	delete(doc, channelID)
	return writeDoc(s.path, doc)
}

// FindOpenByUser returns the channel id of the user's open ticket, if any. A
// ticket is open when its channel still exists and its current group is not
// any registered archive group in the given settings snapshot. Records that
// point at missing or archived channels are pruned and the pruned index is
// persisted before NotFound is returned.
func (s *TicketStore) FindOpenByUser(ctx context.Context, userID string, settings models.Settings, state ChannelState) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return "", err
	}
	archives := settings.ArchiveGroupIDs()

	var open string
	var stale []string
	for channelID, rec := range doc {
		if rec.UserID != userID {
			continue
		}
		exists, err := state.ChannelExists(ctx, channelID)
		if err != nil {
			return "", err
		}
		if !exists {
			stale = append(stale, channelID)
			continue
		}
		groupID, err := state.CurrentGroupOf(ctx, channelID)
		if err != nil {
			return "", err
		}
		if archives[groupID] {
			stale = append(stale, channelID)
			continue
		}
		open = channelID
		break
	}

	if len(stale) > 0 {
		for _, channelID := range stale {
			delete(doc, channelID)
		}
		if err := writeDoc(s.path, doc); err != nil {
			return "", err
		}
	}
	if open == "" {
		return "", fmt.Errorf("open ticket for user %s: %w", userID, ErrNotFound)
	}
	return open, nil
}
