package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ticketflow/backend/internal/gateway"
	"github.com/ticketflow/backend/internal/store"
)

// Sweeper reconciles the ticket index with live workspace state. It only
// removes records whose channel is gone or already archived; it never touches
// remote channels, so it is safe to run at any time.
type Sweeper struct {
	Settings *store.SettingsStore
	Tickets  *store.TicketStore
	Gateway  gateway.Provisioner
	Logger   zerolog.Logger

	locks *userLocks
}

func NewSweeper(settings *store.SettingsStore, tickets *store.TicketStore, gw gateway.Provisioner, logger zerolog.Logger, locks *userLocks) *Sweeper {
	return &Sweeper{Settings: settings, Tickets: tickets, Gateway: gw, Logger: logger, locks: locks}
}

// Sweep prunes stale records and reports how many were removed. Gateway
// failures on individual records are logged and skipped; the next sweep
// retries them.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	settings, err := s.Settings.Settings(ctx)
	if err != nil {
		return 0, err
	}
	index, err := s.Tickets.All(ctx)
	if err != nil {
		return 0, err
	}
	archives := settings.ArchiveGroupIDs()

	removed := 0
	for channelID, rec := range index {
		unlock := s.locks.Lock(rec.UserID)

		// Re-read under the lock: a concurrent close may already have
		// removed the record.
		if _, err := s.Tickets.Get(ctx, channelID); err != nil {
			unlock()
			continue
		}

		stale := false
		exists, err := s.Gateway.ChannelExists(ctx, channelID)
		if err != nil {
			s.Logger.Warn().Err(err).Str("channel_id", channelID).Msg("sweep: existence check failed")
			unlock()
			continue
		}
		if !exists {
			stale = true
		} else {
			groupID, err := s.Gateway.CurrentGroupOf(ctx, channelID)
			if err != nil {
				s.Logger.Warn().Err(err).Str("channel_id", channelID).Msg("sweep: group lookup failed")
				unlock()
				continue
			}
			if archives[groupID] {
				stale = true
			}
		}

		if stale {
			if err := s.Tickets.Remove(ctx, channelID); err != nil {
				s.Logger.Error().Err(err).Str("channel_id", channelID).Msg("sweep: record removal failed")
			} else {
				removed++
				s.Logger.Info().Str("channel_id", channelID).Str("user_id", rec.UserID).Msg("sweep: stale ticket record removed")
			}
		}
		unlock()
	}
	return removed, nil
}

// Run sweeps on the given interval until the context is cancelled. An
// interval of zero disables the periodic run.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.Logger.Error().Err(err).Msg("periodic sweep failed")
			}
		}
	}
}
