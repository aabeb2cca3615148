package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ticketflow/backend/internal/store"
)

func newTestSweeper(t *testing.T, lc *Lifecycle) *Sweeper {
	t.Helper()
	return NewSweeper(lc.Settings, lc.Tickets, lc.Gateway, zerolog.Nop(), lc.Locks())
}

func TestSweepRemovesDeletedChannel(t *testing.T) {
	lc, gw := newTestLifecycle(t)
	key, _, _ := seedCategory(t, lc)
	ctx := context.Background()

	res, err := lc.Open(ctx, "u1", "alice", key)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	gw.DropChannel(res.ChannelID)

	removed, err := newTestSweeper(t, lc).Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, err := lc.Tickets.Get(ctx, res.ChannelID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected record pruned, got %v", err)
	}

	// The user can open again immediately.
	if _, err := lc.Open(ctx, "u1", "alice", key); err != nil {
		t.Fatalf("re-open after prune: %v", err)
	}
}

func TestSweepRemovesArchivedChannel(t *testing.T) {
	lc, gw := newTestLifecycle(t)
	key, _, archiveID := seedCategory(t, lc)
	ctx := context.Background()

	res, err := lc.Open(ctx, "u1", "alice", key)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	// Archived out of band, record left behind.
	ch := gw.Channels[res.ChannelID]
	ch.GroupID = archiveID
	gw.Channels[res.ChannelID] = ch

	removed, err := newTestSweeper(t, lc).Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, err := lc.Tickets.Get(ctx, res.ChannelID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected record pruned, got %v", err)
	}
}

func TestSweepKeepsLiveTickets(t *testing.T) {
	lc, _ := newTestLifecycle(t)
	key, _, _ := seedCategory(t, lc)
	ctx := context.Background()

	res, err := lc.Open(ctx, "u1", "alice", key)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	sweeper := newTestSweeper(t, lc)
	removed, err := sweeper.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 0 {
		t.Fatalf("removed = %d, want 0", removed)
	}
	if _, err := lc.Tickets.Get(ctx, res.ChannelID); err != nil {
		t.Fatalf("live record must survive the sweep: %v", err)
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	lc, gw := newTestLifecycle(t)
	key, _, _ := seedCategory(t, lc)
	ctx := context.Background()

	res, err := lc.Open(ctx, "u1", "alice", key)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	gw.DropChannel(res.ChannelID)

	sweeper := newTestSweeper(t, lc)
	if removed, _ := sweeper.Sweep(ctx); removed != 1 {
		t.Fatalf("first sweep removed %d, want 1", removed)
	}
	if removed, _ := sweeper.Sweep(ctx); removed != 0 {
		t.Fatalf("second sweep removed %d, want 0", removed)
	}
}

func TestSweepRunStopsOnCancel(t *testing.T) {
	lc, _ := newTestLifecycle(t)
	sweeper := newTestSweeper(t, lc)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not stop after cancellation")
	}
}
