package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ticketflow/backend/internal/gateway"
	"github.com/ticketflow/backend/internal/store"
)

func newTestLifecycle(t *testing.T) (*Lifecycle, *gateway.MockProvisioner) {
	t.Helper()
	dir := t.TempDir()
	settings := store.NewSettingsStore(dir)
	tickets := store.NewTicketStore(dir)
	gw := gateway.NewMock()
	return NewLifecycle(settings, tickets, gw, zerolog.Nop(), 30*time.Second), gw
}

func seedCategory(t *testing.T, lc *Lifecycle) (string, string, string) {
	t.Helper()
	key, def, err := lc.CreateCategory(context.Background(), "billing", "Billing", "")
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	return key, def.GroupID, def.ArchiveGroupID
}

func TestOpenTicket(t *testing.T) {
	lc, gw := newTestLifecycle(t)
	key, activeID, _ := seedCategory(t, lc)
	ctx := context.Background()

	res, err := lc.Open(ctx, "u1", "Alice", key)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if res.ChannelName != "ticket-alice-billing" {
		t.Fatalf("unexpected channel name %q", res.ChannelName)
	}

	ch, ok := gw.Channels[res.ChannelID]
	if !ok {
		t.Fatalf("channel %s not created", res.ChannelID)
	}
	if ch.GroupID != activeID {
		t.Fatalf("channel created under %s, want active group %s", ch.GroupID, activeID)
	}

	rec, err := lc.Tickets.Get(ctx, res.ChannelID)
	if err != nil {
		t.Fatalf("record not persisted: %v", err)
	}
	if rec.UserID != "u1" || rec.CategoryKey != "billing" {
		t.Fatalf("unexpected record %+v", rec)
	}

	if len(gw.ChannelMessages[res.ChannelID]) == 0 {
		t.Fatalf("expected welcome message in channel")
	}
	if len(gw.UserMessages["u1"]) == 0 {
		t.Fatalf("expected DM confirmation")
	}
	if !res.DMDelivered {
		t.Fatalf("expected DMDelivered true")
	}
}

func TestOpenSecondTicketConflict(t *testing.T) {
	lc, gw := newTestLifecycle(t)
	key, _, _ := seedCategory(t, lc)
	ctx := context.Background()

	first, err := lc.Open(ctx, "u1", "alice", key)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}

	_, err = lc.Open(ctx, "u1", "alice", key)
	var already *AlreadyOpenError
	if !errors.As(err, &already) {
		t.Fatalf("expected AlreadyOpenError, got %v", err)
	}
	if already.ChannelID != first.ChannelID {
		t.Fatalf("conflict reports %s, want %s", already.ChannelID, first.ChannelID)
	}

	// No second channel.
	count := 0
	for _, ch := range gw.Channels {
		if strings.HasPrefix(ch.Name, "ticket-alice") {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one ticket channel, got %d", count)
	}
}

func TestOpenUnknownCategory(t *testing.T) {
	lc, _ := newTestLifecycle(t)
	if _, err := lc.Open(context.Background(), "u1", "alice", "ghost"); !errors.Is(err, ErrInvalidCategory) {
		t.Fatalf("expected ErrInvalidCategory, got %v", err)
	}
}

func TestOpenDeadActiveGroup(t *testing.T) {
	lc, gw := newTestLifecycle(t)
	key, activeID, _ := seedCategory(t, lc)
	delete(gw.Groups, activeID)

	if _, err := lc.Open(context.Background(), "u1", "alice", key); !errors.Is(err, ErrInvalidCategory) {
		t.Fatalf("expected ErrInvalidCategory for dead group, got %v", err)
	}
}

func TestOpenProvisioningFailureLeavesNoState(t *testing.T) {
	lc, gw := newTestLifecycle(t)
	key, _, _ := seedCategory(t, lc)
	gw.FailCreateChannel = gateway.ErrForbidden

	_, err := lc.Open(context.Background(), "u1", "alice", key)
	if !errors.Is(err, gateway.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	index, err := lc.Tickets.All(context.Background())
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(index) != 0 {
		t.Fatalf("expected empty index after failed open, got %v", index)
	}
}

func TestOpenDMBlockedStillOpens(t *testing.T) {
	lc, gw := newTestLifecycle(t)
	key, _, _ := seedCategory(t, lc)
	gw.BlockedUsers["u1"] = true

	res, err := lc.Open(context.Background(), "u1", "alice", key)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if res.DMDelivered {
		t.Fatalf("expected DMDelivered false")
	}
	// Welcome plus the could-not-reach-you warning.
	if len(gw.ChannelMessages[res.ChannelID]) != 2 {
		t.Fatalf("expected welcome and warning in channel, got %d messages", len(gw.ChannelMessages[res.ChannelID]))
	}
}

func TestConcurrentOpensKeepSingleTicket(t *testing.T) {
	lc, gw := newTestLifecycle(t)
	key, _, _ := seedCategory(t, lc)
	ctx := context.Background()

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = lc.Open(ctx, "u1", "alice", key)
		}(i)
	}
	wg.Wait()

	opened := 0
	for _, err := range errs {
		if err == nil {
			opened++
			continue
		}
		var already *AlreadyOpenError
		if !errors.As(err, &already) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if opened != 1 {
		t.Fatalf("expected exactly one successful open, got %d", opened)
	}

	index, err := lc.Tickets.All(ctx)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(index) != 1 {
		t.Fatalf("expected one record, got %d", len(index))
	}
	created := 0
	for _, ch := range gw.Channels {
		if strings.HasPrefix(ch.Name, "ticket-alice") {
			created++
		}
	}
	if created != 1 {
		t.Fatalf("expected one channel provisioned, got %d", created)
	}
}

func TestCloseRoundTrip(t *testing.T) {
	lc, gw := newTestLifecycle(t)
	key, _, archiveID := seedCategory(t, lc)
	ctx := context.Background()

	res, err := lc.Open(ctx, "u1", "alice", key)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	proposal, err := lc.ProposeClose(ctx, res.ChannelID, res.ChannelName, "mod1")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	closed, err := lc.ConfirmClose(ctx, proposal.Token, "mod1")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if closed.ArchiveGroupID != archiveID {
		t.Fatalf("archived into %s, want %s", closed.ArchiveGroupID, archiveID)
	}

	ch := gw.Channels[res.ChannelID]
	if ch.GroupID != archiveID {
		t.Fatalf("channel sits in %s, want archive group %s", ch.GroupID, archiveID)
	}
	if !strings.HasPrefix(ch.Name, "archived-") {
		t.Fatalf("expected archival rename, got %q", ch.Name)
	}

	if _, err := lc.Tickets.Get(ctx, res.ChannelID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected record removed, got %v", err)
	}
	if !closed.OwnerNotified {
		t.Fatalf("expected owner notification")
	}

	// The user can open a fresh ticket now.
	if _, err := lc.Open(ctx, "u1", "alice", key); err != nil {
		t.Fatalf("re-open after close: %v", err)
	}
}

func TestCloseMoveFailureKeepsTicketOpen(t *testing.T) {
	lc, gw := newTestLifecycle(t)
	key, _, _ := seedCategory(t, lc)
	ctx := context.Background()

	res, err := lc.Open(ctx, "u1", "alice", key)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	proposal, err := lc.ProposeClose(ctx, res.ChannelID, res.ChannelName, "mod1")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}

	gw.FailMove = gateway.ErrForbidden
	if _, err := lc.ConfirmClose(ctx, proposal.Token, "mod1"); !errors.Is(err, gateway.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	if _, err := lc.Tickets.Get(ctx, res.ChannelID); err != nil {
		t.Fatalf("record must survive a failed archive: %v", err)
	}
}

func TestCloseCancel(t *testing.T) {
	lc, _ := newTestLifecycle(t)
	key, _, _ := seedCategory(t, lc)
	ctx := context.Background()

	res, err := lc.Open(ctx, "u1", "alice", key)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	proposal, err := lc.ProposeClose(ctx, res.ChannelID, res.ChannelName, "mod1")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if err := lc.CancelClose(proposal.Token, "mod1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := lc.ConfirmClose(ctx, proposal.Token, "mod1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected NotFound after cancel, got %v", err)
	}
	if _, err := lc.Tickets.Get(ctx, res.ChannelID); err != nil {
		t.Fatalf("cancel must not touch the record: %v", err)
	}
}

func TestConfirmActorMismatch(t *testing.T) {
	lc, _ := newTestLifecycle(t)
	key, _, _ := seedCategory(t, lc)
	ctx := context.Background()

	res, err := lc.Open(ctx, "u1", "alice", key)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	proposal, err := lc.ProposeClose(ctx, res.ChannelID, res.ChannelName, "mod1")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if _, err := lc.ConfirmClose(ctx, proposal.Token, "mod2"); !errors.Is(err, ErrActorMismatch) {
		t.Fatalf("expected ErrActorMismatch, got %v", err)
	}
	if err := lc.CancelClose(proposal.Token, "mod2"); !errors.Is(err, ErrActorMismatch) {
		t.Fatalf("expected ErrActorMismatch on cancel, got %v", err)
	}
}

func TestConfirmExpired(t *testing.T) {
	lc, _ := newTestLifecycle(t)
	key, _, _ := seedCategory(t, lc)
	ctx := context.Background()

	res, err := lc.Open(ctx, "u1", "alice", key)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	proposal, err := lc.ProposeClose(ctx, res.ChannelID, res.ChannelName, "mod1")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}

	lc.pending.now = func() time.Time { return time.Now().Add(time.Minute) }
	if _, err := lc.ConfirmClose(ctx, proposal.Token, "mod1"); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestProposeAlreadyArchived(t *testing.T) {
	lc, gw := newTestLifecycle(t)
	key, _, archiveID := seedCategory(t, lc)
	ctx := context.Background()

	res, err := lc.Open(ctx, "u1", "alice", key)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ch := gw.Channels[res.ChannelID]
	ch.GroupID = archiveID
	gw.Channels[res.ChannelID] = ch

	if _, err := lc.ProposeClose(ctx, res.ChannelID, res.ChannelName, "mod1"); !errors.Is(err, ErrAlreadyArchived) {
		t.Fatalf("expected ErrAlreadyArchived, got %v", err)
	}
}

func TestProposeInfersCategoryFromName(t *testing.T) {
	lc, gw := newTestLifecycle(t)
	_, activeID, _ := seedCategory(t, lc)
	ctx := context.Background()

	// A ticket channel that lost its record.
	ch := gw.AddChannel("ticket-bob-billing", activeID)

	proposal, err := lc.ProposeClose(ctx, ch, "ticket-bob-billing", "mod1")
	if err != nil {
		t.Fatalf("propose with inference: %v", err)
	}
	if proposal.CategoryKey != "billing" {
		t.Fatalf("inferred %q, want billing", proposal.CategoryKey)
	}
}

func TestProposeCannotInfer(t *testing.T) {
	lc, gw := newTestLifecycle(t)
	_, activeID, _ := seedCategory(t, lc)
	ctx := context.Background()

	ch := gw.AddChannel("ticket-bob-ghost", activeID)
	if _, err := lc.ProposeClose(ctx, ch, "ticket-bob-ghost", "mod1"); !errors.Is(err, ErrCannotInfer) {
		t.Fatalf("expected ErrCannotInfer for unknown suffix, got %v", err)
	}

	plain := gw.AddChannel("general", activeID)
	if _, err := lc.ProposeClose(ctx, plain, "general", "mod1"); !errors.Is(err, ErrCannotInfer) {
		t.Fatalf("expected ErrCannotInfer without ticket prefix, got %v", err)
	}
}

func TestCreateCategoryRollsBackActiveGroup(t *testing.T) {
	lc, gw := newTestLifecycle(t)
	gw.FailCreateGroup["📦 Archived - Billing"] = gateway.ErrForbidden

	_, _, err := lc.CreateCategory(context.Background(), "billing", "Billing", "")
	if !errors.Is(err, gateway.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if len(gw.Groups) != 0 {
		t.Fatalf("expected active group rolled back, groups left: %v", gw.Groups)
	}

	doc, err := lc.Settings.Settings(context.Background())
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if len(doc.Categories) != 0 {
		t.Fatalf("expected no category persisted, got %v", doc.Categories)
	}
}

func TestCreateCategoryDuplicate(t *testing.T) {
	lc, gw := newTestLifecycle(t)
	seedCategory(t, lc)

	groupsBefore := len(gw.Groups)
	_, _, err := lc.CreateCategory(context.Background(), "Billing", "Billing Again", "")
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if len(gw.Groups) != groupsBefore {
		t.Fatalf("duplicate creation must not provision groups")
	}
}

func TestReplyToOwner(t *testing.T) {
	lc, gw := newTestLifecycle(t)
	key, _, _ := seedCategory(t, lc)
	ctx := context.Background()

	res, err := lc.Open(ctx, "u1", "alice", key)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	dmsBefore := len(gw.UserMessages["u1"])

	if err := lc.ReplyToOwner(ctx, res.ChannelID, "mod1", "Mod One", "hello from support"); err != nil {
		t.Fatalf("reply: %v", err)
	}
	dms := gw.UserMessages["u1"]
	if len(dms) != dmsBefore+1 {
		t.Fatalf("expected one more DM, got %d", len(dms)-dmsBefore)
	}
	if dms[len(dms)-1].Text != "hello from support" {
		t.Fatalf("unexpected DM text %q", dms[len(dms)-1].Text)
	}
}

func TestReplyToOwnerBlockedFallsBackToChannel(t *testing.T) {
	lc, gw := newTestLifecycle(t)
	key, _, _ := seedCategory(t, lc)
	ctx := context.Background()

	res, err := lc.Open(ctx, "u1", "alice", key)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	gw.BlockedUsers["u1"] = true
	msgsBefore := len(gw.ChannelMessages[res.ChannelID])

	err = lc.ReplyToOwner(ctx, res.ChannelID, "mod1", "Mod One", "are you there?")
	if !errors.Is(err, gateway.ErrBlocked) {
		t.Fatalf("expected ErrBlocked, got %v", err)
	}
	msgs := gw.ChannelMessages[res.ChannelID]
	if len(msgs) != msgsBefore+1 {
		t.Fatalf("expected fallback message in channel")
	}
	if !strings.Contains(msgs[len(msgs)-1].Text, "are you there?") {
		t.Fatalf("fallback message must carry the reply text, got %q", msgs[len(msgs)-1].Text)
	}
}
