package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ticketflow/backend/internal/gateway"
	"github.com/ticketflow/backend/internal/models"
	"github.com/ticketflow/backend/internal/store"
	"github.com/ticketflow/backend/internal/utils"
)

const (
	channelNameLimit = 100
	archivedPrefix   = "archived-"
)

// Lifecycle orchestrates ticket open/close transitions and category
// registration. All check-then-act sequences run under a per-user lock so the
// one-open-ticket invariant holds across concurrent requests.
type Lifecycle struct {
	Settings *store.SettingsStore
	Tickets  *store.TicketStore
	Gateway  gateway.Provisioner
	Logger   zerolog.Logger

	locks   *userLocks
	pending *pendingCloses
	// categoryMu serializes category creation globally; the registry is a
	// whole-document store and duplicate keys must not race in.
	categoryMu chan struct{}
}

func NewLifecycle(settings *store.SettingsStore, tickets *store.TicketStore, gw gateway.Provisioner, logger zerolog.Logger, confirmTTL time.Duration) *Lifecycle {
	l := &Lifecycle{
		Settings:   settings,
		Tickets:    tickets,
		Gateway:    gw,
		Logger:     logger,
		locks:      newUserLocks(),
		pending:    newPendingCloses(confirmTTL),
		categoryMu: make(chan struct{}, 1),
	}
	return l
}

// Locks exposes the per-user lock scope so the reconciliation sweep shares it.
func (l *Lifecycle) Locks() *userLocks { return l.locks }

type OpenResult struct {
	ChannelID   string `json:"channel_id"`
	ChannelName string `json:"channel_name"`
	CategoryKey string `json:"category_key"`
	// DMDelivered is false when the confirmation could not reach the owner's
	// private stream. The ticket is open either way.
	DMDelivered bool `json:"dm_delivered"`
}

// Open provisions a ticket channel for the user under the category's active
// group. It fails without side effects when the category is unusable or the
// user already has an open ticket.
func (l *Lifecycle) Open(ctx context.Context, userID, userHandle, categoryKey string) (OpenResult, error) {
	settings, err := l.Settings.Settings(ctx)
	if err != nil {
		return OpenResult{}, err
	}

	categoryKey = store.NormalizeKey(categoryKey)
	def, ok := settings.Categories[categoryKey]
	if !ok {
		return OpenResult{}, fmt.Errorf("category %q: %w", categoryKey, ErrInvalidCategory)
	}
	live, err := l.Gateway.GroupExists(ctx, def.GroupID)
	if err != nil {
		return OpenResult{}, err
	}
	if !live {
		return OpenResult{}, fmt.Errorf("category %q active group %s is gone: %w", categoryKey, def.GroupID, ErrInvalidCategory)
	}

	unlock := l.locks.Lock(userID)
	defer unlock()

	existing, err := l.Tickets.FindOpenByUser(ctx, userID, settings, l.Gateway)
	if err == nil {
		return OpenResult{}, &AlreadyOpenError{ChannelID: existing}
	}
	if !errors.Is(err, store.ErrNotFound) {
		return OpenResult{}, err
	}

	if settings.ModeratorRoleID == "" {
		l.Logger.Warn().Msg("no moderator role configured; ticket visible to staff via group permissions only")
	}

	name := utils.Truncate(settings.TicketNamePrefix+utils.SanitizeHandle(userHandle, userID)+"-"+categoryKey, channelNameLimit)
	channelID, err := l.Gateway.CreateChannel(ctx, def.GroupID, name, ticketOpenEffects(userID, settings.ModeratorRoleID), models.ChannelMetadata{
		Topic:  fmt.Sprintf("Ticket for %s (%s) | Section: %s", userHandle, userID, def.Name),
		Reason: fmt.Sprintf("Ticket opened by %s for section %s", userHandle, categoryKey),
	})
	if err != nil {
		return OpenResult{}, err
	}

	if err := l.Tickets.Put(ctx, channelID, models.TicketRecord{UserID: userID, CategoryKey: categoryKey}); err != nil {
		// The channel exists but the index write failed; surface the failure
		// instead of pretending the ticket opened. The startup sweep cannot
		// repair this orphan, so keep the channel id in the log.
		l.Logger.Error().Err(err).Str("channel_id", channelID).Msg("ticket record write failed after channel creation")
		return OpenResult{}, fmt.Errorf("persist ticket record for %s: %w", channelID, err)
	}

	welcome := models.Outbound{
		Author: titleFor(def),
		Text: fmt.Sprintf("Welcome <@%s>! Please describe your issue. A member of the support team%s will reply here.\nYou can also reply to my private messages to reach this ticket.",
			userID, mentionRole(settings.ModeratorRoleID)),
	}
	if err := l.Gateway.SendToChannel(ctx, channelID, welcome); err != nil {
		l.Logger.Warn().Err(err).Str("channel_id", channelID).Msg("welcome message failed")
	}

	dmDelivered := true
	dm := models.Outbound{
		Author: "Ticket opened",
		Text:   fmt.Sprintf("A ticket was opened for you in section **%s**.\nChannel: <#%s>\nYou can reply to this message directly.", def.Name, channelID),
	}
	if err := l.Gateway.SendToUser(ctx, userID, dm); err != nil {
		dmDelivered = false
		l.Logger.Warn().Err(err).Str("user_id", userID).Msg("open confirmation DM failed")
		warn := models.Outbound{
			Text:       fmt.Sprintf("<@%s> I could not reach you in private messages.", userID),
			TTLSeconds: 60,
		}
		if err := l.Gateway.SendToChannel(ctx, channelID, warn); err != nil {
			l.Logger.Warn().Err(err).Str("channel_id", channelID).Msg("DM-failure warning failed")
		}
	}

	l.Logger.Info().Str("channel_id", channelID).Str("user_id", userID).Str("category", categoryKey).Msg("ticket opened")
	return OpenResult{ChannelID: channelID, ChannelName: name, CategoryKey: categoryKey, DMDelivered: dmDelivered}, nil
}

func titleFor(def models.CategoryDefinition) string {
	if def.Emoji != "" {
		return def.Emoji + " New " + def.Name + " ticket"
	}
	return "New " + def.Name + " ticket"
}

func mentionRole(roleID string) string {
	if roleID == "" {
		return ""
	}
	return " <@&" + roleID + ">"
}

type CloseProposal struct {
	Token       string    `json:"token"`
	ChannelID   string    `json:"channel_id"`
	CategoryKey string    `json:"category_key"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ProposeClose validates that the channel is a closable ticket and registers
// a pending confirmation for the actor. Nothing is mutated until the actor
// confirms within the window.
func (l *Lifecycle) ProposeClose(ctx context.Context, channelID, channelName, actorID string) (CloseProposal, error) {
	settings, err := l.Settings.Settings(ctx)
	if err != nil {
		return CloseProposal{}, err
	}

	categoryKey, err := l.resolveCategoryKey(ctx, channelID, channelName, settings)
	if err != nil {
		return CloseProposal{}, err
	}
	def, ok := settings.Categories[categoryKey]
	if !ok || def.ArchiveGroupID == "" {
		return CloseProposal{}, fmt.Errorf("category %q has no archive group: %w", categoryKey, ErrInvalidCategory)
	}
	live, err := l.Gateway.GroupExists(ctx, def.ArchiveGroupID)
	if err != nil {
		return CloseProposal{}, err
	}
	if !live {
		return CloseProposal{}, fmt.Errorf("category %q archive group %s is gone: %w", categoryKey, def.ArchiveGroupID, ErrInvalidCategory)
	}

	current, err := l.Gateway.CurrentGroupOf(ctx, channelID)
	if err != nil {
		return CloseProposal{}, err
	}
	if current == def.ArchiveGroupID {
		return CloseProposal{}, ErrAlreadyArchived
	}

	e := l.pending.propose(channelID, channelName, actorID, categoryKey)
	return CloseProposal{Token: e.Token, ChannelID: channelID, CategoryKey: categoryKey, ExpiresAt: e.ExpiresAt}, nil
}

// resolveCategoryKey prefers the stored record; when the record is missing it
// falls back to matching the channel name suffix against the registry. The
// fallback is best-effort only and requires the ticket name prefix.
func (l *Lifecycle) resolveCategoryKey(ctx context.Context, channelID, channelName string, settings models.Settings) (string, error) {
	rec, err := l.Tickets.Get(ctx, channelID)
	if err == nil && rec.CategoryKey != "" {
		return rec.CategoryKey, nil
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", err
	}

	if !strings.HasPrefix(channelName, settings.TicketNamePrefix) {
		return "", fmt.Errorf("channel %s does not look like a ticket: %w", channelID, ErrCannotInfer)
	}
	parts := strings.Split(channelName, "-")
	suffix := parts[len(parts)-1]
	if _, ok := settings.Categories[suffix]; !ok {
		return "", fmt.Errorf("channel name suffix %q matches no category: %w", suffix, ErrCannotInfer)
	}
	l.Logger.Info().Str("channel_id", channelID).Str("category", suffix).Msg("category inferred from channel name")
	return suffix, nil
}

type CloseResult struct {
	ChannelID      string `json:"channel_id"`
	ArchiveGroupID string `json:"archive_group_id"`
	OwnerNotified  bool   `json:"owner_notified"`
}

// ConfirmClose executes a pending close: the channel moves into the archive
// group with archival permissions and a marker name, then the record is
// deleted. Provisioning failure leaves the ticket open and the store
// untouched.
func (l *Lifecycle) ConfirmClose(ctx context.Context, token, actorID string) (CloseResult, error) {
	e, err := l.pending.take(token, actorID)
	if err != nil {
		return CloseResult{}, err
	}

	settings, err := l.Settings.Settings(ctx)
	if err != nil {
		return CloseResult{}, err
	}
	def, ok := settings.Categories[e.CategoryKey]
	if !ok || def.ArchiveGroupID == "" {
		return CloseResult{}, fmt.Errorf("category %q has no archive group: %w", e.CategoryKey, ErrInvalidCategory)
	}

	// The record may be gone (inferred-category path); the owner is then
	// unknown and the close proceeds without owner-specific effects.
	ownerID := ""
	if rec, err := l.Tickets.Get(ctx, e.ChannelID); err == nil {
		ownerID = rec.UserID
	}

	lockKey := ownerID
	if lockKey == "" {
		lockKey = "channel:" + e.ChannelID
	}
	unlock := l.locks.Lock(lockKey)
	defer unlock()

	newName := utils.Truncate(archivedPrefix+strings.TrimPrefix(e.ChannelName, settings.TicketNamePrefix), channelNameLimit)
	if err := l.Gateway.MoveAndRename(ctx, e.ChannelID, def.ArchiveGroupID, newName, ticketArchiveEffects(ownerID, settings.ModeratorRoleID)); err != nil {
		return CloseResult{}, err
	}

	if err := l.Tickets.Remove(ctx, e.ChannelID); err != nil {
		l.Logger.Error().Err(err).Str("channel_id", e.ChannelID).Msg("record removal failed after archive; sweep will retry")
	}

	notified := false
	if ownerID != "" {
		dm := models.Outbound{
			Author: "Ticket closed",
			Text:   fmt.Sprintf("Your ticket in section **%s** was closed and archived.", def.Name),
		}
		if err := l.Gateway.SendToUser(ctx, ownerID, dm); err != nil {
			l.Logger.Warn().Err(err).Str("user_id", ownerID).Msg("close notification DM failed")
		} else {
			notified = true
		}
	}

	l.Logger.Info().Str("channel_id", e.ChannelID).Str("category", e.CategoryKey).Str("actor_id", actorID).Msg("ticket archived")
	return CloseResult{ChannelID: e.ChannelID, ArchiveGroupID: def.ArchiveGroupID, OwnerNotified: notified}, nil
}

// CancelClose drops a pending confirmation. Unknown tokens are a no-op.
func (l *Lifecycle) CancelClose(token, actorID string) error {
	return l.pending.cancel(token, actorID)
}

// CreateCategory provisions the active/archive group pair and registers the
// definition. Partially created remote state is rolled back on failure.
func (l *Lifecycle) CreateCategory(ctx context.Context, key, displayName, emoji string) (string, models.CategoryDefinition, error) {
	key = store.NormalizeKey(key)
	if key == "" {
		return "", models.CategoryDefinition{}, fmt.Errorf("category key is empty: %w", store.ErrInvalid)
	}

	select {
	case l.categoryMu <- struct{}{}:
		defer func() { <-l.categoryMu }()
	case <-ctx.Done():
		return "", models.CategoryDefinition{}, ctx.Err()
	}

	settings, err := l.Settings.Settings(ctx)
	if err != nil {
		return "", models.CategoryDefinition{}, err
	}
	if _, ok := settings.Categories[key]; ok {
		return "", models.CategoryDefinition{}, fmt.Errorf("category %q: %w", key, store.ErrConflict)
	}

	activeName := displayName
	if emoji != "" {
		activeName = emoji + " " + displayName
	}
	activeID, err := l.Gateway.CreateGroup(ctx, utils.Truncate(activeName, channelNameLimit), groupActiveEffects(settings.ModeratorRoleID))
	if err != nil {
		return "", models.CategoryDefinition{}, err
	}

	archiveID, err := l.Gateway.CreateGroup(ctx, utils.Truncate("📦 Archived - "+displayName, channelNameLimit), groupArchiveEffects(settings.ModeratorRoleID))
	if err != nil {
		if rbErr := l.Gateway.DeleteGroup(ctx, activeID); rbErr != nil {
			l.Logger.Warn().Err(rbErr).Str("group_id", activeID).Msg("rollback of active group failed")
		}
		return "", models.CategoryDefinition{}, err
	}

	def := models.CategoryDefinition{Name: displayName, GroupID: activeID, Emoji: emoji, ArchiveGroupID: archiveID}
	if err := l.Settings.AddCategory(ctx, key, def); err != nil {
		for _, id := range []string{activeID, archiveID} {
			if rbErr := l.Gateway.DeleteGroup(ctx, id); rbErr != nil {
				l.Logger.Warn().Err(rbErr).Str("group_id", id).Msg("rollback of category group failed")
			}
		}
		return "", models.CategoryDefinition{}, err
	}

	l.Logger.Info().Str("category", key).Str("group_id", activeID).Str("archive_group_id", archiveID).Msg("category created")
	return key, def, nil
}

// ReplyToOwner sends a staff reply into the ticket owner's private stream.
// When the owner blocks private messages the reply is posted into the ticket
// channel instead so it is not lost, and ErrBlocked is returned.
func (l *Lifecycle) ReplyToOwner(ctx context.Context, channelID, actorID, actorName, text string) error {
	rec, err := l.Tickets.Get(ctx, channelID)
	if err != nil {
		return err
	}

	dm := models.Outbound{
		Author: fmt.Sprintf("Reply from the support team (%s)", actorName),
		Text:   text,
	}
	if err := l.Gateway.SendToUser(ctx, rec.UserID, dm); err != nil {
		if errors.Is(err, gateway.ErrBlocked) {
			fallback := models.Outbound{
				Text: fmt.Sprintf("Could not deliver this reply to <@%s> in private. Message from <@%s>:\n>>> %s", rec.UserID, actorID, text),
			}
			if sendErr := l.Gateway.SendToChannel(ctx, channelID, fallback); sendErr != nil {
				l.Logger.Warn().Err(sendErr).Str("channel_id", channelID).Msg("blocked-reply fallback failed")
			}
		}
		return err
	}

	echo := models.Outbound{
		Author: fmt.Sprintf("Reply sent to the owner by %s", actorName),
		Text:   text,
	}
	if err := l.Gateway.SendToChannel(ctx, channelID, echo); err != nil {
		l.Logger.Warn().Err(err).Str("channel_id", channelID).Msg("reply echo failed")
	}
	return nil
}

// PostEntryMessage publishes the persistent open-ticket entry point into a
// channel.
func (l *Lifecycle) PostEntryMessage(ctx context.Context, channelID, text, buttonLabel string) error {
	return l.Gateway.SendToChannel(ctx, channelID, models.Outbound{
		Text:        text,
		ButtonLabel: buttonLabel,
	})
}
