package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ticketflow/backend/internal/gateway"
	"github.com/ticketflow/backend/internal/models"
	"github.com/ticketflow/backend/internal/store"
)

// AttachmentSizeLimit is the re-upload ceiling for owner messages. An
// attachment of exactly this size is listed instead of re-uploaded.
const AttachmentSizeLimit = 8 << 20

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".webp"}

// Relay mirrors messages between ticket channels and their owners' private
// streams. Every relayed message is independent: failures are handled inline
// and never propagate back to the originating message path.
type Relay struct {
	Settings *store.SettingsStore
	Tickets  *store.TicketStore
	Gateway  gateway.Provisioner
	Logger   zerolog.Logger
}

func NewRelay(settings *store.SettingsStore, tickets *store.TicketStore, gw gateway.Provisioner, logger zerolog.Logger) *Relay {
	return &Relay{Settings: settings, Tickets: tickets, Gateway: gw, Logger: logger}
}

func isImage(filename string) bool {
	lower := strings.ToLower(filename)
	for _, ext := range imageExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func textOrPlaceholder(s string) string {
	if strings.TrimSpace(s) == "" {
		return "[no text]"
	}
	return s
}

// ChannelMessage forwards a staff/visitor message from a ticket channel into
// the owner's private stream. Non-ticket channels, bot-authored messages and
// the owner's own messages are ignored. A blocked delivery posts a transient
// warning back into the channel.
func (r *Relay) ChannelMessage(ctx context.Context, ev models.ChannelMessageEvent) error {
	if ev.AuthorIsBot {
		return nil
	}
	rec, err := r.Tickets.Get(ctx, ev.ChannelID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if ev.AuthorID == rec.UserID {
		return nil
	}

	dm := models.Outbound{
		Author: fmt.Sprintf("Message from %s in your ticket", ev.AuthorName),
		Text:   textOrPlaceholder(ev.Content),
	}
	if len(ev.Attachments) > 0 {
		names := make([]string, 0, len(ev.Attachments))
		for _, att := range ev.Attachments {
			if dm.ImageURL == "" && isImage(att.Filename) {
				dm.ImageURL = att.URL
			}
			names = append(names, att.Filename)
		}
		dm.Fields = append(dm.Fields, models.Field{Name: "Attachments", Value: strings.Join(names, "\n")})
	}

	if err := r.Gateway.SendToUser(ctx, rec.UserID, dm); err != nil {
		if errors.Is(err, gateway.ErrBlocked) {
			warn := models.Outbound{
				Text:       fmt.Sprintf("Could not notify <@%s> (private messages closed).", rec.UserID),
				TTLSeconds: 30,
			}
			if warnErr := r.Gateway.SendToChannel(ctx, ev.ChannelID, warn); warnErr != nil {
				r.Logger.Warn().Err(warnErr).Str("channel_id", ev.ChannelID).Msg("owner-unreachable warning failed")
			}
			return nil
		}
		r.Logger.Warn().Err(err).Str("user_id", rec.UserID).Msg("owner notification failed")
	}
	return nil
}

// DirectMessage forwards an owner's private message into their open ticket
// channel. With no open ticket the message is dropped silently. Attachments
// under the size ceiling are re-uploaded; the rest are listed with a reason.
// The source message gets a success/failure acknowledgement signal.
func (r *Relay) DirectMessage(ctx context.Context, ev models.DirectMessageEvent) error {
	settings, err := r.Settings.Settings(ctx)
	if err != nil {
		return err
	}
	channelID, err := r.Tickets.FindOpenByUser(ctx, ev.UserID, settings, r.Gateway)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}

	msg := models.Outbound{
		Author: fmt.Sprintf("Message from %s via private messages", ev.UserName),
		Text:   textOrPlaceholder(ev.Content),
	}
	var skipped []string
	for _, att := range ev.Attachments {
		if att.Size >= AttachmentSizeLimit {
			skipped = append(skipped, att.Filename+" (too large)")
			continue
		}
		data, err := r.Gateway.FetchAttachment(ctx, att.URL)
		if err != nil {
			r.Logger.Warn().Err(err).Str("filename", att.Filename).Msg("attachment fetch failed")
			skipped = append(skipped, att.Filename+" (unreadable)")
			continue
		}
		msg.Files = append(msg.Files, models.FileUpload{Filename: att.Filename, Data: data})
	}
	if len(skipped) > 0 {
		msg.Fields = append(msg.Fields, models.Field{Name: "Attachments not forwarded", Value: strings.Join(skipped, "\n")})
	}

	if err := r.Gateway.SendToChannel(ctx, channelID, msg); err != nil {
		r.Logger.Warn().Err(err).Str("channel_id", channelID).Msg("owner message relay failed")
		if errors.Is(err, gateway.ErrForbidden) {
			apology := models.Outbound{Text: "Sorry, I could not forward your message to the ticket channel."}
			if dmErr := r.Gateway.SendToUser(ctx, ev.UserID, apology); dmErr != nil {
				r.Logger.Warn().Err(dmErr).Str("user_id", ev.UserID).Msg("relay-failure notice failed")
			}
		}
		if ackErr := r.Gateway.Acknowledge(ctx, ev.MessageID, false); ackErr != nil {
			r.Logger.Warn().Err(ackErr).Str("message_id", ev.MessageID).Msg("failure ack failed")
		}
		return nil
	}

	if ackErr := r.Gateway.Acknowledge(ctx, ev.MessageID, true); ackErr != nil {
		r.Logger.Warn().Err(ackErr).Str("message_id", ev.MessageID).Msg("success ack failed")
	}
	return nil
}
