package gateway

import (
	"context"
	"errors"

	"github.com/ticketflow/backend/internal/models"
)

var (
	// ErrNotFound means the channel, group or user does not exist remotely.
	ErrNotFound = errors.New("not found on platform")
	// ErrForbidden means the platform denied the action to our identity.
	ErrForbidden = errors.New("platform denied the action")
	// ErrBlocked means a private-stream delivery was refused by the recipient.
	ErrBlocked = errors.New("recipient blocks private messages")
)

// Provisioner is the outbound port to the chat platform. The core issues all
// remote mutations and deliveries through it and never touches the platform
// connection directly.
type Provisioner interface {
	CreateChannel(ctx context.Context, groupID, name string, effects []models.PermissionEffect, meta models.ChannelMetadata) (string, error)
	MoveAndRename(ctx context.Context, channelID, groupID, newName string, effects []models.PermissionEffect) error
	CreateGroup(ctx context.Context, name string, effects []models.PermissionEffect) (string, error)
	DeleteGroup(ctx context.Context, groupID string) error
	SendToChannel(ctx context.Context, channelID string, msg models.Outbound) error
	SendToUser(ctx context.Context, userID string, msg models.Outbound) error
	ChannelExists(ctx context.Context, channelID string) (bool, error)
	GroupExists(ctx context.Context, groupID string) (bool, error)
	CurrentGroupOf(ctx context.Context, channelID string) (string, error)
	FetchAttachment(ctx context.Context, url string) ([]byte, error)
	Acknowledge(ctx context.Context, messageID string, ok bool) error
	Ping(ctx context.Context) error
}
