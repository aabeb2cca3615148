package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCategory means the category is unknown or one of its groups no
	// longer resolves on the platform.
	ErrInvalidCategory = errors.New("category is not usable")
	// ErrCannotInfer means the channel has no ticket record and its name does
	// not identify a category unambiguously.
	ErrCannotInfer = errors.New("cannot determine ticket category")
	// ErrAlreadyArchived means the channel already sits under its archive group.
	ErrAlreadyArchived = errors.New("ticket is already archived")
	// ErrExpired means the close confirmation window has passed.
	ErrExpired = errors.New("confirmation expired")
	// ErrActorMismatch means someone other than the proposing actor tried to
	// confirm or cancel a close.
	ErrActorMismatch = errors.New("confirmation belongs to another actor")
)

// AlreadyOpenError reports the user's existing open ticket channel.
type AlreadyOpenError struct {
	ChannelID string
}

func (e *AlreadyOpenError) Error() string {
	return fmt.Sprintf("ticket already open in channel %s", e.ChannelID)
}
