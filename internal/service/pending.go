package service

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/ticketflow/backend/internal/store"
)

// pendingClose is a proposed close waiting for the proposing actor to confirm
// or cancel within the confirmation window.
type pendingClose struct {
	Token       string
	ChannelID   string
	ChannelName string
	ActorID     string
	CategoryKey string
	ExpiresAt   time.Time
}

type pendingCloses struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]pendingClose
	now     func() time.Time
}

func newPendingCloses(ttl time.Duration) *pendingCloses {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &pendingCloses{
		ttl:     ttl,
		entries: map[string]pendingClose{},
		now:     time.Now,
	}
}

func newToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// sweep drops expired entries. Called under the mutex by every operation so
// stale proposals never accumulate.
func (p *pendingCloses) sweep() {
	now := p.now()
	for token, e := range p.entries {
		if now.After(e.ExpiresAt) {
			delete(p.entries, token)
		}
	}
}

func (p *pendingCloses) propose(channelID, channelName, actorID, categoryKey string) pendingClose {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sweep()
	e := pendingClose{
		Token:       newToken(),
		ChannelID:   channelID,
		ChannelName: channelName,
		ActorID:     actorID,
		CategoryKey: categoryKey,
		ExpiresAt:   p.now().Add(p.ttl),
	}
	p.entries[e.Token] = e
	return e
}

// take consumes the entry for token after checking expiry and actor identity.
func (p *pendingCloses) take(token, actorID string) (pendingClose, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[token]
	if !ok {
		return pendingClose{}, fmt.Errorf("pending close %s: %w", token, store.ErrNotFound)
	}
	if p.now().After(e.ExpiresAt) {
		delete(p.entries, token)
		return pendingClose{}, ErrExpired
	}
	if e.ActorID != actorID {
		return pendingClose{}, ErrActorMismatch
	}
	delete(p.entries, token)
	return e, nil
}

// cancel removes the entry for token. Cancelling an unknown or expired token
// is a no-op; cancelling someone else's proposal is rejected.
func (p *pendingCloses) cancel(token, actorID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sweep()
	e, ok := p.entries[token]
	if !ok {
		return nil
	}
	if e.ActorID != actorID {
		return ErrActorMismatch
	}
	delete(p.entries, token)
	return nil
}
