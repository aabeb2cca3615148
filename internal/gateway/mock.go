package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/ticketflow/backend/internal/models"
)

// MockProvisioner is an in-memory workspace. It backs local runs without a
// platform gateway and all service tests. Failure toggles simulate the
// platform denying or refusing individual operations.
type MockProvisioner struct {
	mu       sync.Mutex
	nextID   int
	Groups   map[string]string // group id -> name
	Channels map[string]MockChannel
	// Messages delivered, by destination.
	ChannelMessages map[string][]models.Outbound
	UserMessages    map[string][]models.Outbound
	Acks            map[string]bool
	Attachments     map[string][]byte // url -> content

	BlockedUsers      map[string]bool
	FailCreateChannel error
	FailCreateGroup   map[string]error // keyed by group name
	FailMove          error
	FailChannelSend   error
}

type MockChannel struct {
	Name    string
	GroupID string
}

func NewMock() *MockProvisioner {
	return &MockProvisioner{
		Groups:          map[string]string{},
		Channels:        map[string]MockChannel{},
		ChannelMessages: map[string][]models.Outbound{},
		UserMessages:    map[string][]models.Outbound{},
		Acks:            map[string]bool{},
		Attachments:     map[string][]byte{},
		BlockedUsers:    map[string]bool{},
		FailCreateGroup: map[string]error{},
	}
}

func (m *MockProvisioner) id(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

// AddGroup seeds a group and returns its id.
func (m *MockProvisioner) AddGroup(name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.id("grp")
	m.Groups[id] = name
	return id
}

// AddChannel seeds a channel under a group and returns its id.
func (m *MockProvisioner) AddChannel(name, groupID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.id("chan")
	m.Channels[id] = MockChannel{Name: name, GroupID: groupID}
	return id
}

// DropChannel simulates an out-of-band deletion by a human.
func (m *MockProvisioner) DropChannel(channelID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Channels, channelID)
}

func (m *MockProvisioner) CreateChannel(ctx context.Context, groupID, name string, effects []models.PermissionEffect, meta models.ChannelMetadata) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCreateChannel != nil {
		return "", m.FailCreateChannel
	}
	if _, ok := m.Groups[groupID]; !ok {
		return "", fmt.Errorf("group %s: %w", groupID, ErrNotFound)
	}
	id := m.id("chan")
	m.Channels[id] = MockChannel{Name: name, GroupID: groupID}
	return id, nil
}

func (m *MockProvisioner) MoveAndRename(ctx context.Context, channelID, groupID, newName string, effects []models.PermissionEffect) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailMove != nil {
		return m.FailMove
	}
	ch, ok := m.Channels[channelID]
	if !ok {
		return fmt.Errorf("channel %s: %w", channelID, ErrNotFound)
	}
	if _, ok := m.Groups[groupID]; !ok {
		return fmt.Errorf("group %s: %w", groupID, ErrNotFound)
	}
	ch.GroupID = groupID
	ch.Name = newName
	m.Channels[channelID] = ch
	return nil
}

func (m *MockProvisioner) CreateGroup(ctx context.Context, name string, effects []models.PermissionEffect) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.FailCreateGroup[name]; err != nil {
		return "", err
	}
	id := m.id("grp")
	m.Groups[id] = name
	return id, nil
}

func (m *MockProvisioner) DeleteGroup(ctx context.Context, groupID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Groups, groupID)
	return nil
}

func (m *MockProvisioner) SendToChannel(ctx context.Context, channelID string, msg models.Outbound) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailChannelSend != nil {
		return m.FailChannelSend
	}
	if _, ok := m.Channels[channelID]; !ok {
		return fmt.Errorf("channel %s: %w", channelID, ErrNotFound)
	}
	m.ChannelMessages[channelID] = append(m.ChannelMessages[channelID], msg)
	return nil
}

func (m *MockProvisioner) SendToUser(ctx context.Context, userID string, msg models.Outbound) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BlockedUsers[userID] {
		return fmt.Errorf("user %s: %w", userID, ErrBlocked)
	}
	m.UserMessages[userID] = append(m.UserMessages[userID], msg)
	return nil
}

func (m *MockProvisioner) ChannelExists(ctx context.Context, channelID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.Channels[channelID]
	return ok, nil
}

func (m *MockProvisioner) GroupExists(ctx context.Context, groupID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.Groups[groupID]
	return ok, nil
}

func (m *MockProvisioner) CurrentGroupOf(ctx context.Context, channelID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.Channels[channelID]
	if !ok {
		return "", fmt.Errorf("channel %s: %w", channelID, ErrNotFound)
	}
	return ch.GroupID, nil
}

func (m *MockProvisioner) FetchAttachment(ctx context.Context, url string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.Attachments[url]
	if !ok {
		return nil, fmt.Errorf("attachment %s: %w", url, ErrNotFound)
	}
	return b, nil
}

func (m *MockProvisioner) Acknowledge(ctx context.Context, messageID string, ok bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Acks[messageID] = ok
	return nil
}

func (m *MockProvisioner) Ping(ctx context.Context) error {
	return nil
}
