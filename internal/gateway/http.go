package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ticketflow/backend/internal/models"
)

// HTTPProvisioner talks to the platform gateway sidecar over its REST API.
// The sidecar owns the websocket session and the bot token; this client only
// ever sees opaque channel/group/user identifiers.
type HTTPProvisioner struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

const defaultTimeout = 15 * time.Second

func (p *HTTPProvisioner) do(ctx context.Context, method, path string, in, out any) (int, error) {
	if p.Client == nil {
		p.Client = &http.Client{Timeout: defaultTimeout}
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(b)
	}

	url := strings.TrimRight(p.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.Token)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return resp.StatusCode, statusError(resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("gateway response decode: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func statusError(code int) error {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrBlocked
	default:
		return fmt.Errorf("gateway http error: %d", code)
	}
}

type createChannelRequest struct {
	GroupID string                    `json:"group_id"`
	Name    string                    `json:"name"`
	Effects []models.PermissionEffect `json:"effects"`
	Topic   string                    `json:"topic,omitempty"`
	Reason  string                    `json:"reason,omitempty"`
}

type channelResponse struct {
	ChannelID string `json:"channel_id"`
	GroupID   string `json:"group_id"`
}

func (p *HTTPProvisioner) CreateChannel(ctx context.Context, groupID, name string, effects []models.PermissionEffect, meta models.ChannelMetadata) (string, error) {
	var out channelResponse
	_, err := p.do(ctx, http.MethodPost, "/v1/channels", createChannelRequest{
		GroupID: groupID,
		Name:    name,
		Effects: effects,
		Topic:   meta.Topic,
		Reason:  meta.Reason,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.ChannelID, nil
}

type updateChannelRequest struct {
	GroupID string                    `json:"group_id"`
	Name    string                    `json:"name"`
	Effects []models.PermissionEffect `json:"effects"`
}

func (p *HTTPProvisioner) MoveAndRename(ctx context.Context, channelID, groupID, newName string, effects []models.PermissionEffect) error {
	_, err := p.do(ctx, http.MethodPatch, "/v1/channels/"+channelID, updateChannelRequest{
		GroupID: groupID,
		Name:    newName,
		Effects: effects,
	}, nil)
	return err
}

type createGroupRequest struct {
	Name    string                    `json:"name"`
	Effects []models.PermissionEffect `json:"effects"`
}

type groupResponse struct {
	GroupID string `json:"group_id"`
}

func (p *HTTPProvisioner) CreateGroup(ctx context.Context, name string, effects []models.PermissionEffect) (string, error) {
	var out groupResponse
	_, err := p.do(ctx, http.MethodPost, "/v1/groups", createGroupRequest{Name: name, Effects: effects}, &out)
	if err != nil {
		return "", err
	}
	return out.GroupID, nil
}

func (p *HTTPProvisioner) DeleteGroup(ctx context.Context, groupID string) error {
	_, err := p.do(ctx, http.MethodDelete, "/v1/groups/"+groupID, nil, nil)
	return err
}

func (p *HTTPProvisioner) SendToChannel(ctx context.Context, channelID string, msg models.Outbound) error {
	_, err := p.do(ctx, http.MethodPost, "/v1/channels/"+channelID+"/messages", msg, nil)
	return err
}

func (p *HTTPProvisioner) SendToUser(ctx context.Context, userID string, msg models.Outbound) error {
	_, err := p.do(ctx, http.MethodPost, "/v1/users/"+userID+"/messages", msg, nil)
	return err
}

func (p *HTTPProvisioner) ChannelExists(ctx context.Context, channelID string) (bool, error) {
	code, err := p.do(ctx, http.MethodGet, "/v1/channels/"+channelID, nil, nil)
	if err != nil {
		if code == http.StatusNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (p *HTTPProvisioner) GroupExists(ctx context.Context, groupID string) (bool, error) {
	code, err := p.do(ctx, http.MethodGet, "/v1/groups/"+groupID, nil, nil)
	if err != nil {
		if code == http.StatusNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (p *HTTPProvisioner) CurrentGroupOf(ctx context.Context, channelID string) (string, error) {
	var out channelResponse
	if _, err := p.do(ctx, http.MethodGet, "/v1/channels/"+channelID, nil, &out); err != nil {
		return "", err
	}
	return out.GroupID, nil
}

func (p *HTTPProvisioner) FetchAttachment(ctx context.Context, url string) ([]byte, error) {
	if p.Client == nil {
		p.Client = &http.Client{Timeout: defaultTimeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("attachment fetch failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("attachment http error: %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

type ackRequest struct {
	OK bool `json:"ok"`
}

func (p *HTTPProvisioner) Acknowledge(ctx context.Context, messageID string, ok bool) error {
	_, err := p.do(ctx, http.MethodPost, "/v1/messages/"+messageID+"/ack", ackRequest{OK: ok}, nil)
	return err
}

func (p *HTTPProvisioner) Ping(ctx context.Context) error {
	_, err := p.do(ctx, http.MethodGet, "/v1/ping", nil, nil)
	return err
}
