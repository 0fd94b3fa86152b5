package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"github.com/adamavenir/aioffice/internal/apperr"
	"github.com/adamavenir/aioffice/internal/types"
)

// ListChannels returns every channel.
func (c *Client) ListChannels(ctx context.Context) ([]types.Channel, error) {
	var out []types.Channel
	if err := c.doJSON(ctx, http.MethodGet, "/api/channels", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateChannel creates a group channel.
func (c *Client) CreateChannel(ctx context.Context, name string) (types.Channel, error) {
	var out types.Channel
	body := map[string]string{"name": name}
	if err := c.doJSON(ctx, http.MethodPost, "/api/channels", nil, body, &out); err != nil {
		return types.Channel{}, err
	}
	return out, nil
}

// DeleteChannel deletes a channel, optionally with its messages.
func (c *Client) DeleteChannel(ctx context.Context, id string, deleteMessages bool) error {
	q := url.Values{}
	q.Set("delete_messages", strconv.FormatBool(deleteMessages))
	return c.doJSON(ctx, http.MethodDelete, "/api/channels/"+seg(id), q, nil, nil)
}

// ChannelActivity returns the latest message id per channel. The server
// answers with a plain array, an {activity: [...]} envelope, or a map of
// channel id to latest id; all three are accepted.
func (c *Client) ChannelActivity(ctx context.Context, limit int) ([]types.ChannelActivity, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "/api/channels/activity", limitQuery(limit), nil, &raw); err != nil {
		return nil, err
	}
	out, err := DecodeActivity(raw)
	if err != nil {
		return nil, apperr.Server("GET /api/channels/activity", http.StatusOK, err.Error())
	}
	return out, nil
}

// DecodeActivity parses any of the activity payload shapes.
func DecodeActivity(raw []byte) ([]types.ChannelActivity, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '[' {
		var list []types.ChannelActivity
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("decode activity list: %w", err)
		}
		return list, nil
	}

	var envelope struct {
		Activity json.RawMessage `json:"activity"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode activity: %w", err)
	}
	if len(envelope.Activity) > 0 {
		return DecodeActivity(envelope.Activity)
	}

	var byChannel map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byChannel); err != nil {
		return nil, fmt.Errorf("decode activity map: %w", err)
	}
	out := make([]types.ChannelActivity, 0, len(byChannel))
	for id, v := range byChannel {
		var latest int64
		if err := json.Unmarshal(v, &latest); err != nil {
			var entry types.ChannelActivity
			if err := json.Unmarshal(v, &entry); err != nil {
				continue
			}
			latest = entry.LatestMessageID
		}
		out = append(out, types.ChannelActivity{ChannelID: id, LatestMessageID: latest})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChannelID < out[j].ChannelID })
	return out, nil
}

// Messages returns the most recent messages of a channel in id order.
func (c *Client) Messages(ctx context.Context, channel string, limit int) ([]types.Message, error) {
	var out []types.Message
	if err := c.doJSON(ctx, http.MethodGet, "/api/messages/"+seg(channel), limitQuery(limit), nil, &out); err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type reactionsResponse struct {
	Reactions types.ReactionSummary `json:"reactions"`
}

// Reactions returns the reaction summary of a message.
func (c *Client) Reactions(ctx context.Context, messageID int64) (types.ReactionSummary, error) {
	var out reactionsResponse
	path := fmt.Sprintf("/api/messages/%d/reactions", messageID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	if out.Reactions == nil {
		out.Reactions = types.ReactionSummary{}
	}
	return out.Reactions, nil
}

// ToggleReaction toggles emoji for actor and returns the resulting summary.
func (c *Client) ToggleReaction(ctx context.Context, messageID int64, emoji, actorID, actorType string) (types.ReactionSummary, error) {
	var out reactionsResponse
	path := fmt.Sprintf("/api/messages/%d/reactions", messageID)
	body := map[string]string{"emoji": emoji, "actor_id": actorID, "actor_type": actorType}
	if err := c.doJSON(ctx, http.MethodPost, path, nil, body, &out); err != nil {
		return nil, err
	}
	if out.Reactions == nil {
		out.Reactions = types.ReactionSummary{}
	}
	return out.Reactions, nil
}

// UploadFile uploads one attachment for channel.
func (c *Client) UploadFile(ctx context.Context, channel, filename string, r io.Reader) (types.FileDescriptor, error) {
	var out types.FileDescriptor
	fields := map[string]string{}
	if channel != "" {
		fields["channel"] = channel
	}
	if err := c.upload(ctx, "/api/files/upload", "file", filename, r, fields, &out); err != nil {
		return types.FileDescriptor{}, err
	}
	if out.OriginalName == "" {
		out.OriginalName = filename
	}
	return out, nil
}
