// Package video orchestrates consultation video sessions: lazy room
// creation on first join, the join time window, per-role meeting tokens,
// and consultation close-out.
package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/caredial/telehealth-platform/pkg/logging"
)

var tracer = otel.Tracer("caredial.internal.video")

// Room is a provider-side video room.
type Room struct {
	Name string
	URL  string
}

// RoomProvider is the external video service capability.
type RoomProvider interface {
	CreateRoom(ctx context.Context, name string, expiry time.Duration) (*Room, error)
	DeleteRoom(ctx context.Context, name string) error
	CreateMeetingToken(ctx context.Context, roomName, userID string, isOwner bool, expiry time.Duration) (string, error)
}

// ProviderClient talks to the video provider's REST API.
type ProviderClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

func NewProviderClient(apiKey, baseURL string, logger *logging.Logger) *ProviderClient {
	if logger == nil {
		logger = logging.Default()
	}
	if baseURL == "" {
		baseURL = "https://api.daily.co/v1"
	}
	return &ProviderClient{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// CreateRoom creates a private room that self-expires after expiry.
func (c *ProviderClient) CreateRoom(ctx context.Context, name string, expiry time.Duration) (*Room, error) {
	ctx, span := tracer.Start(ctx, "provider.create_room")
	defer span.End()
	span.SetAttributes(attribute.String("caredial.room_name", name))

	body := map[string]any{
		"name":    name,
		"privacy": "private",
		"properties": map[string]any{
			"exp":               time.Now().Add(expiry).Unix(),
			"eject_at_room_exp": true,
		},
	}
	var parsed struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	}
	if err := c.do(ctx, http.MethodPost, "/rooms", body, &parsed); err != nil {
		return nil, err
	}
	if parsed.URL == "" {
		return nil, fmt.Errorf("video: provider response missing room url")
	}
	return &Room{Name: parsed.Name, URL: parsed.URL}, nil
}

// DeleteRoom removes a room, force-disconnecting any participants.
func (c *ProviderClient) DeleteRoom(ctx context.Context, name string) error {
	ctx, span := tracer.Start(ctx, "provider.delete_room")
	defer span.End()
	span.SetAttributes(attribute.String("caredial.room_name", name))

	return c.do(ctx, http.MethodDelete, "/rooms/"+name, nil, nil)
}

// CreateMeetingToken mints a join token scoped to one room and user.
// isOwner grants provider-side moderation privileges.
func (c *ProviderClient) CreateMeetingToken(ctx context.Context, roomName, userID string, isOwner bool, expiry time.Duration) (string, error) {
	ctx, span := tracer.Start(ctx, "provider.create_token")
	defer span.End()
	span.SetAttributes(
		attribute.String("caredial.room_name", roomName),
		attribute.Bool("caredial.is_owner", isOwner),
	)

	body := map[string]any{
		"properties": map[string]any{
			"room_name": roomName,
			"user_id":   userID,
			"is_owner":  isOwner,
			"exp":       time.Now().Add(expiry).Unix(),
		},
	}
	var parsed struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/meeting-tokens", body, &parsed); err != nil {
		return "", err
	}
	if parsed.Token == "" {
		return "", fmt.Errorf("video: provider response missing token")
	}
	return parsed.Token, nil
}

func (c *ProviderClient) do(ctx context.Context, method, path string, body, out any) error {
	if c.apiKey == "" {
		return fmt.Errorf("video: no provider credentials configured")
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("video: encode payload: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("video: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("video: provider http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("video: provider status %d: %s", resp.StatusCode, string(raw))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("video: decode response: %w", err)
	}
	return nil
}
