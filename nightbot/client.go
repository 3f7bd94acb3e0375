package nightbot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"command-changelog/model"
)

// DefaultBaseURL — адрес публичного API Nightbot.
const DefaultBaseURL = "https://api.nightbot.tv/1"

const channelHeader = "nightbot-channel"

// ErrNotFound возвращается, когда API отвечает 404.
var ErrNotFound = errors.New("nightbot: not found")

// Client читает каналы и команды из API Nightbot. Состояния не хранит.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient создаёт клиент с ограничением времени на каждый запрос.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type channelResponse struct {
	Channel struct {
		ID string `json:"_id"`
	} `json:"channel"`
}

type commandsResponse struct {
	Commands []apiCommand `json:"commands"`
}

type apiCommand struct {
	ID        string `json:"_id"`
	Name      string `json:"name"`
	Alias     string `json:"alias"`
	Message   string `json:"message"`
	UserLevel string `json:"userLevel"`
	Count     int    `json:"count"`
	CoolDown  int    `json:"coolDown"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

// ResolveChannel находит id канала Nightbot по имени канала Twitch.
func (c *Client) ResolveChannel(ctx context.Context, twitchName string) (string, error) {
	var payload channelResponse
	endpoint := c.baseURL + "/channels/t/" + url.PathEscape(strings.TrimSpace(twitchName))
	if err := c.getJSON(ctx, endpoint, nil, &payload); err != nil {
		return "", fmt.Errorf("nightbot: resolve channel %q: %w", twitchName, err)
	}
	if payload.Channel.ID == "" {
		return "", fmt.Errorf("nightbot: resolve channel %q: empty channel id", twitchName)
	}
	return payload.Channel.ID, nil
}

// FetchCommands загружает все команды канала. Порядок снапшота совпадает с порядком ответа.
func (c *Client) FetchCommands(ctx context.Context, channelID string) (model.Snapshot, error) {
	var payload commandsResponse
	headers := map[string]string{channelHeader: channelID}
	if err := c.getJSON(ctx, c.baseURL+"/commands", headers, &payload); err != nil {
		return model.Snapshot{}, fmt.Errorf("nightbot: fetch commands: %w", err)
	}

	cmds := make([]model.Command, 0, len(payload.Commands))
	for _, raw := range payload.Commands {
		cmd, err := raw.toModel()
		if err != nil {
			return model.Snapshot{}, fmt.Errorf("nightbot: fetch commands: %w", err)
		}
		cmds = append(cmds, cmd)
	}

	return model.NewSnapshot(cmds), nil
}

func (a apiCommand) toModel() (model.Command, error) {
	if a.Name == "" {
		return model.Command{}, fmt.Errorf("command %q without name", a.ID)
	}
	createdAt, err := parseTime(a.CreatedAt)
	if err != nil {
		return model.Command{}, fmt.Errorf("command %s: createdAt: %w", a.Name, err)
	}
	updatedAt, err := parseTime(a.UpdatedAt)
	if err != nil {
		return model.Command{}, fmt.Errorf("command %s: updatedAt: %w", a.Name, err)
	}

	return model.Command{
		ID:        a.ID,
		Name:      a.Name,
		Alias:     a.Alias,
		Message:   a.Message,
		UserLevel: a.UserLevel,
		CoolDown:  a.CoolDown,
		Count:     a.Count,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
