package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cannibal3004/ai-dungeon-master-sub001/internal/models"
	"github.com/cannibal3004/ai-dungeon-master-sub001/pkg/config"
	"github.com/cannibal3004/ai-dungeon-master-sub001/pkg/errors"
	"github.com/cannibal3004/ai-dungeon-master-sub001/pkg/logger"
	"github.com/cannibal3004/ai-dungeon-master-sub001/pkg/resilience"
)

// Client talks to the narrator service's resource API. Every call goes
// through a circuit breaker; failures come back as AppError and callers are
// expected to keep their last-known values rather than blanking.
type Client struct {
	baseURL   string
	authToken string
	http      *http.Client
	breaker   *resilience.CircuitBreaker
	log       *logger.Logger
}

// NewClient builds a resource client from the runtime configuration.
func NewClient(cfg *config.Config, log *logger.Logger) *Client {
	return &Client{
		baseURL:   cfg.Narrator.BaseURL,
		authToken: cfg.Narrator.AuthToken,
		http:      &http.Client{Timeout: cfg.Narrator.Timeout},
		breaker:   resilience.New(resilience.DefaultConfig("narrator-api"), log),
		log:       log.WithComponent("api"),
	}
}

// sessionWireMessage is one row of the server's session history page.
type sessionWireMessage struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	AudioURL  string    `json:"audio_url,omitempty"`
}

// toMessage maps server wire fields to the timeline Message shape.
func (m sessionWireMessage) toMessage() models.Message {
	kind := models.KindNarrative
	switch m.Sender {
	case "player", "user":
		kind = models.KindAction
	case "system":
		kind = models.KindSystem
	}
	return models.Message{
		ID:        m.ID,
		Kind:      kind,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
		AudioURL:  m.AudioURL,
	}
}

// ActiveSession resolves the active session indirection for a campaign.
type ActiveSession struct {
	ID         string `json:"id"`
	CampaignID string `json:"campaign_id"`
}

// GetActiveSession fetches which session is currently active for a campaign.
func (c *Client) GetActiveSession(ctx context.Context, campaignID string) (*ActiveSession, error) {
	var session ActiveSession
	path := fmt.Sprintf("/v1/campaigns/%s/sessions/active", url.PathEscape(campaignID))
	if err := c.get(ctx, path, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// GetSessionHistory fetches up to limit most recent entries of a session's
// message history, oldest first.
func (c *Client) GetSessionHistory(ctx context.Context, sessionID string, limit int) ([]models.Message, error) {
	var page struct {
		Messages []sessionWireMessage `json:"messages"`
	}
	path := fmt.Sprintf("/v1/sessions/%s/messages?limit=%d", url.PathEscape(sessionID), limit)
	if err := c.get(ctx, path, &page); err != nil {
		return nil, err
	}

	out := make([]models.Message, 0, len(page.Messages))
	for _, m := range page.Messages {
		out = append(out, m.toMessage())
	}
	return out, nil
}

// GetCharacter fetches the authoritative character record.
func (c *Client) GetCharacter(ctx context.Context, characterID string) (*models.CharacterSnapshot, error) {
	var snapshot models.CharacterSnapshot
	path := fmt.Sprintf("/v1/characters/%s", url.PathEscape(characterID))
	if err := c.get(ctx, path, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// UpdateCharacter PATCHes the given fields onto the character record.
func (c *Client) UpdateCharacter(ctx context.Context, characterID string, patch models.CharacterPatch) error {
	path := fmt.Sprintf("/v1/characters/%s", url.PathEscape(characterID))
	return c.do(ctx, http.MethodPatch, path, patch, nil)
}

// GetCampaignEntities fetches the campaign's world-entity sets.
func (c *Client) GetCampaignEntities(ctx context.Context, campaignID string) (*models.WorldEntities, error) {
	var entities models.WorldEntities
	path := fmt.Sprintf("/v1/campaigns/%s/entities", url.PathEscape(campaignID))
	if err := c.get(ctx, path, &entities); err != nil {
		return nil, err
	}
	return &entities, nil
}

// GetQuests fetches campaign quests filtered by status ("active", "completed").
func (c *Client) GetQuests(ctx context.Context, campaignID, status string) ([]models.Quest, error) {
	var page struct {
		Quests []models.Quest `json:"quests"`
	}
	path := fmt.Sprintf("/v1/campaigns/%s/quests?status=%s", url.PathEscape(campaignID), url.QueryEscape(status))
	if err := c.get(ctx, path, &page); err != nil {
		return nil, err
	}
	return page.Quests, nil
}

// CreateSave creates a named save record scoped to the campaign.
func (c *Client) CreateSave(ctx context.Context, campaignID, name string) (*models.SaveRecord, error) {
	var record models.SaveRecord
	path := fmt.Sprintf("/v1/campaigns/%s/saves", url.PathEscape(campaignID))
	body := map[string]string{"name": name}
	if err := c.do(ctx, http.MethodPost, path, body, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// ListSaves lists the campaign's save records.
func (c *Client) ListSaves(ctx context.Context, campaignID string) ([]models.SaveRecord, error) {
	var page struct {
		Saves []models.SaveRecord `json:"saves"`
	}
	path := fmt.Sprintf("/v1/campaigns/%s/saves", url.PathEscape(campaignID))
	if err := c.get(ctx, path, &page); err != nil {
		return nil, err
	}
	return page.Saves, nil
}

// GetSave fetches one save record.
func (c *Client) GetSave(ctx context.Context, campaignID, saveID string) (*models.SaveRecord, error) {
	var record models.SaveRecord
	path := fmt.Sprintf("/v1/campaigns/%s/saves/%s", url.PathEscape(campaignID), url.PathEscape(saveID))
	if err := c.get(ctx, path, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// DeleteSave deletes a save record.
func (c *Client) DeleteSave(ctx context.Context, campaignID, saveID string) error {
	path := fmt.Sprintf("/v1/campaigns/%s/saves/%s", url.PathEscape(campaignID), url.PathEscape(saveID))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// SubmitAction submits a narrative action over REST. This is the fallback
// path used when the push channel is down.
func (c *Client) SubmitAction(ctx context.Context, campaignID, characterID, action string) error {
	path := fmt.Sprintf("/v1/campaigns/%s/actions", url.PathEscape(campaignID))
	body := map[string]string{
		"character_id": characterID,
		"action":       action,
	}
	return c.do(ctx, http.MethodPost, path, body, nil)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	return c.breaker.Execute(func() error {
		var reader io.Reader
		if body != nil {
			raw, err := json.Marshal(body)
			if err != nil {
				return errors.NewInternalServerError("ENCODE_FAILED", err.Error())
			}
			reader = bytes.NewReader(raw)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return errors.NewInternalServerError("REQUEST_FAILED", err.Error())
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.authToken != "" {
			req.Header.Set("Authorization", "Bearer "+c.authToken)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return errors.NewUpstreamError("NARRATOR_UNREACHABLE", err.Error())
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return errors.NewNotFoundError("NOT_FOUND", method+" "+path)
		}
		if resp.StatusCode >= 400 {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			c.log.Warn("narrator request failed",
				"method", method,
				"path", path,
				"status", resp.StatusCode,
			)
			return errors.NewUpstreamError("NARRATOR_ERROR",
				fmt.Sprintf("%s %s: status %d: %s", method, path, resp.StatusCode, string(raw)))
		}

		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.NewUpstreamError("DECODE_FAILED", err.Error())
		}
		return nil
	})
}
