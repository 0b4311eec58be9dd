package session

import (
	"context"

	"github.com/cannibal3004/ai-dungeon-master-sub001/internal/api"
	"github.com/cannibal3004/ai-dungeon-master-sub001/internal/models"
	"github.com/cannibal3004/ai-dungeon-master-sub001/internal/timeline"
)

// HistoryAdapter narrows the narrator REST client to what the timeline store
// needs, flattening the session lookup to the id alone.
type HistoryAdapter struct {
	client *api.Client
}

var _ timeline.HistorySource = (*HistoryAdapter)(nil)

func NewHistoryAdapter(client *api.Client) *HistoryAdapter {
	return &HistoryAdapter{client: client}
}

func (a *HistoryAdapter) GetActiveSession(ctx context.Context, campaignID string) (string, error) {
	session, err := a.client.GetActiveSession(ctx, campaignID)
	if err != nil {
		return "", err
	}
	return session.ID, nil
}

func (a *HistoryAdapter) GetSessionHistory(ctx context.Context, sessionID string, limit int) ([]models.Message, error) {
	return a.client.GetSessionHistory(ctx, sessionID, limit)
}
