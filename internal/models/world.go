package models

// EntityKind categorizes world entities pooled for mention matching.
type EntityKind string

const (
	EntityLocation EntityKind = "location"
	EntityNPC      EntityKind = "npc"
	EntityShop     EntityKind = "shop"
	EntityItem     EntityKind = "item"
	EntityEnemy    EntityKind = "enemy"
)

// EntityRef is a named world entity referenced by narrative text.
type EntityRef struct {
	ID   string     `json:"id"`
	Name string     `json:"name"`
	Kind EntityKind `json:"kind"`
}

// WorldEntities is a campaign's known entity sets, fetched at session start.
type WorldEntities struct {
	Locations []EntityRef `json:"locations"`
	NPCs      []EntityRef `json:"npcs"`
	Shops     []EntityRef `json:"shops"`
	Items     []EntityRef `json:"items"`
}

// All flattens the category sets into one pool.
func (w WorldEntities) All() []EntityRef {
	out := make([]EntityRef, 0, len(w.Locations)+len(w.NPCs)+len(w.Shops)+len(w.Items))
	out = append(out, w.Locations...)
	out = append(out, w.NPCs...)
	out = append(out, w.Shops...)
	out = append(out, w.Items...)
	return out
}

// Quest is a campaign quest record, fetched by status.
type Quest struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

// SaveRecord is a named save scoped to a campaign.
type SaveRecord struct {
	ID         string `json:"id"`
	CampaignID string `json:"campaign_id"`
	Name       string `json:"name"`
	CreatedAt  string `json:"created_at"`
}
