package ws

import (
	"encoding/json"

	"github.com/cannibal3004/ai-dungeon-master-sub001/internal/models"
)

// Envelope is the framing used on the push channel in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content,omitempty"`
}

// Server-pushed event types.
const (
	EventNarrative        = "narrative"
	EventCombatState      = "combat_state"
	EventCombatHPUpdated  = "combat_hp_updated"
	EventCombatAttack     = "combat_attack_result"
	EventCombatEnded      = "combat_ended"
	EventCombatError      = "combat_error"
	EventGameError        = "game_error"
	EventCharacterUpdated = "character_updated"
	EventAudioReady       = "audio_ready"
	EventAmbienceReady    = "ambience_ready"
)

// Client-emitted intent types.
const (
	IntentJoinRoom   = "join_room"
	IntentGameAction = "game_action"
	IntentAttack     = "combat_attack"
	IntentNextTurn   = "combat_next_turn"
)

// NarrativeEvent is a block of story text plus optional side-channel data.
type NarrativeEvent struct {
	MessageID   string                 `json:"message_id"`
	Content     string                 `json:"content"`
	Timestamp   string                 `json:"timestamp"`
	Delta       *models.InventoryDelta `json:"inventory_delta,omitempty"`
	Enemies     []models.EntityRef     `json:"enemies,omitempty"`
	AudioURL    string                 `json:"audio_url,omitempty"`
	AmbienceURL string                 `json:"ambience_url,omitempty"`
}

// CombatHPEvent patches a single combatant's hit points.
type CombatHPEvent struct {
	CombatantID string `json:"combatant_id"`
	HP          int    `json:"hp"`
	MaxHP       int    `json:"max_hp"`
}

// AttackResultEvent describes a resolved attack, for display only.
type AttackResultEvent struct {
	AttackerName string `json:"attacker_name"`
	TargetName   string `json:"target_name"`
	Hit          bool   `json:"hit"`
	Critical     bool   `json:"critical"`
	Damage       int    `json:"damage"`
	AttackRoll   int    `json:"attack_roll"`
	DamageRoll   string `json:"damage_roll"`
}

// ErrorEvent carries a human-readable failure message.
type ErrorEvent struct {
	Message string `json:"message"`
}

// AudioReadyEvent announces a generated clip scoped to a campaign.
type AudioReadyEvent struct {
	CampaignID string `json:"campaign_id"`
	URL        string `json:"url"`
}

// JoinRoomIntent announces room membership. It is re-sent after every
// reconnect because the transport does not preserve membership across
// connections.
type JoinRoomIntent struct {
	CampaignID string `json:"campaign_id"`
	UserID     string `json:"user_id"`
}

// GameActionIntent submits a free-text player action.
type GameActionIntent struct {
	CampaignID  string `json:"campaign_id"`
	CharacterID string `json:"character_id"`
	Action      string `json:"action"`
}

// AttackIntent submits an attack for server-side resolution.
type AttackIntent struct {
	CampaignID   string `json:"campaign_id"`
	AttackerID   string `json:"attacker_id"`
	AttackerName string `json:"attacker_name"`
	TargetID     string `json:"target_id"`
	TargetName   string `json:"target_name"`
	AttackBonus  int    `json:"attack_bonus"`
	TargetAC     int    `json:"target_ac"`
	DamageDice   string `json:"damage_dice"`
	DamageType   string `json:"damage_type"`
	Advantage    bool   `json:"advantage"`
	Disadvantage bool   `json:"disadvantage"`
}

// NextTurnIntent asks the server to advance the turn order.
type NextTurnIntent struct {
	CampaignID string `json:"campaign_id"`
}

// NewEnvelope marshals content into an Envelope. Marshal failures are
// programmer errors (all payload types above are plain structs) and panic.
func NewEnvelope(eventType string, content any) Envelope {
	raw, err := json.Marshal(content)
	if err != nil {
		panic(err)
	}
	return Envelope{Type: eventType, Content: raw}
}
