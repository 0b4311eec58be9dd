package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cannibal3004/ai-dungeon-master-sub001/internal/audio"
	"github.com/cannibal3004/ai-dungeon-master-sub001/internal/combat"
	"github.com/cannibal3004/ai-dungeon-master-sub001/internal/connection"
	"github.com/cannibal3004/ai-dungeon-master-sub001/internal/entity"
	"github.com/cannibal3004/ai-dungeon-master-sub001/internal/inventory"
	"github.com/cannibal3004/ai-dungeon-master-sub001/internal/models"
	"github.com/cannibal3004/ai-dungeon-master-sub001/internal/timeline"
	"github.com/cannibal3004/ai-dungeon-master-sub001/pkg/logger"
	"github.com/cannibal3004/ai-dungeon-master-sub001/pkg/ws"
)

// ResourceClient is the slice of the narrator REST API the coordinator needs
// beyond what its sub-components already hold.
type ResourceClient interface {
	GetCharacter(ctx context.Context, characterID string) (*models.CharacterSnapshot, error)
	GetCampaignEntities(ctx context.Context, campaignID string) (*models.WorldEntities, error)
	GetQuests(ctx context.Context, campaignID, status string) ([]models.Quest, error)
	CreateSave(ctx context.Context, campaignID, name string) (*models.SaveRecord, error)
	ListSaves(ctx context.Context, campaignID string) ([]models.SaveRecord, error)
	GetSave(ctx context.Context, campaignID, saveID string) (*models.SaveRecord, error)
	DeleteSave(ctx context.Context, campaignID, saveID string) error
	SubmitAction(ctx context.Context, campaignID, characterID, action string) error
}

// Identity names the session this runtime drives.
type Identity struct {
	CampaignID  string
	CharacterID string
	UserID      string
}

// ViewSnapshot is the single normalized state the rendering layer consumes.
type ViewSnapshot struct {
	Connection    string                    `json:"connection"`
	TimelineState string                    `json:"timeline_state"`
	Messages      []models.Message          `json:"messages"`
	Character     models.CharacterSnapshot  `json:"character"`
	CombatActive  bool                      `json:"combat_active"`
	Combat        *models.CombatState       `json:"combat,omitempty"`
	Audio         models.AudioPlaybackState `json:"audio"`
	Quests        []models.Quest            `json:"quests"`
}

// Coordinator wires the connection manager into the timeline store, inventory
// reconciler, combat replicator and audio orchestrator, and owns the composed
// snapshot. It is the only writer of cross-component state; each sub-component
// owns its own slice exclusively.
type Coordinator struct {
	id         Identity
	conn       *connection.Manager
	timeline   *timeline.Store
	reconciler *inventory.Reconciler
	combat     *combat.Replicator
	audio      *audio.Orchestrator
	client     ResourceClient
	log        *logger.Logger

	mu        sync.Mutex
	character models.CharacterSnapshot
	entities  map[string]models.EntityRef
	quests    []models.Quest
	status    connection.Status
}

// NewCoordinator assembles the runtime around already-constructed components.
func NewCoordinator(
	id Identity,
	conn *connection.Manager,
	store *timeline.Store,
	reconciler *inventory.Reconciler,
	replicator *combat.Replicator,
	orchestrator *audio.Orchestrator,
	client ResourceClient,
	log *logger.Logger,
) *Coordinator {
	return &Coordinator{
		id:         id,
		conn:       conn,
		timeline:   store,
		reconciler: reconciler,
		combat:     replicator,
		audio:      orchestrator,
		client:     client,
		log:        log.WithComponent("session").WithSession(id.CampaignID, id.CharacterID),
		entities:   make(map[string]models.EntityRef),
		status:     connection.StatusConnecting,
	}
}

// Run starts the session: kicks off the initial fetches and the history load,
// connects the push channel and then dispatches events until ctx ends or the
// manager disconnects. Mutation entry points run to completion one at a time,
// so ordering is purely a function of event arrival order.
func (c *Coordinator) Run(ctx context.Context) {
	// Initial fetches are suspension points; none of them block event
	// handling, and each failure leaves the last-known value in place.
	go c.loadCharacter(ctx)
	go c.loadWorld(ctx)
	go c.loadQuests(ctx)
	go c.timeline.Load(ctx, c.id.CampaignID)

	statusCh := c.conn.StatusChanges()
	c.conn.Connect(ctx)

	for {
		select {
		case env, ok := <-c.conn.Events():
			if !ok {
				return
			}
			c.dispatch(ctx, env)

		case status := <-statusCh:
			c.onStatus(status)

		case <-ctx.Done():
			c.conn.Disconnect()
			return
		}
	}
}

// Stop tears down the push channel. In-flight fetch and persistence
// operations are allowed to complete and apply their result if still
// relevant.
func (c *Coordinator) Stop() {
	c.conn.Disconnect()
}

func (c *Coordinator) onStatus(status connection.Status) {
	c.mu.Lock()
	c.status = status
	c.mu.Unlock()
	if status == connection.StatusReconnecting {
		reconnectsTotal.Inc()
	}
}

func (c *Coordinator) dispatch(ctx context.Context, env ws.Envelope) {
	eventsProcessed.WithLabelValues(env.Type).Inc()

	switch env.Type {
	case ws.EventNarrative:
		var ev ws.NarrativeEvent
		if !c.decode(env, &ev) {
			return
		}
		c.onNarrative(ctx, ev)

	case ws.EventCombatState:
		var state models.CombatState
		if !c.decode(env, &state) {
			return
		}
		c.combat.ApplyState(state)

	case ws.EventCombatHPUpdated:
		var ev ws.CombatHPEvent
		if !c.decode(env, &ev) {
			return
		}
		c.combat.ApplyHP(ev.CombatantID, ev.HP, ev.MaxHP)

	case ws.EventCombatAttack:
		var ev ws.AttackResultEvent
		if !c.decode(env, &ev) {
			return
		}
		c.appendSystem(formatAttackResult(ev))

	case ws.EventCombatEnded:
		c.combat.End()
		c.appendSystem("Combat has ended.")

	case ws.EventCombatError, ws.EventGameError:
		var ev ws.ErrorEvent
		if !c.decode(env, &ev) {
			return
		}
		c.appendSystem(ev.Message)

	case ws.EventCharacterUpdated:
		var patch models.CharacterPatch
		if !c.decode(env, &patch) {
			return
		}
		c.applyCharacterPatch(patch)

	case ws.EventAudioReady:
		var ev ws.AudioReadyEvent
		if !c.decode(env, &ev) {
			return
		}
		if ev.CampaignID == "" || ev.CampaignID == c.id.CampaignID {
			c.audio.OnClipReady(ev.URL)
		}

	case ws.EventAmbienceReady:
		var ev ws.AudioReadyEvent
		if !c.decode(env, &ev) {
			return
		}
		if ev.CampaignID == "" || ev.CampaignID == c.id.CampaignID {
			c.audio.OnAmbienceReady(ev.URL)
		}

	default:
		c.log.Debug("ignoring unknown event type", "type", env.Type)
	}
}

func (c *Coordinator) decode(env ws.Envelope, out any) bool {
	if err := json.Unmarshal(env.Content, out); err != nil {
		c.log.Warn("dropping malformed event content", "type", env.Type, "error", err.Error())
		return false
	}
	return true
}

func (c *Coordinator) onNarrative(ctx context.Context, ev ws.NarrativeEvent) {
	msg := models.Message{
		ID:       ev.MessageID,
		Kind:     models.KindNarrative,
		Content:  ev.Content,
		AudioURL: ev.AudioURL,
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if ts, err := time.Parse(time.RFC3339, ev.Timestamp); err == nil {
		msg.CreatedAt = ts
	}
	c.timeline.Append(msg)
	timelineLength.Set(float64(c.timeline.Len()))

	for _, enemy := range ev.Enemies {
		if enemy.Kind == "" {
			enemy.Kind = models.EntityEnemy
		}
		c.addEntity(enemy)
	}

	if ev.Delta != nil && !ev.Delta.IsZero() {
		delta := *ev.Delta
		snapshot := c.Character()
		// Reconciliation suspends on the persist and re-fetch; a newer
		// character_updated event arriving meanwhile wins by whole-value
		// replacement, which is the accepted last-writer-wins behavior.
		go func() {
			next := c.reconciler.ApplyAndPersist(ctx, snapshot, delta)
			c.setCharacter(next)
		}()
	}

	c.audio.OnClipReady(ev.AudioURL)
	c.audio.OnAmbienceReady(ev.AmbienceURL)
}

func (c *Coordinator) applyCharacterPatch(patch models.CharacterPatch) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.character
	if patch.HP != nil {
		next.HP = *patch.HP
	}
	if patch.MaxHP != nil {
		next.MaxHP = *patch.MaxHP
	}
	if patch.Experience != nil {
		next.Experience = *patch.Experience
	}
	if patch.Level != nil {
		next.Level = *patch.Level
	}
	if patch.Money != nil {
		next.Money = *patch.Money
	}
	if patch.Inventory != nil {
		next.Inventory = *patch.Inventory
	}
	c.character = next
}

// SubmitAction sends a free-text player action: over the push channel when
// connected, over REST otherwise. The action appears in the timeline either
// way; submission failures surface as a System entry, never as an error to
// the caller.
func (c *Coordinator) SubmitAction(ctx context.Context, action string) {
	if action == "" {
		return
	}

	c.timeline.Append(models.Message{
		ID:      uuid.New().String(),
		Kind:    models.KindAction,
		Content: action,
	})
	timelineLength.Set(float64(c.timeline.Len()))

	intent := ws.GameActionIntent{
		CampaignID:  c.id.CampaignID,
		CharacterID: c.id.CharacterID,
		Action:      action,
	}
	if err := c.conn.Send(ws.IntentGameAction, intent); err == nil {
		actionsSubmitted.WithLabelValues("ws").Inc()
		return
	}

	if err := c.client.SubmitAction(ctx, c.id.CampaignID, c.id.CharacterID, action); err != nil {
		c.log.Warn("action submission failed on both paths", "error", err.Error())
		c.appendSystem("Your action could not be delivered. It will not be repeated automatically.")
		return
	}
	actionsSubmitted.WithLabelValues("rest").Inc()
}

// SubmitAttack forwards an attack intent for the player character, subject to
// the replicator's turn and target guards.
func (c *Coordinator) SubmitAttack(targetID string, attack ws.AttackIntent) bool {
	attack.AttackerName = c.Character().Name
	return c.combat.SubmitAttack(c.id.CharacterID, targetID, attack)
}

// AdvanceTurn asks the server to move the combat turn along.
func (c *Coordinator) AdvanceTurn() bool {
	return c.combat.AdvanceTurn(c.id.CharacterID)
}

// Gesture records a user gesture from the renderer and opens the audio gate.
func (c *Coordinator) Gesture() {
	c.audio.Unlock()
}

// Audio exposes the audio orchestrator to the control surface.
func (c *Coordinator) Audio() *audio.Orchestrator {
	return c.audio
}

// CreateSave creates a named save record; failures surface in the timeline.
func (c *Coordinator) CreateSave(ctx context.Context, name string) *models.SaveRecord {
	record, err := c.client.CreateSave(ctx, c.id.CampaignID, name)
	if err != nil {
		c.log.Warn("save failed", "name", name, "error", err.Error())
		c.appendSystem(fmt.Sprintf("Saving %q failed.", name))
		return nil
	}
	c.appendSystem(fmt.Sprintf("Game saved as %q.", name))
	return record
}

// ListSaves lists the campaign's save records, empty on failure.
func (c *Coordinator) ListSaves(ctx context.Context) []models.SaveRecord {
	saves, err := c.client.ListSaves(ctx, c.id.CampaignID)
	if err != nil {
		c.log.Warn("save listing failed", "error", err.Error())
		return nil
	}
	return saves
}

// GetSave fetches a single save record, nil when missing or on failure.
func (c *Coordinator) GetSave(ctx context.Context, saveID string) *models.SaveRecord {
	record, err := c.client.GetSave(ctx, c.id.CampaignID, saveID)
	if err != nil {
		c.log.Warn("save fetch failed", "save_id", saveID, "error", err.Error())
		return nil
	}
	return record
}

// DeleteSave removes a save record; failures surface in the timeline.
func (c *Coordinator) DeleteSave(ctx context.Context, saveID string) {
	if err := c.client.DeleteSave(ctx, c.id.CampaignID, saveID); err != nil {
		c.log.Warn("save deletion failed", "save_id", saveID, "error", err.Error())
		c.appendSystem("Deleting the save failed.")
	}
}

// Highlight annotates narrative text with mentions of the known entity pool.
func (c *Coordinator) Highlight(text string) []entity.Segment {
	c.mu.Lock()
	pool := make([]models.EntityRef, 0, len(c.entities))
	for _, e := range c.entities {
		pool = append(pool, e)
	}
	c.mu.Unlock()
	return entity.Highlight(text, pool)
}

// Character returns the current character snapshot.
func (c *Coordinator) Character() models.CharacterSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.character
}

func (c *Coordinator) setCharacter(snapshot models.CharacterSnapshot) {
	c.mu.Lock()
	c.character = snapshot
	c.mu.Unlock()
}

// Snapshot composes the view consumed by the rendering layer.
func (c *Coordinator) Snapshot() ViewSnapshot {
	c.mu.Lock()
	status := c.status
	character := c.character
	quests := make([]models.Quest, len(c.quests))
	copy(quests, c.quests)
	c.mu.Unlock()

	view := ViewSnapshot{
		Connection:    string(status),
		TimelineState: string(c.timeline.State()),
		Messages:      c.timeline.Messages(),
		Character:     character,
		Audio:         c.audio.Snapshot(),
		Quests:        quests,
	}
	if state, active := c.combat.Snapshot(); active {
		view.CombatActive = true
		view.Combat = &state
	}
	return view
}

func (c *Coordinator) appendSystem(message string) {
	if message == "" {
		return
	}
	c.timeline.Append(models.Message{
		ID:      uuid.New().String(),
		Kind:    models.KindSystem,
		Content: message,
	})
	timelineLength.Set(float64(c.timeline.Len()))
}

func (c *Coordinator) addEntity(ref models.EntityRef) {
	if ref.Name == "" {
		return
	}
	key := ref.ID
	if key == "" {
		key = string(ref.Kind) + ":" + ref.Name
	}
	c.mu.Lock()
	c.entities[key] = ref
	c.mu.Unlock()
}

func (c *Coordinator) loadCharacter(ctx context.Context) {
	snapshot, err := c.client.GetCharacter(ctx, c.id.CharacterID)
	if err != nil {
		c.log.Warn("character fetch failed, keeping last-known value", "error", err.Error())
		return
	}
	c.setCharacter(*snapshot)
}

func (c *Coordinator) loadWorld(ctx context.Context) {
	world, err := c.client.GetCampaignEntities(ctx, c.id.CampaignID)
	if err != nil {
		c.log.Warn("world entity fetch failed, keeping last-known pool", "error", err.Error())
		return
	}
	for _, ref := range world.All() {
		c.addEntity(ref)
	}
}

func (c *Coordinator) loadQuests(ctx context.Context) {
	quests, err := c.client.GetQuests(ctx, c.id.CampaignID, "active")
	if err != nil {
		c.log.Warn("quest fetch failed, keeping last-known list", "error", err.Error())
		return
	}
	c.mu.Lock()
	c.quests = quests
	c.mu.Unlock()
}

func formatAttackResult(ev ws.AttackResultEvent) string {
	if !ev.Hit {
		return fmt.Sprintf("%s attacks %s and misses (rolled %d).",
			ev.AttackerName, ev.TargetName, ev.AttackRoll)
	}
	if ev.Critical {
		return fmt.Sprintf("%s critically hits %s for %d damage (%s)!",
			ev.AttackerName, ev.TargetName, ev.Damage, ev.DamageRoll)
	}
	return fmt.Sprintf("%s hits %s for %d damage (%s).",
		ev.AttackerName, ev.TargetName, ev.Damage, ev.DamageRoll)
}
