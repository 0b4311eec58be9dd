package combat

import (
	"sync"

	"github.com/cannibal3004/ai-dungeon-master-sub001/internal/models"
	"github.com/cannibal3004/ai-dungeon-master-sub001/pkg/logger"
	"github.com/cannibal3004/ai-dungeon-master-sub001/pkg/ws"
)

// IntentSender emits fire-and-forget combat intents on the push channel. The
// ConnectionManager satisfies this.
type IntentSender interface {
	Send(eventType string, content any) error
}

// Replicator holds the client-side replica of the server's combat state
// machine: NoCombat, Active, then NoCombat again, one instance per combat.
// State only changes when the server pushes it; local submissions are guarded but never
// mutate the replica themselves.
type Replicator struct {
	sender     IntentSender
	campaignID string
	log        *logger.Logger

	mu    sync.Mutex
	state *models.CombatState // nil while no combat is active
}

// NewReplicator creates a replicator in the NoCombat state.
func NewReplicator(sender IntentSender, campaignID string, log *logger.Logger) *Replicator {
	return &Replicator{
		sender:     sender,
		campaignID: campaignID,
		log:        log.WithComponent("combat"),
	}
}

// Active reports whether a combat instance is running.
func (r *Replicator) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state != nil
}

// ApplyState replaces the whole combat state. Snapshot semantics are
// intentional: the turn order's composition can change between pushes, so
// partial patching would be unsafe.
func (r *Replicator) ApplyState(state models.CombatState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if state.Round < 1 {
		state.Round = 1
	}
	r.state = &state
}

// ApplyHP patches a single combatant's hit points by id, leaving the rest of
// the turn order untouched. An unknown id is a silent no-op.
func (r *Replicator) ApplyHP(combatantID string, hp, maxHP int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == nil {
		return
	}
	for i := range r.state.TurnOrder {
		if r.state.TurnOrder[i].ID == combatantID {
			r.state.TurnOrder[i].HP = hp
			if maxHP > 0 {
				r.state.TurnOrder[i].MaxHP = maxHP
			}
			return
		}
	}
	r.log.Debug("hp update for unknown combatant ignored", "combatant_id", combatantID)
}

// End terminates the current combat instance. The next combat-started push
// begins a fresh one.
func (r *Replicator) End() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = nil
}

// Snapshot returns a display copy of the combat state, hp clamped to
// [0, maxHP]. The second result is false while no combat is active.
func (r *Replicator) Snapshot() (models.CombatState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == nil {
		return models.CombatState{}, false
	}

	out := *r.state
	out.TurnOrder = make([]models.Combatant, len(r.state.TurnOrder))
	copy(out.TurnOrder, r.state.TurnOrder)
	for i := range out.TurnOrder {
		if out.TurnOrder[i].HP < 0 {
			out.TurnOrder[i].HP = 0
		}
		if out.TurnOrder[i].MaxHP > 0 && out.TurnOrder[i].HP > out.TurnOrder[i].MaxHP {
			out.TurnOrder[i].HP = out.TurnOrder[i].MaxHP
		}
	}
	return out, true
}

// ResolveTarget picks the attack target when none was chosen explicitly:
// first non-player combatant in turn order, else the first combatant whose id
// differs from the actor. False means no candidate exists and the attack
// submission must be dropped.
func (r *Replicator) ResolveTarget(actorID, explicitID string) (models.Combatant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == nil {
		return models.Combatant{}, false
	}

	if explicitID != "" {
		for _, c := range r.state.TurnOrder {
			if c.ID == explicitID {
				return c, true
			}
		}
		return models.Combatant{}, false
	}

	for _, c := range r.state.TurnOrder {
		if !c.IsPlayer {
			return c, true
		}
	}
	for _, c := range r.state.TurnOrder {
		if c.ID != actorID {
			return c, true
		}
	}
	return models.Combatant{}, false
}

// CanAct reports whether the acting identity holds the current turn. This is
// a client-side UX guard, not a security boundary; the server re-validates.
func (r *Replicator) CanAct(actorID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == nil {
		return false
	}
	current, ok := r.state.CurrentCombatant()
	return ok && current.ID == actorID
}

// SubmitAttack sends an attack intent for server-side resolution. Nothing is
// sent when the actor is out of turn or no target can be resolved; the
// replica itself never changes here.
func (r *Replicator) SubmitAttack(actorID, targetID string, attack ws.AttackIntent) bool {
	if !r.CanAct(actorID) {
		r.log.Debug("attack rejected, not the actor's turn", "actor_id", actorID)
		return false
	}

	target, ok := r.ResolveTarget(actorID, targetID)
	if !ok {
		r.log.Debug("attack dropped, no target candidate", "actor_id", actorID)
		return false
	}

	attack.CampaignID = r.campaignID
	attack.AttackerID = actorID
	attack.TargetID = target.ID
	attack.TargetName = target.Name
	attack.TargetAC = target.ArmorClass

	if err := r.sender.Send(ws.IntentAttack, attack); err != nil {
		r.log.Warn("attack intent send failed", "error", err.Error())
		return false
	}
	return true
}

// AdvanceTurn asks the server to move the turn order along. Fire and forget:
// the replica changes only when the resulting state is pushed back.
func (r *Replicator) AdvanceTurn(actorID string) bool {
	if !r.CanAct(actorID) {
		r.log.Debug("next turn rejected, not the actor's turn", "actor_id", actorID)
		return false
	}
	if err := r.sender.Send(ws.IntentNextTurn, ws.NextTurnIntent{CampaignID: r.campaignID}); err != nil {
		r.log.Warn("next turn intent send failed", "error", err.Error())
		return false
	}
	return true
}
