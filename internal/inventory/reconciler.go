package inventory

import (
	"context"
	"strings"

	"github.com/cannibal3004/ai-dungeon-master-sub001/internal/models"
	"github.com/cannibal3004/ai-dungeon-master-sub001/pkg/logger"
)

// Apply reconciles a delta into a character snapshot and returns the new
// snapshot plus whether anything changed. It is pure: the input snapshot is
// never mutated.
//
// Item name matching is case-insensitive. Each added name increments an
// existing line's quantity or appends a fresh quantity-1 line. Each removed
// name decrements, and a line at quantity 1 disappears entirely rather than
// holding zero. Removals that match nothing are silent no-ops. GoldChange is
// applied as-is; clamping money at zero is a UI-action concern, not the
// reconciler's.
func Apply(snapshot models.CharacterSnapshot, delta models.InventoryDelta) (models.CharacterSnapshot, bool) {
	if delta.IsZero() {
		return snapshot, false
	}

	next := snapshot
	next.Inventory = make([]models.InventoryLine, len(snapshot.Inventory))
	copy(next.Inventory, snapshot.Inventory)

	for _, name := range delta.ItemsAdded {
		if i := findLine(next.Inventory, name); i >= 0 {
			next.Inventory[i].Quantity++
		} else {
			next.Inventory = append(next.Inventory, models.InventoryLine{Name: name, Quantity: 1})
		}
	}

	for _, name := range delta.ItemsRemoved {
		i := findLine(next.Inventory, name)
		if i < 0 {
			continue
		}
		if next.Inventory[i].Quantity > 1 {
			next.Inventory[i].Quantity--
		} else {
			next.Inventory = append(next.Inventory[:i], next.Inventory[i+1:]...)
		}
	}

	next.Money = snapshot.Money + delta.GoldChange
	return next, true
}

func findLine(lines []models.InventoryLine, name string) int {
	for i, line := range lines {
		if strings.EqualFold(line.Name, name) {
			return i
		}
	}
	return -1
}

// CharacterStore is the remote side of reconciliation: persist the optimistic
// snapshot, then re-read the authoritative record. The narrator REST client
// satisfies this.
type CharacterStore interface {
	UpdateCharacter(ctx context.Context, characterID string, patch models.CharacterPatch) error
	GetCharacter(ctx context.Context, characterID string) (*models.CharacterSnapshot, error)
}

// Reconciler applies server-declared deltas to the locally held character
// snapshot and keeps the remote record in step.
type Reconciler struct {
	store CharacterStore
	log   *logger.Logger
}

// NewReconciler creates a reconciler over the given character store.
func NewReconciler(store CharacterStore, log *logger.Logger) *Reconciler {
	return &Reconciler{store: store, log: log.WithComponent("inventory")}
}

// ApplyAndPersist applies the delta locally, persists the optimistic result,
// then re-fetches the authoritative character record and prefers it over the
// optimistic value to correct for concurrent server-side mutation. An
// all-zero delta is skipped entirely: no write, no snapshot replacement.
// Persist and re-fetch faults degrade to the optimistic snapshot.
func (r *Reconciler) ApplyAndPersist(ctx context.Context, snapshot models.CharacterSnapshot, delta models.InventoryDelta) models.CharacterSnapshot {
	next, changed := Apply(snapshot, delta)
	if !changed {
		return snapshot
	}

	patch := models.CharacterPatch{
		Money:     &next.Money,
		Inventory: &next.Inventory,
	}
	if err := r.store.UpdateCharacter(ctx, next.ID, patch); err != nil {
		r.log.Warn("character persist failed, keeping optimistic snapshot", "error", err.Error())
		return next
	}

	authoritative, err := r.store.GetCharacter(ctx, next.ID)
	if err != nil {
		r.log.Warn("character re-fetch failed, keeping optimistic snapshot", "error", err.Error())
		return next
	}
	return *authoritative
}
