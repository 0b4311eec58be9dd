package models

// Combatant is one participant in the turn order.
type Combatant struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	HP         int    `json:"hp"`
	MaxHP      int    `json:"max_hp"`
	ArmorClass int    `json:"armor_class"`
	Initiative int    `json:"initiative"`
	IsPlayer   bool   `json:"is_player"`
}

// CombatState is the replicated turn-order state. The server pushes it whole;
// partial patching of the order is unsafe because its composition can change
// between pushes.
type CombatState struct {
	Round            int         `json:"round"`
	CurrentTurnIndex int         `json:"current_turn_index"`
	TurnOrder        []Combatant `json:"turn_order"`
}

// CurrentCombatant returns the combatant whose action is expected, or false
// when the turn order is empty or the index is out of range.
func (s CombatState) CurrentCombatant() (Combatant, bool) {
	if s.CurrentTurnIndex < 0 || s.CurrentTurnIndex >= len(s.TurnOrder) {
		return Combatant{}, false
	}
	return s.TurnOrder[s.CurrentTurnIndex], true
}
