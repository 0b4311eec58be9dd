package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInventoryLineAcceptsBareString(t *testing.T) {
	var inv []InventoryLine
	err := json.Unmarshal([]byte(`["Torch", "Rope"]`), &inv)
	require.NoError(t, err)

	require.Len(t, inv, 2)
	assert.Equal(t, InventoryLine{Name: "Torch", Quantity: 1}, inv[0])
	assert.Equal(t, InventoryLine{Name: "Rope", Quantity: 1}, inv[1])
}

func TestInventoryLineAcceptsPairObject(t *testing.T) {
	var line InventoryLine
	err := json.Unmarshal([]byte(`{"name": "Arrow", "quantity": 20}`), &line)
	require.NoError(t, err)
	assert.Equal(t, InventoryLine{Name: "Arrow", Quantity: 20}, line)
}

func TestInventoryLineQuantityFloorsAtOne(t *testing.T) {
	var line InventoryLine
	err := json.Unmarshal([]byte(`{"name": "Torch", "quantity": 0}`), &line)
	require.NoError(t, err)
	assert.Equal(t, 1, line.Quantity)
}

func TestInventoryDeltaIsZero(t *testing.T) {
	assert.True(t, InventoryDelta{}.IsZero())
	assert.False(t, InventoryDelta{GoldChange: -3}.IsZero())
	assert.False(t, InventoryDelta{ItemsAdded: []string{"Torch"}}.IsZero())
}

func TestCurrentCombatant(t *testing.T) {
	state := CombatState{
		Round:            1,
		CurrentTurnIndex: 1,
		TurnOrder: []Combatant{
			{ID: "pc", Name: "Hero", IsPlayer: true},
			{ID: "e1", Name: "Goblin"},
		},
	}
	current, ok := state.CurrentCombatant()
	require.True(t, ok)
	assert.Equal(t, "e1", current.ID)

	state.CurrentTurnIndex = 5
	_, ok = state.CurrentCombatant()
	assert.False(t, ok)
}
