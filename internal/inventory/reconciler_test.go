package inventory

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cannibal3004/ai-dungeon-master-sub001/internal/models"
	"github.com/cannibal3004/ai-dungeon-master-sub001/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Output: io.Discard})
}

func TestApplyAddsItemsAndGold(t *testing.T) {
	snapshot := models.CharacterSnapshot{
		Money: 10,
		Inventory: []models.InventoryLine{
			{Name: "Torch", Quantity: 1},
		},
	}
	delta := models.InventoryDelta{
		ItemsAdded: []string{"Torch", "Rope"},
		GoldChange: 5,
	}

	next, changed := Apply(snapshot, delta)
	require.True(t, changed)
	assert.Equal(t, 15, next.Money)
	assert.Equal(t, []models.InventoryLine{
		{Name: "Torch", Quantity: 2},
		{Name: "Rope", Quantity: 1},
	}, next.Inventory)

	// input snapshot untouched
	assert.Equal(t, 10, snapshot.Money)
	assert.Equal(t, 1, snapshot.Inventory[0].Quantity)
}

func TestApplyRemovalIsCaseInsensitive(t *testing.T) {
	snapshot := models.CharacterSnapshot{
		Inventory: []models.InventoryLine{
			{Name: "Healing Potion", Quantity: 2},
		},
	}
	delta := models.InventoryDelta{ItemsRemoved: []string{"healing potion"}}

	next, changed := Apply(snapshot, delta)
	require.True(t, changed)
	assert.Equal(t, []models.InventoryLine{
		{Name: "Healing Potion", Quantity: 1},
	}, next.Inventory)
}

func TestApplyRemovesExhaustedLine(t *testing.T) {
	snapshot := models.CharacterSnapshot{
		Inventory: []models.InventoryLine{
			{Name: "Torch", Quantity: 1},
			{Name: "Rope", Quantity: 1},
		},
	}
	delta := models.InventoryDelta{ItemsRemoved: []string{"Torch"}}

	next, _ := Apply(snapshot, delta)
	assert.Equal(t, []models.InventoryLine{
		{Name: "Rope", Quantity: 1},
	}, next.Inventory)
}

func TestApplyUnknownRemovalIsNoOp(t *testing.T) {
	snapshot := models.CharacterSnapshot{
		Inventory: []models.InventoryLine{{Name: "Torch", Quantity: 1}},
	}
	delta := models.InventoryDelta{ItemsRemoved: []string{"Sword"}, GoldChange: 1}

	next, changed := Apply(snapshot, delta)
	require.True(t, changed)
	assert.Equal(t, snapshot.Inventory, next.Inventory)
	assert.Equal(t, snapshot.Money+1, next.Money)
}

func TestApplyGoldCanGoNegative(t *testing.T) {
	snapshot := models.CharacterSnapshot{Money: 3}
	next, _ := Apply(snapshot, models.InventoryDelta{GoldChange: -10})
	assert.Equal(t, -7, next.Money)
}

func TestApplyZeroDeltaChangesNothing(t *testing.T) {
	snapshot := models.CharacterSnapshot{Money: 10}
	next, changed := Apply(snapshot, models.InventoryDelta{})
	assert.False(t, changed)
	assert.Equal(t, snapshot, next)
}

type fakeStore struct {
	updateErr     error
	getErr        error
	updated       *models.CharacterPatch
	authoritative *models.CharacterSnapshot
}

func (f *fakeStore) UpdateCharacter(_ context.Context, _ string, patch models.CharacterPatch) error {
	f.updated = &patch
	return f.updateErr
}

func (f *fakeStore) GetCharacter(_ context.Context, _ string) (*models.CharacterSnapshot, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.authoritative, nil
}

func TestApplyAndPersistPrefersAuthoritativeRecord(t *testing.T) {
	store := &fakeStore{
		authoritative: &models.CharacterSnapshot{ID: "c1", Money: 99},
	}
	r := NewReconciler(store, testLogger())

	next := r.ApplyAndPersist(context.Background(),
		models.CharacterSnapshot{ID: "c1", Money: 10},
		models.InventoryDelta{GoldChange: 5},
	)

	require.NotNil(t, store.updated)
	require.NotNil(t, store.updated.Money)
	assert.Equal(t, 15, *store.updated.Money)
	assert.Equal(t, 99, next.Money)
}

func TestApplyAndPersistDegradesToOptimisticOnFault(t *testing.T) {
	store := &fakeStore{updateErr: errors.New("unreachable")}
	r := NewReconciler(store, testLogger())

	next := r.ApplyAndPersist(context.Background(),
		models.CharacterSnapshot{ID: "c1", Money: 10},
		models.InventoryDelta{GoldChange: 5},
	)
	assert.Equal(t, 15, next.Money)
}

func TestApplyAndPersistSkipsZeroDelta(t *testing.T) {
	store := &fakeStore{}
	r := NewReconciler(store, testLogger())

	snapshot := models.CharacterSnapshot{ID: "c1", Money: 10}
	next := r.ApplyAndPersist(context.Background(), snapshot, models.InventoryDelta{})

	assert.Nil(t, store.updated)
	assert.Equal(t, snapshot, next)
}
