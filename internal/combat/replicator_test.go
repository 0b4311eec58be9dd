package combat

import (
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cannibal3004/ai-dungeon-master-sub001/internal/models"
	"github.com/cannibal3004/ai-dungeon-master-sub001/pkg/logger"
	"github.com/cannibal3004/ai-dungeon-master-sub001/pkg/ws"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Output: io.Discard})
}

type fakeSender struct {
	sent []ws.Envelope
	err  error
}

func (f *fakeSender) Send(eventType string, content any) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, ws.NewEnvelope(eventType, content))
	return nil
}

func threeWayState() models.CombatState {
	return models.CombatState{
		Round:            1,
		CurrentTurnIndex: 0,
		TurnOrder: []models.Combatant{
			{ID: "pc", Name: "Hero", HP: 20, MaxHP: 20, IsPlayer: true},
			{ID: "e1", Name: "Goblin", HP: 7, MaxHP: 7, ArmorClass: 13},
			{ID: "e2", Name: "Orc", HP: 15, MaxHP: 15, ArmorClass: 14},
		},
	}
}

func TestApplyStateReplacesWhole(t *testing.T) {
	r := NewReplicator(&fakeSender{}, "camp", testLogger())
	r.ApplyState(threeWayState())

	reordered := threeWayState()
	reordered.TurnOrder = reordered.TurnOrder[:2]
	reordered.Round = 2
	r.ApplyState(reordered)

	state, active := r.Snapshot()
	require.True(t, active)
	assert.Equal(t, 2, state.Round)
	assert.Len(t, state.TurnOrder, 2)
}

func TestApplyHPPatchesOnlyTheNamedCombatant(t *testing.T) {
	r := NewReplicator(&fakeSender{}, "camp", testLogger())
	r.ApplyState(threeWayState())

	r.ApplyHP("e2", 9, 0)

	state, _ := r.Snapshot()
	assert.Equal(t, 9, state.TurnOrder[2].HP)
	assert.Equal(t, 15, state.TurnOrder[2].MaxHP)
	assert.Equal(t, 7, state.TurnOrder[1].HP)
	assert.Equal(t, 0, state.CurrentTurnIndex)
}

func TestApplyHPUnknownIDIsNoOp(t *testing.T) {
	r := NewReplicator(&fakeSender{}, "camp", testLogger())
	r.ApplyState(threeWayState())

	r.ApplyHP("ghost", 1, 1)

	state, _ := r.Snapshot()
	assert.Equal(t, threeWayState().TurnOrder, state.TurnOrder)
}

func TestSnapshotClampsHP(t *testing.T) {
	r := NewReplicator(&fakeSender{}, "camp", testLogger())
	r.ApplyState(threeWayState())
	r.ApplyHP("e1", -4, 0)

	state, _ := r.Snapshot()
	assert.Equal(t, 0, state.TurnOrder[1].HP)
}

func TestEndReturnsToNoCombat(t *testing.T) {
	r := NewReplicator(&fakeSender{}, "camp", testLogger())
	r.ApplyState(threeWayState())
	r.End()

	assert.False(t, r.Active())
	_, active := r.Snapshot()
	assert.False(t, active)
}

func TestResolveTargetFallsBackToFirstNonPlayer(t *testing.T) {
	r := NewReplicator(&fakeSender{}, "camp", testLogger())
	r.ApplyState(threeWayState())

	target, ok := r.ResolveTarget("pc", "")
	require.True(t, ok)
	assert.Equal(t, "e1", target.ID)
}

func TestResolveTargetRejectsUnknownExplicitID(t *testing.T) {
	r := NewReplicator(&fakeSender{}, "camp", testLogger())
	r.ApplyState(threeWayState())

	_, ok := r.ResolveTarget("pc", "ghost")
	assert.False(t, ok)
}

func TestSubmitAttackFillsTargetFields(t *testing.T) {
	sender := &fakeSender{}
	r := NewReplicator(sender, "camp", testLogger())
	r.ApplyState(threeWayState())

	ok := r.SubmitAttack("pc", "", ws.AttackIntent{AttackBonus: 4, DamageDice: "1d8"})
	require.True(t, ok)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, ws.IntentAttack, sender.sent[0].Type)

	var intent ws.AttackIntent
	require.NoError(t, json.Unmarshal(sender.sent[0].Content, &intent))
	assert.Equal(t, "camp", intent.CampaignID)
	assert.Equal(t, "pc", intent.AttackerID)
	assert.Equal(t, "e1", intent.TargetID)
	assert.Equal(t, "Goblin", intent.TargetName)
	assert.Equal(t, 13, intent.TargetAC)
	assert.Equal(t, 4, intent.AttackBonus)
}

func TestSubmitAttackRejectedOutOfTurn(t *testing.T) {
	sender := &fakeSender{}
	r := NewReplicator(sender, "camp", testLogger())
	state := threeWayState()
	state.CurrentTurnIndex = 1
	r.ApplyState(state)

	assert.False(t, r.SubmitAttack("pc", "", ws.AttackIntent{}))
	assert.Empty(t, sender.sent)
}

func TestAdvanceTurnDoesNotMutateReplica(t *testing.T) {
	sender := &fakeSender{}
	r := NewReplicator(sender, "camp", testLogger())
	r.ApplyState(threeWayState())

	require.True(t, r.AdvanceTurn("pc"))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, ws.IntentNextTurn, sender.sent[0].Type)

	state, _ := r.Snapshot()
	assert.Equal(t, 0, state.CurrentTurnIndex)
}
