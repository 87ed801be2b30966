package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinsim/clinsim/internal/casefile"
	"github.com/clinsim/clinsim/internal/session"
)

func resolverCase(t *testing.T) *casefile.Case {
	t.Helper()
	cs, err := casefile.ParseJSON([]byte(`{
		"caseId": "c",
		"informationBlocks": [
			{"blockId": "b_first", "label": "First", "category": "x", "content": "1"},
			{"blockId": "b_second", "label": "Second", "category": "x", "content": "2"},
			{"blockId": "b_leveled", "label": "Leveled", "category": "x", "content": "3", "groupId": "grp_g", "level": 2},
			{"blockId": "g_l1", "label": "G1", "category": "x", "content": "g1", "groupId": "grp_gated", "level": 1, "prerequisites": ["b_first"]},
			{"blockId": "g_l2", "label": "G2", "category": "x", "content": "g2", "groupId": "grp_gated", "level": 2}
		],
		"intents": [
			{"intentId": "i_tie", "description": "d", "category": "x", "contexts": ["anamnesis"]},
			{"intentId": "i_mix", "description": "d", "category": "x", "contexts": ["anamnesis"]},
			{"intentId": "i_gated", "description": "d", "category": "x", "contexts": ["anamnesis"]}
		],
		"intentBlockMappings": {
			"i_tie": ["b_second", "b_first"],
			"i_mix": ["grp_g", "b_second"],
			"i_gated": ["grp_gated"]
		}
	}`))
	require.NoError(t, err)
	return cs
}

func TestResolveDeclarationOrderTieBreak(t *testing.T) {
	cs := resolverCase(t)
	s := session.NewStore().Create(cs.ID)

	// Both candidates are ungrouped level 0 non-critical; the earlier
	// declared block wins regardless of mapping order.
	b, trigger, ok := resolve(cs, s, "i_tie")
	require.True(t, ok)
	assert.Equal(t, "b_first", b.ID)
	assert.Equal(t, TriggerDirect, trigger)
}

func TestResolvePrefersLowerLevel(t *testing.T) {
	cs := resolverCase(t)
	s := session.NewStore().Create(cs.ID)

	// The group's next step sits at level 2; the level-0 direct block wins.
	b, trigger, ok := resolve(cs, s, "i_mix")
	require.True(t, ok)
	assert.Equal(t, "b_second", b.ID)
	assert.Equal(t, TriggerDirect, trigger)

	require.NoError(t, s.Reveal(b, "q"))

	b, trigger, ok = resolve(cs, s, "i_mix")
	require.True(t, ok)
	assert.Equal(t, "b_leveled", b.ID)
	assert.Equal(t, TriggerEscalate, trigger)
}

func TestResolveGroupSkipsGatedLevel(t *testing.T) {
	cs := resolverCase(t)
	s := session.NewStore().Create(cs.ID)

	// g_l1 has an unmet prerequisite, so the lowest revealable level is
	// g_l2.
	got, trigger, ok := resolve(cs, s, "i_gated")
	require.True(t, ok)
	assert.Equal(t, "g_l2", got.ID)
	assert.Equal(t, TriggerEscalate, trigger)

	b, _ := cs.Block("b_first")
	require.NoError(t, s.Reveal(b, "q"))

	// With the gate open, the shallower level is preferred again.
	got, _, ok = resolve(cs, s, "i_gated")
	require.True(t, ok)
	assert.Equal(t, "g_l1", got.ID)
}

func TestResolveExhausted(t *testing.T) {
	cs := resolverCase(t)
	s := session.NewStore().Create(cs.ID)

	for _, id := range []string{"b_first", "b_second"} {
		b, _ := cs.Block(id)
		require.NoError(t, s.Reveal(b, "q"))
	}

	_, _, ok := resolve(cs, s, "i_tie")
	assert.False(t, ok)
}
