package engine

import (
	"github.com/clinsim/clinsim/internal/casefile"
	"github.com/clinsim/clinsim/internal/session"
)

// candidate is one revealable block together with how it would be revealed.
type candidate struct {
	block   casefile.Block
	trigger string
}

// resolve picks the single block a recognized intent should reveal right
// now, without mutating the session. It returns false when the intent maps
// to nothing revealable, which includes fully exhausted escalation groups.
//
// For each mapped group the next step is the lowest-level unrevealed block
// whose prerequisites are satisfied. Direct block candidates must be
// unrevealed with satisfied prerequisites. Among all eligible candidates
// the winner is chosen by critical flag first, then lowest level, then
// declaration order.
func resolve(cs *casefile.Case, s *session.Session, intentID string) (casefile.Block, string, bool) {
	var eligible []candidate

	for _, target := range cs.Candidates(intentID) {
		if cs.IsGroup(target) {
			if b, ok := nextInGroup(cs, s, target); ok {
				eligible = append(eligible, candidate{block: b, trigger: TriggerEscalate})
			}
			continue
		}
		b, ok := cs.Block(target)
		if !ok {
			continue
		}
		if s.Revealable(b) == nil {
			eligible = append(eligible, candidate{block: b, trigger: TriggerDirect})
		}
	}

	if len(eligible) == 0 {
		return casefile.Block{}, "", false
	}

	best := eligible[0]
	for _, c := range eligible[1:] {
		if better(cs, c.block, best.block) {
			best = c
		}
	}
	return best.block, best.trigger, true
}

// nextInGroup returns the group's next escalation step: the lowest-level
// block that is currently revealable, in (level, declaration) order. In
// the usual authoring pattern each level is gated on the previous one, so
// the walk advances exactly one level per repeated query.
func nextInGroup(cs *casefile.Case, s *session.Session, groupID string) (casefile.Block, bool) {
	for _, b := range cs.GroupBlocks(groupID) {
		if s.Revealable(b) == nil {
			return b, true
		}
	}
	return casefile.Block{}, false
}

func better(cs *casefile.Case, a, b casefile.Block) bool {
	if a.IsCritical != b.IsCritical {
		return a.IsCritical
	}
	if a.Level != b.Level {
		return a.Level < b.Level
	}
	return cs.BlockOrder(a.ID) < cs.BlockOrder(b.ID)
}
