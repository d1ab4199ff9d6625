package ingest

import (
	"fmt"
	"sort"

	"stacks-event-ingest/internal/model"
)

// ReconstructMicroblocks implements spec section 4.3.1: a microblock isn't
// delivered as its own record, it's implied by the microblock-hash/sequence
// fields carried on each of its transactions. Groups are keyed on
// (microblock_hash, microblock_sequence); the earliest transaction in a
// group stands in for the group's header fields. Gaps in sequence do not
// stop reconstruction; each gap is described in the second return value,
// which the handlers in handlers.go log as warnings.
func ReconstructMicroblocks(txs []model.Transaction) ([]model.Microblock, []string) {
	type groupKey struct {
		hash string
		seq  uint16
	}
	groups := make(map[groupKey][]model.Transaction)
	var order []groupKey

	for _, tx := range txs {
		if tx.MicroblockHash == "" {
			continue
		}
		k := groupKey{hash: tx.MicroblockHash, seq: tx.MicroblockSequence}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], tx)
	}

	microblocks := make([]model.Microblock, 0, len(order))
	for _, k := range order {
		members := groups[k]
		rep := members[0]
		microblocks = append(microblocks, model.Microblock{
			MicroblockHash:       k.hash,
			MicroblockSequence:   k.seq,
			MicroblockParentHash: rep.MicroblockParentHash,
			BlockHeight:          model.SentinelBlockHeight,
			Canonical:            true,
			MicroblockCanonical:  true,
		})
	}

	sort.Slice(microblocks, func(i, j int) bool {
		return microblocks[i].MicroblockSequence < microblocks[j].MicroblockSequence
	})

	var gaps []string
	for i := 1; i < len(microblocks); i++ {
		prev, cur := microblocks[i-1].MicroblockSequence, microblocks[i].MicroblockSequence
		if cur != prev+1 {
			gaps = append(gaps, gapDescription(prev, cur))
		}
	}
	return microblocks, gaps
}

func gapDescription(prev, cur uint16) string {
	return fmt.Sprintf("microblock sequence gap between %d and %d", prev, cur)
}
