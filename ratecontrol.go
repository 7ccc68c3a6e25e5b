package pyrowave

// resolveRateControl selects which quantisation operations to apply so the
// packed frame fits targetBytes. Buckets are walked from the cheapest
// distortion per saved byte upward; whole buckets are adopted while even
// their total still leaves a deficit, and inside the straddling bucket
// operations are adopted sub-bucket by sub-bucket until the deficit is
// met. chosen receives the final per-32x32 depth (zero for untouched
// blocks).
//
// Termination is guaranteed: the deepest operation of every chain empties
// its block, so the whole frame can always be driven to zero payload. The
// return value reports overflow: the target was unreachable even after
// adopting every operation, which only happens when the budget cannot
// cover the frame's fixed overhead.
func resolveRateControl(r *rdoBuckets, totalBytes, targetBytes int, chosen []uint8) bool {
	for i := range chosen {
		chosen[i] = 0
	}
	deficit := int64(totalBytes) - int64(targetBytes)
	if deficit <= 0 {
		return false
	}

	adopt := func(slot int) {
		for _, op := range r.ops[slot] {
			if uint8(op.depth) > chosen[op.block] {
				chosen[op.block] = uint8(op.depth)
			}
		}
	}

	var cum int64
	for bucket := range numRDOBuckets {
		base := bucket * blockSpaceSubdivision
		var bucketTotal int64
		for sub := range blockSpaceSubdivision {
			bucketTotal += r.savings[base+sub]
		}

		if cum+bucketTotal < deficit {
			for sub := range blockSpaceSubdivision {
				adopt(base + sub)
			}
			cum += bucketTotal
			continue
		}

		for sub := range blockSpaceSubdivision {
			if cum >= deficit {
				break
			}
			adopt(base + sub)
			cum += r.savings[base+sub]
		}
		return false
	}

	return cum < deficit
}
