package pyrowave

import (
	"math"
	"math/bits"
)

// Rate-distortion bucketing. Candidate quantisation operations are binned
// by their distortion-per-saved-byte slope into 128 logarithmic buckets of
// half an octave each (about 1.5 dB), and subdivided 16 ways by spatial
// block position so the resolver can trim locality-preserving subsets
// inside the straddling bucket.
const (
	numRDOBuckets         = 128
	rdoBucketOffset       = 64
	blockSpaceSubdivision = 16
)

// rdoOp is one candidate quantisation step for a 32x32 block: deepen its
// quant to depth, saving the given bytes over the previously considered
// depth.
type rdoOp struct {
	block  int32
	saving int32
	depth  int8
}

type rdoBuckets struct {
	ops     [numRDOBuckets * blockSpaceSubdivision][]rdoOp
	savings [numRDOBuckets * blockSpaceSubdivision]int64

	perSubdivision int
	subShift       int
}

func nextPow2(v int) int {
	if v <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(v-1))
}

func newRDOBuckets(blockCount int) *rdoBuckets {
	per := nextPow2((blockCount + blockSpaceSubdivision - 1) / blockSpaceSubdivision)
	return &rdoBuckets{
		perSubdivision: per,
		subShift:       bits.Len(uint(per)) - 1,
	}
}

func (r *rdoBuckets) reset() {
	for i := range r.ops {
		r.ops[i] = r.ops[i][:0]
		r.savings[i] = 0
	}
}

func (r *rdoBuckets) slot(bucket, block int) int {
	sub := block >> r.subShift
	return bucket*blockSpaceSubdivision + sub
}

func bucketForSlope(slope float64) int {
	if !(slope > 0) {
		return 0
	}
	b := rdoBucketOffset + int(math.Floor(math.Log2(slope)*2))
	if b < 0 {
		return 0
	}
	if b >= numRDOBuckets {
		return numRDOBuckets - 1
	}
	return b
}

// analyzeBlock derives the operation chain of one 32x32 block from its
// per-depth statistics. Depths that do not change the packed size fold
// into the next distinct one. Bucket assignment is forced strictly
// increasing along the chain so the resolver can never adopt a deeper
// quantisation without the shallower one.
//
// maxScaleDepth bounds the depths whose rescaled band code is still
// representable; the emptying depth needs no code and is always allowed.
func (r *rdoBuckets) analyzeBlock(block int, st *quantBlock32, maxScaleDepth int) {
	lastSize := st.packedSize(0)
	if lastSize == 0 {
		return
	}
	lastDist := st.dist[0]
	prevBucket := -1
	prevSlot := -1

	limit := min(int(st.maxDepth), maxQuantDepths)
	for depth := 1; depth <= limit; depth++ {
		if depth < limit && depth > maxScaleDepth {
			continue
		}
		size := st.packedSize(depth)
		if size >= lastSize {
			continue
		}
		saving := lastSize - size
		added := st.dist[depth] - lastDist
		bucket := bucketForSlope(added / float64(saving))
		if bucket <= prevBucket {
			bucket = prevBucket + 1
		}
		if bucket >= numRDOBuckets {
			// Chain ran past the last bucket: extend the previous
			// operation instead of breaking monotonicity.
			if prevBucket == numRDOBuckets-1 && prevSlot >= 0 {
				last := &r.ops[prevSlot][len(r.ops[prevSlot])-1]
				last.depth = int8(depth)
				last.saving += int32(saving)
				r.savings[prevSlot] += int64(saving)
				lastSize = size
				lastDist = st.dist[depth]
				continue
			}
			bucket = numRDOBuckets - 1
		}

		slot := r.slot(bucket, block)
		r.ops[slot] = append(r.ops[slot], rdoOp{
			block:  int32(block),
			saving: int32(saving),
			depth:  int8(depth),
		})
		r.savings[slot] += int64(saving)

		prevBucket = bucket
		prevSlot = slot
		lastSize = size
		lastDist = st.dist[depth]
	}
}
