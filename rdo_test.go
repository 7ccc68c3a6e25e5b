package pyrowave

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBucketForSlope(t *testing.T) {
	tests := []struct {
		slope float64
		want  int
	}{
		{1.0, rdoBucketOffset},
		{2.0, rdoBucketOffset + 2},
		{0.5, rdoBucketOffset - 2},
		{1.5, rdoBucketOffset + 1}, // log2(1.5)*2 = 1.17 -> floor 1
		{0, 0},
		{-3, 0},
		{1e30, numRDOBuckets - 1},
		{1e-30, 0},
	}
	for _, tt := range tests {
		if got := bucketForSlope(tt.slope); got != tt.want {
			t.Errorf("bucketForSlope(%g) = %d, want %d", tt.slope, got, tt.want)
		}
	}
}

// statsWithSizes builds a synthetic per-depth table with the given packed
// sizes and distortions.
func statsWithSizes(sizes []int, dists []float64) *quantBlock32 {
	st := &quantBlock32{maxDepth: int8(len(sizes) - 1)}
	for depth, size := range sizes {
		if size > 0 {
			// One ballot, everything in planesBytes, sized so packedSize
			// reproduces the requested value exactly.
			st.ballots[depth] = 1
			st.planesBytes[depth] = int32(size - HeaderSize - 4)
		}
		st.dist[depth] = dists[depth]
	}
	return st
}

func TestAnalyzeBlockMonotonicBuckets(t *testing.T) {
	// Distortions chosen so the raw slopes are wildly non-monotonic; the
	// inclusive max scan must still hand the resolver a strictly
	// increasing bucket chain.
	sizes := []int{1024, 768, 512, 256, 0}
	dists := []float64{0, 100, 100.1, 300, 301}
	st := statsWithSizes(sizes, dists)

	r := newRDOBuckets(1)
	r.reset()
	r.analyzeBlock(0, st, maxQuantDepths)

	var chain []int
	var depths []int8
	for slot := range r.ops {
		for _, op := range r.ops[slot] {
			chain = append(chain, slot/blockSpaceSubdivision)
			depths = append(depths, op.depth)
		}
	}
	require.Len(t, chain, 4)
	for i := 1; i < len(chain); i++ {
		require.Greater(t, chain[i], chain[i-1], "bucket chain must be strictly increasing")
		require.Greater(t, depths[i], depths[i-1])
	}

	// Total savings across the chain drain the block completely.
	var total int64
	for slot := range r.ops {
		total += r.savings[slot]
	}
	require.EqualValues(t, 1024, total)
}

func TestAnalyzeBlockFoldsFlatDepths(t *testing.T) {
	// Depth 1 saves nothing over depth 0; its distortion must ride along
	// with the first distinct size step.
	sizes := []int{512, 512, 256, 0}
	dists := []float64{0, 5, 10, 50}
	st := statsWithSizes(sizes, dists)

	r := newRDOBuckets(1)
	r.reset()
	r.analyzeBlock(0, st, maxQuantDepths)

	var ops []rdoOp
	for slot := range r.ops {
		ops = append(ops, r.ops[slot]...)
	}
	require.Len(t, ops, 2)
	require.Equal(t, int8(2), ops[0].depth)
	require.EqualValues(t, 256, ops[0].saving)
	require.Equal(t, int8(3), ops[1].depth)
	require.EqualValues(t, 256, ops[1].saving)
}

func TestAnalyzeBlockEmptyBlock(t *testing.T) {
	st := &quantBlock32{}
	r := newRDOBuckets(1)
	r.reset()
	r.analyzeBlock(0, st, maxQuantDepths)
	for slot := range r.ops {
		require.Empty(t, r.ops[slot])
	}
}

func TestSubdivisionMapping(t *testing.T) {
	r := newRDOBuckets(1536)
	// 1536/16 = 96 -> next pow2 128 per subdivision.
	require.Equal(t, 128, r.perSubdivision)
	require.Equal(t, 0, r.slot(0, 0))
	require.Equal(t, 0, r.slot(0, 127))
	require.Equal(t, 1, r.slot(0, 128))
	require.Equal(t, 11, r.slot(0, 1535))
	require.Equal(t, blockSpaceSubdivision+11, r.slot(1, 1535))
}
