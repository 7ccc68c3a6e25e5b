package pyrowave

import "testing"

func TestFrameLayoutBlockCount1000x1000_420(t *testing.T) {
	l, err := NewFrameLayout(1000, 1000, Chroma420)
	if err != nil {
		t.Fatalf("NewFrameLayout: %v", err)
	}
	if l.AlignedWidth != 1024 || l.AlignedHeight != 1024 {
		t.Fatalf("aligned = %dx%d, want 1024x1024", l.AlignedWidth, l.AlignedHeight)
	}
	// Counted band by band: level 4 carries LL for all three components,
	// finer levels carry HL/LH/HH, level 0 is luma only at 4:2:0.
	if got := l.BlockCount32(); got != 1536 {
		t.Fatalf("BlockCount32 = %d, want 1536", got)
	}
}

func TestFrameLayoutEnumerationOrder(t *testing.T) {
	l, err := NewFrameLayout(1000, 1000, Chroma420)
	if err != nil {
		t.Fatalf("NewFrameLayout: %v", err)
	}

	// The coarsest level holds one 32x32 block per band: Y LL/HL/LH/HH,
	// then Cb, then Cr, then level 3 starts with Y HL.
	want := []struct {
		component int
		level     int
		band      Band
	}{
		{0, 4, BandLL}, {0, 4, BandHL}, {0, 4, BandLH}, {0, 4, BandHH},
		{1, 4, BandLL}, {1, 4, BandHL}, {1, 4, BandLH}, {1, 4, BandHH},
		{2, 4, BandLL}, {2, 4, BandHL}, {2, 4, BandLH}, {2, 4, BandHH},
		{0, 3, BandHL},
	}
	for i, w := range want {
		pos := l.Position(i)
		if pos.Component != w.component || pos.Level != w.level || pos.Band != w.band {
			t.Errorf("Position(%d) = {comp %d, level %d, %v}, want {comp %d, level %d, %v}",
				i, pos.Component, pos.Level, pos.Band, w.component, w.level, w.band)
		}
	}
}

func TestFrameLayoutBijection(t *testing.T) {
	dims := []struct {
		w, h   int
		chroma ChromaSubsampling
	}{
		{1000, 1000, Chroma420},
		{1920, 1080, Chroma420},
		{1100, 740, Chroma420},
		{640, 480, Chroma444},
		{100, 100, Chroma444},
		{2, 2, Chroma420},
	}
	for _, d := range dims {
		l, err := NewFrameLayout(d.w, d.h, d.chroma)
		if err != nil {
			t.Fatalf("NewFrameLayout(%dx%d): %v", d.w, d.h, err)
		}

		seen := make(map[BlockPosition]int)
		for i := range l.BlockCount32() {
			pos := l.Position(i)
			key := pos
			if prev, dup := seen[key]; dup {
				t.Fatalf("%dx%d: blocks %d and %d share position %+v", d.w, d.h, prev, i, pos)
			}
			seen[key] = i

			// Forward lookup through the band numbering must agree.
			bm := l.band(pos.Component, pos.Level, pos.Band)
			if !bm.present {
				t.Fatalf("%dx%d: block %d maps to absent band", d.w, d.h, i)
			}
			back := bm.blockOffset32 + pos.Y32*bm.blockStride32 + pos.X32
			if back != i {
				t.Fatalf("%dx%d: block %d round-trips to %d", d.w, d.h, i, back)
			}
			if pos.Width8 < 1 || pos.Width8 > 4 || pos.Height8 < 1 || pos.Height8 > 4 {
				t.Fatalf("%dx%d: block %d has tile extent %dx%d", d.w, d.h, i, pos.Width8, pos.Height8)
			}
		}
		if len(seen) != l.BlockCount32() {
			t.Fatalf("%dx%d: %d positions for %d blocks", d.w, d.h, len(seen), l.BlockCount32())
		}
	}
}

func TestFrameLayoutEdgeClipping(t *testing.T) {
	// 1100 aligns to 1120; the level-0 bands are 560x560, which is 70 8x8
	// tiles and 18 32x32 blocks per row with the last column clipped to
	// two tiles.
	l, err := NewFrameLayout(1100, 1100, Chroma420)
	if err != nil {
		t.Fatalf("NewFrameLayout: %v", err)
	}
	bm := l.band(0, 0, BandHH)
	if bm.width != 560 || bm.blocksX8 != 70 || bm.blocksX32 != 18 {
		t.Fatalf("band geometry = width %d, blocksX8 %d, blocksX32 %d", bm.width, bm.blocksX8, bm.blocksX32)
	}
	last := bm.blockOffset32 + 17
	pos := l.Position(last)
	if pos.Width8 != 2 || pos.Height8 != 4 {
		t.Fatalf("clipped block extent = %dx%d, want 2x4", pos.Width8, pos.Height8)
	}
}

func TestFrameLayoutMinimumAlignment(t *testing.T) {
	l, err := NewFrameLayout(64, 48, Chroma420)
	if err != nil {
		t.Fatalf("NewFrameLayout: %v", err)
	}
	if l.AlignedWidth != minimumImageSize || l.AlignedHeight != minimumImageSize {
		t.Fatalf("aligned = %dx%d, want %dx%d",
			l.AlignedWidth, l.AlignedHeight, minimumImageSize, minimumImageSize)
	}
}

func TestFrameLayoutRejectsBadParams(t *testing.T) {
	cases := []struct {
		name   string
		w, h   int
		chroma ChromaSubsampling
	}{
		{"zero width", 0, 100, Chroma420},
		{"zero height", 100, 0, Chroma420},
		{"too wide", maxImageDim + 1, 100, Chroma420},
		{"too tall", 100, maxImageDim + 1, Chroma420},
		{"odd width 420", 101, 100, Chroma420},
		{"odd height 420", 100, 101, Chroma420},
		{"bad chroma", 100, 100, ChromaSubsampling(7)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewFrameLayout(tc.w, tc.h, tc.chroma); err == nil {
				t.Fatalf("NewFrameLayout(%d, %d, %d) accepted", tc.w, tc.h, tc.chroma)
			}
		})
	}

	// Odd dimensions are fine at 4:4:4.
	if _, err := NewFrameLayout(101, 77, Chroma444); err != nil {
		t.Fatalf("NewFrameLayout 4:4:4 odd: %v", err)
	}
}

func TestSubBlockSwizzle(t *testing.T) {
	// The normative mapping: y = bit 0 and bits 3..4, x = bits 1..2 and
	// bit 5. Every pixel of the 8x8 must be hit exactly once.
	var hit [8][8]bool
	for i := range 64 {
		x, y := swizzle8x8(i)
		if x < 0 || x >= 8 || y < 0 || y >= 8 {
			t.Fatalf("swizzle8x8(%d) = (%d, %d)", i, x, y)
		}
		if hit[y][x] {
			t.Fatalf("swizzle8x8(%d) revisits (%d, %d)", i, x, y)
		}
		hit[y][x] = true

		// Sub-block decomposition must agree with the flat swizzle.
		sx, sy := subBlockOrigin(i >> 3)
		cx, cy := coeffOffset(i & 7)
		if sx+cx != x || sy+cy != y {
			t.Fatalf("index %d: sub-block origin (%d,%d) + offset (%d,%d) != (%d,%d)",
				i, sx, sy, cx, cy, x, y)
		}
	}
}

func TestSubBlockMask(t *testing.T) {
	// A full interior block has all eight sub-blocks.
	mask, count := subBlockMask(64, 64, 0, 0)
	if mask != 0xff || count != 8 {
		t.Fatalf("interior mask = %#x count %d", mask, count)
	}

	// A band of width 36 clips the second sub-block column of the 8x8 at
	// x8=4 (pixels 32..39): only column 0 (x 32..35) is in range.
	mask, count = subBlockMask(36, 64, 4, 0)
	if mask != 0x0f || count != 4 {
		t.Fatalf("clipped mask = %#x count %d, want 0x0f count 4", mask, count)
	}

	// Height 2 keeps only the first sub-block row.
	mask, count = subBlockMask(64, 2, 0, 0)
	if mask != 0x11 || count != 2 {
		t.Fatalf("short mask = %#x count %d, want 0x11 count 2", mask, count)
	}
}
