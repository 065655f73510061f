package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanChunksWithoutRangesIsSingleChunk(t *testing.T) {
	caps := SiteCapabilities{SupportsByteRanges: false, ReportsAccurateContentLength: true}
	for _, maxChunks := range []int{0, 1, 4, 64} {
		plan := PlanChunks(caps, 10*1024*1024, PlanOptions{MaxChunks: maxChunks, MinChunkSize: 1024})
		require.Equal(t, 1, plan.ChunkCount(), "maxChunks=%d", maxChunks)
		assert.False(t, plan.Ranged)
		assert.Equal(t, ByteRange{Start: 0, End: 10 * 1024 * 1024}, plan.Ranges[0])
		assert.NoError(t, plan.Fallback)
	}
}

func TestPlanChunksUnknownSize(t *testing.T) {
	tests := []struct {
		name     string
		caps     SiteCapabilities
		size     int64
		fallback bool
	}{
		{name: "nothing supported", caps: SiteCapabilities{}, size: UnknownSize},
		{name: "ranges but no length", caps: SiteCapabilities{SupportsByteRanges: true}, size: 5000, fallback: true},
		{name: "ranges, length trusted but missing", caps: SiteCapabilities{SupportsByteRanges: true, ReportsAccurateContentLength: true}, size: UnknownSize, fallback: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := PlanChunks(tt.caps, tt.size, PlanOptions{MaxChunks: 8, MinChunkSize: 10})
			require.Equal(t, 1, plan.ChunkCount())
			assert.False(t, plan.Ranged)
			assert.Equal(t, UnknownSize, plan.Ranges[0].End)
			assert.Equal(t, UnknownSize, plan.Size)
			if tt.fallback {
				assert.ErrorIs(t, plan.Fallback, ErrPlanningUnsupported)
			} else {
				assert.NoError(t, plan.Fallback)
			}
		})
	}
}

func TestPlanChunksRangesCoverSize(t *testing.T) {
	caps := SiteCapabilities{SupportsByteRanges: true, ReportsAccurateContentLength: true}
	tests := []struct {
		name      string
		size      int64
		maxChunks int
		minChunk  int64
		want      int
	}{
		{name: "even split", size: 1000, maxChunks: 4, minChunk: 10, want: 4},
		{name: "remainder goes to last", size: 1003, maxChunks: 4, minChunk: 10, want: 4},
		{name: "reduced by min chunk size", size: 1000, maxChunks: 8, minChunk: 300, want: 3},
		{name: "too small to split", size: 100, maxChunks: 8, minChunk: 300, want: 1},
		{name: "capped by max chunks", size: 1 << 30, maxChunks: 6, minChunk: 1024, want: 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := PlanChunks(caps, tt.size, PlanOptions{MaxChunks: tt.maxChunks, MinChunkSize: tt.minChunk})
			require.Equal(t, tt.want, plan.ChunkCount())
			assert.Equal(t, tt.want > 1, plan.Ranged)

			var sum int64
			next := int64(0)
			for _, r := range plan.Ranges {
				assert.Equal(t, next, r.Start, "ranges must be contiguous")
				sum += r.Len()
				next = r.End
			}
			assert.Equal(t, tt.size, sum)
			assert.Equal(t, tt.size, plan.Size)
		})
	}
}

func TestPlanChunksEmptyFile(t *testing.T) {
	caps := SiteCapabilities{SupportsByteRanges: true, ReportsAccurateContentLength: true}
	plan := PlanChunks(caps, 0, PlanOptions{MaxChunks: 4})
	require.Equal(t, 1, plan.ChunkCount())
	assert.Equal(t, int64(0), plan.Ranges[0].Len())
}

func TestPlanChunksIsDeterministic(t *testing.T) {
	caps := SiteCapabilities{SupportsByteRanges: true, ReportsAccurateContentLength: true}
	opts := PlanOptions{MaxChunks: 5, MinChunkSize: 64}
	assert.Equal(t, PlanChunks(caps, 123456, opts), PlanChunks(caps, 123456, opts))
}

func TestByteRangeHeader(t *testing.T) {
	assert.Equal(t, "bytes=0-99", ByteRange{Start: 0, End: 100}.Header())
	assert.Equal(t, "bytes=250-", ByteRange{Start: 250, End: UnknownSize}.Header())
	assert.Equal(t, UnknownSize, ByteRange{Start: 3, End: UnknownSize}.Len())
}

func TestParseContentRange(t *testing.T) {
	assert.Equal(t, int64(300), ParseContentRange("bytes 0-99/300"))
	assert.Equal(t, UnknownSize, ParseContentRange("bytes 0-99/*"))
	assert.Equal(t, UnknownSize, ParseContentRange(""))
	assert.Equal(t, UnknownSize, ParseContentRange("items 0-1/2"))
}
