package engine

const (
	DefaultMaxChunks    = 4
	DefaultMinChunkSize = 256 * 1024
)

type PlanOptions struct {
	MaxChunks    int
	MinChunkSize int64
}

// Plan is the partition of one fetch. Ranged is false when the single chunk
// must be requested without a Range header.
type Plan struct {
	Ranges   []ByteRange
	Ranged   bool
	Size     int64
	Fallback error
}

func (p Plan) ChunkCount() int {
	return len(p.Ranges)
}

func singleChunk(size int64, fallback error) Plan {
	end := UnknownSize
	if size >= 0 {
		end = size
	}
	return Plan{
		Ranges:   []ByteRange{{Start: 0, End: end}},
		Size:     size,
		Fallback: fallback,
	}
}

// PlanChunks decides how to split a fetch. It performs no I/O; size is
// UnknownSize when neither the site nor the caller knows it.
func PlanChunks(caps SiteCapabilities, size int64, opts PlanOptions) Plan {
	if opts.MaxChunks <= 0 {
		opts.MaxChunks = 1
	}
	if opts.MinChunkSize <= 0 {
		opts.MinChunkSize = DefaultMinChunkSize
	}
	if !caps.ReportsAccurateContentLength {
		if caps.SupportsByteRanges {
			return singleChunk(UnknownSize, ErrPlanningUnsupported)
		}
		return singleChunk(UnknownSize, nil)
	}
	if !caps.SupportsByteRanges {
		return singleChunk(size, nil)
	}
	if size < 0 {
		return singleChunk(UnknownSize, ErrPlanningUnsupported)
	}
	if size == 0 {
		return singleChunk(0, nil)
	}

	n := int64(opts.MaxChunks)
	if size/n < opts.MinChunkSize {
		n = max(size/opts.MinChunkSize, 1)
	}
	if n == 1 {
		return singleChunk(size, nil)
	}

	chunkSize := size / n
	ranges := make([]ByteRange, 0, n)
	for i := range n {
		start := i * chunkSize
		end := start + chunkSize
		if i == n-1 {
			end = size
		}
		ranges = append(ranges, ByteRange{Start: start, End: end})
	}
	return Plan{Ranges: ranges, Ranged: true, Size: size}
}
