package engine

import "sync/atomic"

// Progress is a point-in-time view of one request. Total is UnknownSize
// until a worker has seen a length from the remote.
type Progress struct {
	Downloaded int64
	Total      int64
}

func (p Progress) Known() bool {
	return p.Total >= 0
}

func (p Progress) Fraction() float64 {
	if p.Total <= 0 {
		return 0
	}
	return float64(p.Downloaded) / float64(p.Total)
}

// progressCounters is written by chunk workers and read by observers
// without locks. downloaded only ever grows; total is set once.
type progressCounters struct {
	downloaded atomic.Int64
	total      atomic.Int64
}

func newProgressCounters() *progressCounters {
	p := &progressCounters{}
	p.total.Store(UnknownSize)
	return p
}

func (p *progressCounters) add(n int64) {
	if n <= 0 {
		return
	}
	p.downloaded.Add(n)
}

// setTotal stores total if none is known yet. It returns the value in
// effect afterwards so callers can detect a disagreeing remote.
func (p *progressCounters) setTotal(total int64) int64 {
	if total < 0 {
		return p.total.Load()
	}
	if p.total.CompareAndSwap(UnknownSize, total) {
		return total
	}
	return p.total.Load()
}

func (p *progressCounters) snapshot() Progress {
	// total first: it is set-once, so a later downloaded read can only be fresher
	total := p.total.Load()
	return Progress{Downloaded: p.downloaded.Load(), Total: total}
}
