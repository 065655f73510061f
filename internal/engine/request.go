package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type Handle = uuid.UUID

type State int32

const (
	StatePlanning State = iota
	StateDownloading
	StateMerging
	StateCompleted
	StateFailed
	StateCanceled
)

var stateNames = map[State]string{
	StatePlanning:    "planning",
	StateDownloading: "downloading",
	StateMerging:     "merging",
	StateCompleted:   "completed",
	StateFailed:      "failed",
	StateCanceled:    "canceled",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCanceled
}

type ChunkState int32

const (
	ChunkPending ChunkState = iota
	ChunkInFlight
	ChunkCompleted
	ChunkFailed
)

type Chunk struct {
	Index      int
	Range      ByteRange
	TempPath   string
	state      atomic.Int32
	downloaded atomic.Int64
}

func (c *Chunk) State() ChunkState {
	return ChunkState(c.state.Load())
}

func (c *Chunk) Downloaded() int64 {
	return c.downloaded.Load()
}

func (c *Chunk) transition(from, to ChunkState) bool {
	return c.state.CompareAndSwap(int32(from), int32(to))
}

// DownloadRequest owns everything belonging to one logical file fetch.
type DownloadRequest struct {
	ID          Handle
	URL         string
	Extra       ExtraInfo
	Destination DestinationInfo
	MaxChunks   int
	CreatedAt   time.Time

	token    *CancellationToken
	progress *progressCounters
	done     chan struct{}

	// mu guards state transitions, the chunk set and the result
	mu         sync.Mutex
	state      State
	plan       Plan
	chunks     []*Chunk
	tempDir    string
	mergePath  string
	output     OutputFile
	outputSet  bool
	err        error
	finishedAt time.Time
}

func newDownloadRequest(url string, extra ExtraInfo, dest DestinationInfo, maxChunks int, token *CancellationToken) *DownloadRequest {
	return &DownloadRequest{
		ID:          uuid.New(),
		URL:         url,
		Extra:       extra,
		Destination: dest,
		MaxChunks:   maxChunks,
		CreatedAt:   time.Now(),
		token:       token,
		progress:    newProgressCounters(),
		done:        make(chan struct{}),
		state:       StatePlanning,
	}
}

func (r *DownloadRequest) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *DownloadRequest) ChunkCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.chunks)
}

func (r *DownloadRequest) Chunks() []*Chunk {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Chunk, len(r.chunks))
	copy(out, r.chunks)
	return out
}

func (r *DownloadRequest) Progress() Progress {
	return r.progress.snapshot()
}

func (r *DownloadRequest) Done() <-chan struct{} {
	return r.done
}

// Result is only meaningful once Done is closed.
func (r *DownloadRequest) Result() (OutputFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.output, r.err
}

// setPlan fixes the chunk set; it is called once, while planning.
func (r *DownloadRequest) setPlan(plan Plan, tempDir, baseName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plan = plan
	r.tempDir = tempDir
	r.mergePath = chunkTempPath(tempDir, baseName, -1)
	r.chunks = make([]*Chunk, 0, len(plan.Ranges))
	for i, rng := range plan.Ranges {
		r.chunks = append(r.chunks, &Chunk{
			Index:    i,
			Range:    rng,
			TempPath: chunkTempPath(tempDir, baseName, i),
		})
	}
}

// advance moves between non-terminal states. It refuses when the token has
// already been canceled so cancellation and the move cannot interleave.
func (r *DownloadRequest) advance(from, to State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != from || r.token.Canceled() {
		return false
	}
	r.state = to
	return true
}

// requestCancel cancels the token only while cancellation is still allowed.
func (r *DownloadRequest) requestCancel(cause error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StatePlanning && r.state != StateDownloading {
		return false
	}
	return r.token.Cancel(cause)
}

// publishOutput is the write-once cell for the merged file.
func (r *DownloadRequest) publishOutput(out OutputFile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outputSet {
		return &Error{Err: ErrDoubleCompletion, Detail: r.ID.String()}
	}
	r.output = out
	r.outputSet = true
	return nil
}

func (r *DownloadRequest) finish(state State, err error) {
	r.mu.Lock()
	r.state = state
	r.err = err
	r.finishedAt = time.Now()
	r.mu.Unlock()
	r.token.release()
	close(r.done)
}
