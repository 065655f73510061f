package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloadChunked(t *testing.T) {
	data := testData(1000)
	var ranged atomic.Int32
	server := newServer(t, rangeHandler(data, func(w http.ResponseWriter, r *http.Request, start, end int64) bool {
		ranged.Add(1)
		return false
	}))
	e, root := newTestEngine(t, rangedSite(len(data)))

	sum := sha256.Sum256(data)
	extra := ExtraInfo{FileSize: 1000, FileHash: hex.EncodeToString(sum[:]), HashAlgorithm: HashSHA256}
	h, err := e.Submit(server.URL+"/src/1700000000000.webm", extra, DestinationInfo{Dirs: []string{"g", "12345"}, FileName: "clip.webm"}, 4)
	require.NoError(t, err)

	out, err := awaitResult(t, e, h)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "g", "12345", "clip.webm"), out.Path)
	assert.Equal(t, hex.EncodeToString(sum[:]), out.Hash)

	got, err := os.ReadFile(out.Path)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	req, err := e.Request(h)
	require.NoError(t, err)
	assert.Equal(t, 4, req.ChunkCount())
	assert.Equal(t, int32(4), ranged.Load())

	progress, err := e.Progress(h)
	require.NoError(t, err)
	assert.Equal(t, Progress{Downloaded: 1000, Total: 1000}, progress)

	state, err := e.State(h)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, state)
	assert.Equal(t, []string{filepath.Join("g", "12345", "clip.webm")}, filesUnder(t, root))
	assert.NoDirExists(t, filepath.Join(root, "g", "12345", DefaultTempDirName))
}

func TestDownloadWithoutRangeSupportUsesOneChunk(t *testing.T) {
	data := testData(5000)
	var rangeRequests atomic.Int32
	server := newServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Range") != "" {
			rangeRequests.Add(1)
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Write(data)
	}))
	e, _ := newTestEngine(t, StaticSite{})

	h, err := e.Submit(server.URL+"/image.jpg", ExtraInfo{}, DestinationInfo{FileName: "image.jpg"}, 16)
	require.NoError(t, err)
	out, err := awaitResult(t, e, h)
	require.NoError(t, err)

	req, _ := e.Request(h)
	assert.Equal(t, 1, req.ChunkCount())
	assert.Zero(t, rangeRequests.Load())
	assert.Equal(t, int64(5000), out.Size)
	p, _ := e.Progress(h)
	assert.Equal(t, int64(5000), p.Total)
}

func TestDownloadUnknownSizeLearnsTotal(t *testing.T) {
	data := testData(777)
	server := newServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// no Content-Length: chunked transfer encoding
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		w.Write(data)
	}))
	e, _ := newTestEngine(t, StaticSite{})

	h, err := e.Submit(server.URL+"/a.gif", ExtraInfo{}, DestinationInfo{FileName: "a.gif"}, 4)
	require.NoError(t, err)
	out, err := awaitResult(t, e, h)
	require.NoError(t, err)
	assert.Equal(t, int64(777), out.Size)
	p, _ := e.Progress(h)
	assert.Equal(t, Progress{Downloaded: 777, Total: 777}, p)
}

func TestCancelWhileChunksInFlight(t *testing.T) {
	data := testData(300)
	release := make(chan struct{})
	server := newServer(t, rangeHandler(data, func(w http.ResponseWriter, r *http.Request, start, end int64) bool {
		if start == 0 {
			return false
		}
		w.Header().Set("Content-Range", "bytes "+strconv.FormatInt(start, 10)+"-"+strconv.FormatInt(end, 10)+"/300")
		w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(data[start : start+10])
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
		return true
	}))
	t.Cleanup(func() { close(release) })
	e, root := newTestEngine(t, rangedSite(len(data)))

	h, err := e.Submit(server.URL+"/v.mp4", ExtraInfo{}, DestinationInfo{FileName: "v.mp4"}, 3)
	require.NoError(t, err)

	req, _ := e.Request(h)
	require.Eventually(t, func() bool {
		return req.Progress().Downloaded >= 120
	}, 5*time.Second, 5*time.Millisecond)
	chunks := req.Chunks()
	require.Len(t, chunks, 3)
	assert.Equal(t, ChunkCompleted, chunks[0].State())
	assert.Equal(t, ChunkInFlight, chunks[1].State())
	assert.Equal(t, ChunkInFlight, chunks[2].State())

	require.NoError(t, e.Cancel(h))
	require.NoError(t, e.Cancel(h), "cancel is idempotent")

	_, err = awaitResult(t, e, h)
	require.ErrorIs(t, err, ErrCanceled)
	state, _ := e.State(h)
	assert.Equal(t, StateCanceled, state)
	assert.Empty(t, filesUnder(t, root))
	assert.GreaterOrEqual(t, req.Progress().Downloaded, int64(120), "progress is append-only")
}

func TestChunkFailureFailsWholeRequest(t *testing.T) {
	data := testData(400)
	server := newServer(t, rangeHandler(data, func(w http.ResponseWriter, r *http.Request, start, end int64) bool {
		if start == 100 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return true
		}
		return false
	}))
	e, root := newTestEngine(t, rangedSite(len(data)))

	h, err := e.Submit(server.URL+"/f.png", ExtraInfo{}, DestinationInfo{FileName: "f.png"}, 4)
	require.NoError(t, err)
	_, err = awaitResult(t, e, h)
	require.ErrorIs(t, err, ErrChunkTransport)

	var chunkErr *ChunkError
	require.True(t, errors.As(err, &chunkErr))
	assert.Equal(t, 1, chunkErr.Index)

	state, _ := e.State(h)
	assert.Equal(t, StateFailed, state)
	assert.Empty(t, filesUnder(t, root))
}

func TestRangeIgnoredByServer(t *testing.T) {
	data := testData(400)
	server := newServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Write(data)
	}))
	e, root := newTestEngine(t, rangedSite(len(data)))

	h, err := e.Submit(server.URL+"/f.png", ExtraInfo{}, DestinationInfo{FileName: "f.png"}, 4)
	require.NoError(t, err)
	_, err = awaitResult(t, e, h)
	require.ErrorIs(t, err, ErrRangeIgnored)
	require.ErrorIs(t, err, ErrChunkTransport)
	assert.Empty(t, filesUnder(t, root))
}

func TestHashMismatchFailsAndLeavesNothing(t *testing.T) {
	data := testData(400)
	server := newServer(t, rangeHandler(data, nil))
	e, root := newTestEngine(t, rangedSite(len(data)))

	h, err := e.Submit(server.URL+"/f.png", ExtraInfo{FileHash: "d41d8cd98f00b204e9800998ecf8427e"}, DestinationInfo{FileName: "f.png"}, 4)
	require.NoError(t, err)
	_, err = awaitResult(t, e, h)
	require.ErrorIs(t, err, ErrMergeHashMismatch)

	state, _ := e.State(h)
	assert.Equal(t, StateFailed, state)
	assert.NoFileExists(t, filepath.Join(root, "f.png"))
	assert.Empty(t, filesUnder(t, root))
}

func TestStalledRequestTimesOut(t *testing.T) {
	data := testData(300)
	release := make(chan struct{})
	server := newServer(t, rangeHandler(data, func(w http.ResponseWriter, r *http.Request, start, end int64) bool {
		if start == 0 {
			return false
		}
		w.Header().Set("Content-Range", "bytes "+strconv.FormatInt(start, 10)+"-"+strconv.FormatInt(end, 10)+"/300")
		w.WriteHeader(http.StatusPartialContent)
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
		return true
	}))
	t.Cleanup(func() { close(release) })
	e, root := newTestEngine(t, rangedSite(len(data)), WithStallTimeout(150*time.Millisecond))

	h, err := e.Submit(server.URL+"/v.mp4", ExtraInfo{}, DestinationInfo{FileName: "v.mp4"}, 3)
	require.NoError(t, err)
	_, err = awaitResult(t, e, h)
	require.ErrorIs(t, err, ErrChunkTimeout)
	require.ErrorIs(t, err, ErrChunkTransport)

	state, _ := e.State(h)
	assert.Equal(t, StateFailed, state)
	assert.Empty(t, filesUnder(t, root))
}

func TestCancelAfterCompletionIsNoop(t *testing.T) {
	data := testData(200)
	server := newServer(t, rangeHandler(data, nil))
	e, _ := newTestEngine(t, rangedSite(len(data)))

	h, err := e.Submit(server.URL+"/f.png", ExtraInfo{}, DestinationInfo{FileName: "f.png"}, 2)
	require.NoError(t, err)
	out, err := awaitResult(t, e, h)
	require.NoError(t, err)

	require.NoError(t, e.Cancel(h))
	state, _ := e.State(h)
	assert.Equal(t, StateCompleted, state)
	assert.FileExists(t, out.Path)

	again, err := awaitResult(t, e, h)
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestMaxConcurrencyCapsChunkCount(t *testing.T) {
	data := testData(4000)
	server := newServer(t, rangeHandler(data, nil))
	e, _ := newTestEngine(t, rangedSite(len(data)), WithMaxConcurrency(2))

	h, err := e.Submit(server.URL+"/f.png", ExtraInfo{}, DestinationInfo{FileName: "f.png"}, 8)
	require.NoError(t, err)
	_, err = awaitResult(t, e, h)
	require.NoError(t, err)
	req, _ := e.Request(h)
	assert.Equal(t, 2, req.ChunkCount())
}

func TestConcurrentRequestsShareSlots(t *testing.T) {
	data := testData(2048)
	var inFlight, peak atomic.Int32
	server := newServer(t, rangeHandler(data, func(w http.ResponseWriter, r *http.Request, start, end int64) bool {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return false
	}))
	e, root := newTestEngine(t, rangedSite(len(data)), WithMaxConcurrency(3))

	var handles []Handle
	for i := range 4 {
		h, err := e.Submit(server.URL+"/f.png", ExtraInfo{FileSize: 2048}, DestinationInfo{Dirs: []string{strconv.Itoa(i)}, FileName: "f.png"}, 3)
		require.NoError(t, err)
		handles = append(handles, h)
	}
	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()
	var wg sync.WaitGroup
	for _, h := range handles {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Await(ctx, h)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Len(t, filesUnder(t, root), 4)
}

func TestConcurrentRequestsForSameDestinationKeepBothFiles(t *testing.T) {
	first, second := testData(500), testData(700)
	var arrived atomic.Int32
	bothInFlight := make(chan struct{})
	gated := func(data []byte) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if arrived.Add(1) == 2 {
				close(bothInFlight)
			}
			select {
			case <-bothInFlight:
			case <-r.Context().Done():
				return
			}
			rangeHandler(data, nil)(w, r)
		}
	}
	serverA := newServer(t, gated(first))
	serverB := newServer(t, gated(second))
	e, root := newTestEngine(t, StaticSite{})

	dest := DestinationInfo{Dirs: []string{"g"}, FileName: "f.png"}
	ha, err := e.Submit(serverA.URL+"/f.png", ExtraInfo{}, dest, 1)
	require.NoError(t, err)
	hb, err := e.Submit(serverB.URL+"/f.png", ExtraInfo{}, dest, 1)
	require.NoError(t, err)

	outA, err := awaitResult(t, e, ha)
	require.NoError(t, err)
	outB, err := awaitResult(t, e, hb)
	require.NoError(t, err)
	require.NotEqual(t, outA.Path, outB.Path)

	for _, c := range []struct {
		out  OutputFile
		data []byte
	}{{outA, first}, {outB, second}} {
		got, err := os.ReadFile(c.out.Path)
		require.NoError(t, err)
		assert.Equal(t, c.data, got)
		assert.Equal(t, int64(len(c.data)), c.out.Size)
	}
	assert.ElementsMatch(t, []string{filepath.Join("g", "f.png"), filepath.Join("g", "f-(1).png")}, filesUnder(t, root))
}

func TestReleaseAndUnknownHandle(t *testing.T) {
	data := testData(100)
	server := newServer(t, rangeHandler(data, nil))
	e, _ := newTestEngine(t, rangedSite(len(data)))

	h, err := e.Submit(server.URL+"/f.png", ExtraInfo{}, DestinationInfo{FileName: "f.png"}, 1)
	require.NoError(t, err)
	_, err = awaitResult(t, e, h)
	require.NoError(t, err)

	require.NoError(t, e.Release(h))
	_, err = e.Progress(h)
	assert.ErrorIs(t, err, ErrUnknownHandle)
	assert.ErrorIs(t, e.Cancel(h), ErrUnknownHandle)
}

func TestSubmitValidation(t *testing.T) {
	e, _ := newTestEngine(t, StaticSite{})
	_, err := e.Submit("", ExtraInfo{}, DestinationInfo{FileName: "a"}, 1)
	assert.Error(t, err)
	_, err = e.Submit("http://example.invalid/a", ExtraInfo{HashAlgorithm: "crc32"}, DestinationInfo{FileName: "a"}, 1)
	assert.Error(t, err)
}

func TestEmptyDestinationFails(t *testing.T) {
	e, root := newTestEngine(t, StaticSite{})
	h, err := e.Submit("http://example.invalid/a", ExtraInfo{}, DestinationInfo{FileName: "../"}, 1)
	require.NoError(t, err)
	_, err = awaitResult(t, e, h)
	require.Error(t, err)
	state, _ := e.State(h)
	assert.Equal(t, StateFailed, state)
	assert.Empty(t, filesUnder(t, root))
}
