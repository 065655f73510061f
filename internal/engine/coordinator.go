package engine

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const mergeSuffix = ".merge"

func chunkTempPath(dir, base string, index int) string {
	if index < 0 {
		return filepath.Join(dir, base+mergeSuffix)
	}
	return filepath.Join(dir, fmt.Sprintf("%s.part%d", base, index))
}

// cancelRequest is the single entry point for caller cancellation. It is a
// no-op once merging has started or the request is terminal.
func (e *Engine) cancelRequest(req *DownloadRequest) bool {
	if !req.requestCancel(ErrCanceled) {
		return false
	}
	e.log.Debug().Str("request", req.ID.String()).Msg("Cancellation requested")
	return true
}

// awaitDrain waits for the worker join, but no longer than the drain timeout
// once the request has been told to stop.
func (e *Engine) awaitDrain(req *DownloadRequest, joined <-chan error, stopping <-chan struct{}) error {
	select {
	case err := <-joined:
		return err
	case <-stopping:
	}
	timer := time.NewTimer(e.drainTimeout)
	defer timer.Stop()
	select {
	case err := <-joined:
		return err
	case <-timer.C:
		e.log.Warn().Str("request", req.ID.String()).Dur("timeout", e.drainTimeout).Msg("Chunk workers did not drain in time, cleaning up anyway")
		if cause := req.token.Cause(); cause != nil {
			return cause
		}
		return ErrChunkTimeout
	}
}

// watchStall cancels the request with ErrChunkTimeout when the downloaded
// counter does not move for the stall timeout while a chunk is in flight.
// Time spent waiting for a concurrency slot does not count as a stall.
func (e *Engine) watchStall(req *DownloadRequest, chunks []*Chunk, stop <-chan struct{}) {
	if e.stallTimeout <= 0 {
		return
	}
	ticker := time.NewTicker(max(e.stallTimeout/4, 10*time.Millisecond))
	defer ticker.Stop()
	last := req.progress.snapshot().Downloaded
	lastChange := time.Now()
	for {
		select {
		case <-stop:
			return
		case <-req.token.Done():
			return
		case now := <-ticker.C:
			current := req.progress.snapshot().Downloaded
			if current != last || !anyInFlight(chunks) {
				last = current
				lastChange = now
				continue
			}
			if now.Sub(lastChange) >= e.stallTimeout {
				if req.requestCancel(ErrChunkTimeout) {
					e.log.Warn().Str("request", req.ID.String()).Dur("timeout", e.stallTimeout).Msg("No progress, stopping request")
				}
				return
			}
		}
	}
}

func anyInFlight(chunks []*Chunk) bool {
	for _, chunk := range chunks {
		if chunk.State() == ChunkInFlight {
			return true
		}
	}
	return false
}

// cleanup deletes every temp file the request may have created and the temp
// directory when nothing else lives in it.
func (e *Engine) cleanup(req *DownloadRequest) {
	req.mu.Lock()
	paths := make([]string, 0, len(req.chunks)+1)
	for _, chunk := range req.chunks {
		paths = append(paths, chunk.TempPath)
	}
	if req.mergePath != "" {
		paths = append(paths, req.mergePath)
	}
	tempDir := req.tempDir
	req.mu.Unlock()

	for _, path := range paths {
		e.removeFile(path)
	}
	if tempDir == "" {
		return
	}
	remaining, err := e.fs.ReadDir(tempDir)
	if err == nil && len(remaining) == 0 {
		if err := e.fs.RemoveDir(tempDir); err != nil {
			e.log.Debug().Err(err).Str("dir", tempDir).Msg("Could not remove temp directory")
		}
	}
}

func (e *Engine) removeFile(path string) {
	if err := e.fs.Remove(path); err != nil {
		e.log.Warn().Err(err).Str("file", filepath.Base(path)).Msg("Failed to remove temp file")
	}
}

// tempBaseName keeps temp files of two requests for the same name apart.
func tempBaseName(dest string, req *DownloadRequest) string {
	id := strings.ReplaceAll(req.ID.String(), "-", "")
	return fmt.Sprintf("%s.%s", filepath.Base(dest), id[:8])
}
