package engine

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"
)

// runChunk downloads one chunk into its temp file. It returns nil, a
// *ChunkError wrapping ErrChunkTransport, or the cancellation cause of ctx.
func (e *Engine) runChunk(ctx context.Context, req *DownloadRequest, chunk *Chunk, plan Plan) error {
	log := e.log.With().Str("request", req.ID.String()).Int("chunk", chunk.Index).Stringer("range", chunk.Range).Logger()

	if err := e.slots.Acquire(ctx, 1); err != nil {
		return canceledCause(ctx)
	}
	defer e.slots.Release(1)

	if !chunk.transition(ChunkPending, ChunkInFlight) {
		return transportError(chunk.Index, "chunk is not pending")
	}
	err := e.fetchChunk(ctx, req, chunk, plan, log)
	if err != nil {
		chunk.transition(ChunkInFlight, ChunkFailed)
		return err
	}
	chunk.transition(ChunkInFlight, ChunkCompleted)
	log.Debug().Int64("bytes", chunk.Downloaded()).Msg("Chunk download completed")
	return nil
}

func (e *Engine) fetchChunk(ctx context.Context, req *DownloadRequest, chunk *Chunk, plan Plan, log zerolog.Logger) error {
	ranged := plan.Ranged
	tempFile, err := e.fs.Create(chunk.TempPath)
	if err != nil {
		return transportError(chunk.Index, "error opening temp file: %v", err)
	}
	defer tempFile.Close()

	var rng *ByteRange
	if ranged {
		rng = &chunk.Range
	}
	log.Debug().Bool("ranged", ranged).Msg("Sending chunk request")
	resp, err := e.fetcher.Fetch(ctx, req.URL, rng)
	if err != nil {
		if ctx.Err() != nil {
			return canceledCause(ctx)
		}
		return transportError(chunk.Index, "%v", err)
	}
	defer resp.Body.Close()
	// force the connection closed if a read ignores cancellation
	stop := context.AfterFunc(ctx, func() { resp.Body.Close() })
	defer stop()

	if resp.Status < 200 || resp.Status > 299 {
		return transportError(chunk.Index, "unexpected status code: %d", resp.Status)
	}
	if ranged && resp.Status != http.StatusPartialContent {
		return &ChunkError{Index: chunk.Index, Err: ErrRangeIgnored}
	}

	expected := chunk.Range.Len()
	if ranged {
		if resp.ContentLength >= 0 && resp.ContentLength != expected {
			return transportError(chunk.Index, "content length %d does not match range length %d", resp.ContentLength, expected)
		}
		if resp.TotalSize >= 0 {
			if plan.Size >= 0 && resp.TotalSize != plan.Size {
				return transportError(chunk.Index, "remote size %d does not match planned size %d", resp.TotalSize, plan.Size)
			}
			if total := req.progress.setTotal(resp.TotalSize); total != resp.TotalSize {
				return transportError(chunk.Index, "remote size changed: %d, previously %d", resp.TotalSize, total)
			}
		}
	} else if resp.ContentLength >= 0 {
		if expected >= 0 && resp.ContentLength != expected {
			return transportError(chunk.Index, "content length %d does not match expected size %d", resp.ContentLength, expected)
		}
		expected = resp.ContentLength
		req.progress.setTotal(resp.ContentLength)
	}

	buffer := make([]byte, e.bufferSize)
	var written int64
	for {
		n, readErr := resp.Body.Read(buffer)
		if n > 0 {
			if expected >= 0 && written+int64(n) > expected {
				return transportError(chunk.Index, "received more than the expected %d bytes", expected)
			}
			if e.limiter != nil {
				if err := e.limiter.WaitN(ctx, n); err != nil {
					return canceledCause(ctx)
				}
			}
			if _, err := tempFile.Write(buffer[:n]); err != nil {
				return transportError(chunk.Index, "error writing temp file: %v", err)
			}
			written += int64(n)
			chunk.downloaded.Add(int64(n))
			req.progress.add(int64(n))
		}
		if ctx.Err() != nil {
			return canceledCause(ctx)
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return transportError(chunk.Index, "error reading response body: %v", readErr)
		}
	}
	if expected >= 0 && written != expected {
		return transportError(chunk.Index, "size mismatch: expected %d bytes, got %d: %v", expected, written, io.ErrUnexpectedEOF)
	}
	if err := tempFile.Sync(); err != nil {
		return transportError(chunk.Index, "error syncing temp file: %v", err)
	}
	if err := tempFile.Close(); err != nil {
		return transportError(chunk.Index, "error closing temp file: %v", err)
	}
	return nil
}

func canceledCause(ctx context.Context) error {
	if cause := context.Cause(ctx); cause != nil {
		return cause
	}
	return ErrCanceled
}
