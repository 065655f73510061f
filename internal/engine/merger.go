package engine

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sort"
)

// mergeChunks concatenates the completed chunks of req in index order,
// verifies the result and publishes it at dest. On any failure the merge
// file is gone before this returns; chunk files are left for cleanup.
func (e *Engine) mergeChunks(req *DownloadRequest, dest string) (OutputFile, error) {
	log := e.log.With().Str("request", req.ID.String()).Str("component", "merger").Logger()

	req.mu.Lock()
	chunks := make([]*Chunk, len(req.chunks))
	copy(chunks, req.chunks)
	plan := req.plan
	mergePath := req.mergePath
	req.mu.Unlock()

	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Index < chunks[j].Index })
	for i, chunk := range chunks {
		if chunk.Index != i || chunk.State() != ChunkCompleted {
			return OutputFile{}, fmt.Errorf("chunk %d is not completed", i)
		}
	}

	out, err := e.assemble(chunks, mergePath, req.Extra.HashAlgorithm)
	if err != nil {
		e.removeFile(mergePath)
		return OutputFile{}, err
	}

	if err := verify(out, plan.Size, req.Extra); err != nil {
		log.Warn().Err(err).Msg("Merged file failed verification, removing")
		e.removeFile(mergePath)
		return OutputFile{}, err
	}

	dest, err = e.publish(req, mergePath, dest)
	if err != nil {
		e.removeFile(mergePath)
		return OutputFile{}, fmt.Errorf("error renaming (finalizing) output file: %w", err)
	}
	out.Path = dest
	if err := req.publishOutput(out); err != nil {
		log.Error().Err(err).Msg("Output published twice")
		return OutputFile{}, err
	}

	for _, chunk := range chunks {
		e.removeFile(chunk.TempPath)
	}
	log.Debug().Int64("totalBytes", out.Size).Str("outputFile", dest).Msg("File assembly completed")
	return out, nil
}

const maxPublishAttempts = 8

// publish moves the merge file into place. A file that appeared at dest
// since planning is kept and the output goes to a renewed name instead.
func (e *Engine) publish(req *DownloadRequest, mergePath, dest string) (string, error) {
	for range maxPublishAttempts {
		err := e.fs.Publish(mergePath, dest)
		if !errors.Is(err, fs.ErrExist) {
			return dest, err
		}
		e.log.Debug().Str("request", req.ID.String()).Str("outputFile", dest).Msg("Destination taken, renewing name")
		dest = e.reserveDestination(req.ID, dest)
	}
	return "", fmt.Errorf("no free name for %s: %w", dest, fs.ErrExist)
}

func (e *Engine) assemble(chunks []*Chunk, mergePath string, algo HashAlgorithm) (OutputFile, error) {
	hasher, err := NewHash(algo)
	if err != nil {
		return OutputFile{}, err
	}
	destFile, err := e.fs.Create(mergePath)
	if err != nil {
		return OutputFile{}, fmt.Errorf("error creating merge file: %w", err)
	}
	defer destFile.Close()

	writer := io.MultiWriter(destFile, hasher)
	var totalWritten int64
	for _, chunk := range chunks {
		written, err := e.copyChunk(writer, chunk)
		if err != nil {
			return OutputFile{}, err
		}
		if expected := chunk.Range.Len(); expected >= 0 && written != expected {
			return OutputFile{}, &Error{
				Err:    ErrMergeSizeMismatch,
				Detail: fmt.Sprintf("chunk %d holds %d bytes, planned %d", chunk.Index, written, expected),
			}
		}
		totalWritten += written
	}
	if err := destFile.Sync(); err != nil {
		return OutputFile{}, fmt.Errorf("error syncing merge file: %w", err)
	}
	if err := destFile.Close(); err != nil {
		return OutputFile{}, fmt.Errorf("error closing merge file: %w", err)
	}
	return OutputFile{Size: totalWritten, Hash: hex.EncodeToString(hasher.Sum(nil))}, nil
}

func (e *Engine) copyChunk(w io.Writer, chunk *Chunk) (int64, error) {
	src, err := e.fs.Open(chunk.TempPath)
	if err != nil {
		return 0, fmt.Errorf("error opening chunk file %s: %w", chunk.TempPath, err)
	}
	defer src.Close()
	written, err := io.Copy(w, src)
	if err != nil {
		return written, fmt.Errorf("error copying chunk data: %w", err)
	}
	return written, nil
}

func verify(out OutputFile, plannedSize int64, extra ExtraInfo) error {
	if plannedSize >= 0 && out.Size != plannedSize {
		return &Error{Err: ErrMergeSizeMismatch, Detail: fmt.Sprintf("expected %d bytes, got %d", plannedSize, out.Size)}
	}
	if extra.FileSize > 0 && out.Size != extra.FileSize {
		return &Error{Err: ErrMergeSizeMismatch, Detail: fmt.Sprintf("expected %d bytes, got %d", extra.FileSize, out.Size)}
	}
	if extra.FileHash != "" {
		sum, _ := hex.DecodeString(out.Hash)
		if !hashMatches(sum, extra.FileHash) {
			return &Error{Err: ErrMergeHashMismatch, Detail: fmt.Sprintf("expected %s, got %s", extra.FileHash, out.Hash)}
		}
	}
	return nil
}
