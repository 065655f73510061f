package engine

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// UnknownSize marks a byte count the engine has not learned yet.
const UnknownSize int64 = -1

// ByteRange is a [Start, End) interval; End == UnknownSize means open-ended.
type ByteRange struct {
	Start int64
	End   int64
}

func (r ByteRange) Len() int64 {
	if r.End < 0 {
		return UnknownSize
	}
	return r.End - r.Start
}

// Header renders the range as an HTTP Range header value (inclusive end).
func (r ByteRange) Header() string {
	if r.End < 0 {
		return fmt.Sprintf("bytes=%d-", r.Start)
	}
	return fmt.Sprintf("bytes=%d-%d", r.Start, r.End-1)
}

func (r ByteRange) String() string {
	if r.End < 0 {
		return fmt.Sprintf("[%d,)", r.Start)
	}
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}

type ExtraInfo struct {
	FileSize      int64
	FileHash      string
	HashAlgorithm HashAlgorithm
}

type DestinationInfo struct {
	Dirs     []string
	FileName string
}

type OutputFile struct {
	Path string
	Size int64
	Hash string
}

type SiteCapabilities struct {
	SupportsByteRanges           bool
	ReportsAccurateContentLength bool
}

type SiteInfo struct {
	Capabilities SiteCapabilities
	Size         int64
	FileName     string
}

// Response is what a Fetcher hands back for one GET, ranged or not.
// ContentLength and TotalSize are UnknownSize when the remote did not say.
type Response struct {
	Status        int
	ContentLength int64
	TotalSize     int64
	AcceptsRanges bool
	Body          io.ReadCloser
}

type Fetcher interface {
	Fetch(ctx context.Context, url string, rng *ByteRange) (*Response, error)
}

type SiteProvider interface {
	Resolve(ctx context.Context, url string) (SiteInfo, error)
}

// StaticSite reports the same capabilities for every URL and never knows the size.
type StaticSite SiteCapabilities

func (s StaticSite) Resolve(ctx context.Context, url string) (SiteInfo, error) {
	return SiteInfo{Capabilities: SiteCapabilities(s), Size: UnknownSize}, nil
}

// ParseContentRange extracts the complete length from "bytes a-b/total".
// A "*" total or a malformed header yields UnknownSize.
func ParseContentRange(header string) int64 {
	header = strings.TrimSpace(header)
	if !strings.HasPrefix(header, "bytes ") {
		return UnknownSize
	}
	slash := strings.LastIndexByte(header, '/')
	if slash < 0 {
		return UnknownSize
	}
	total, err := strconv.ParseInt(header[slash+1:], 10, 64)
	if err != nil || total < 0 {
		return UnknownSize
	}
	return total
}
