package config

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// ByteSize accepts "8MB", "256KiB" or a plain byte count.
type ByteSize int64

func ParseByteSize(s string) (ByteSize, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("size %q is too large", s)
	}
	return ByteSize(n), nil
}

func (b ByteSize) String() string {
	return humanize.IBytes(uint64(max(b, 0)))
}

// Decode implements envconfig.Decoder.
func (b *ByteSize) Decode(value string) error {
	parsed, err := ParseByteSize(value)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	return b.Decode(value.Value)
}

// Set and Type let a ByteSize back a pflag value.
func (b *ByteSize) Set(value string) error {
	return b.Decode(value)
}

func (b *ByteSize) Type() string {
	return "size"
}
