// Package serialize encodes split tickets. A ticket is the msgpack form of
// a SplitTicket compressed with zstd, so it can be handed to a worker that
// runs the split.
package serialize

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// ticketVersion is bumped on incompatible SplitTicket changes.
const ticketVersion = 1

// ErrEmptyTicket is returned when decoding zero bytes.
var ErrEmptyTicket = errors.New("empty split ticket")

// SplitTicket carries everything a worker needs to read one split.
type SplitTicket struct {
	Version int    `msgpack:"v"`
	JobID   string `msgpack:"job_id,omitempty"`
	Index   int    `msgpack:"index"`
	Count   int    `msgpack:"count"`
	Query   string `msgpack:"query"`
}

// Codec encodes and decodes tickets. It is safe for concurrent use and must
// be closed.
type Codec struct {
	compressor   *Compressor
	decompressor *Decompressor
}

// NewCodec creates a codec with its own zstd encoder and decoder.
func NewCodec() (*Codec, error) {
	c, err := NewCompressor()
	if err != nil {
		return nil, err
	}
	d, err := NewDecompressor()
	if err != nil {
		c.Close()
		return nil, err
	}
	return &Codec{compressor: c, decompressor: d}, nil
}

// EncodeSplit returns the ticket bytes of t.
func (c *Codec) EncodeSplit(t SplitTicket) ([]byte, error) {
	t.Version = ticketVersion
	data, err := msgpack.Marshal(&t)
	if err != nil {
		return nil, fmt.Errorf("encode split ticket: %w", err)
	}
	return c.compressor.Compress(data), nil
}

// DecodeSplit parses ticket bytes produced by EncodeSplit.
func (c *Codec) DecodeSplit(ticket []byte) (SplitTicket, error) {
	if len(ticket) == 0 {
		return SplitTicket{}, ErrEmptyTicket
	}
	data, err := c.decompressor.Decompress(ticket)
	if err != nil {
		return SplitTicket{}, fmt.Errorf("decode split ticket: %w", err)
	}

	var t SplitTicket
	if err := msgpack.Unmarshal(data, &t); err != nil {
		return SplitTicket{}, fmt.Errorf("decode split ticket: %w", err)
	}
	if t.Version != ticketVersion {
		return SplitTicket{}, fmt.Errorf("decode split ticket: unsupported version %d", t.Version)
	}
	if t.Count < 1 || t.Index < 0 || t.Index >= t.Count {
		return SplitTicket{}, fmt.Errorf("decode split ticket: index %d out of range for %d splits", t.Index, t.Count)
	}
	return t, nil
}

// Close releases the zstd encoder and decoder.
func (c *Codec) Close() error {
	c.decompressor.Close()
	return c.compressor.Close()
}
