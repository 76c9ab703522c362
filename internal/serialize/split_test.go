package serialize

import (
	"errors"
	"strings"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec()
	if err != nil {
		t.Fatalf("NewCodec failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSplitTicketRoundTrip(t *testing.T) {
	c := newTestCodec(t)

	in := SplitTicket{
		JobID: "job-1",
		Index: 2,
		Count: 4,
		Query: "SELECT * FROM (SELECT * FROM t) AS q WHERE (hash(a) % 4 = 2)",
	}
	ticket, err := c.EncodeSplit(in)
	if err != nil {
		t.Fatalf("EncodeSplit failed: %v", err)
	}

	out, err := c.DecodeSplit(ticket)
	if err != nil {
		t.Fatalf("DecodeSplit failed: %v", err)
	}
	if out.Query != in.Query || out.Index != in.Index || out.Count != in.Count || out.JobID != in.JobID {
		t.Errorf("expected %+v, got %+v", in, out)
	}
	if out.Version != ticketVersion {
		t.Errorf("expected version %d, got %d", ticketVersion, out.Version)
	}
}

func TestSplitTicketCompresses(t *testing.T) {
	c := newTestCodec(t)

	query := "SELECT * FROM t WHERE " + strings.Repeat("(a > 1) OR ", 200) + "(a > 1)"
	ticket, err := c.EncodeSplit(SplitTicket{Index: 0, Count: 1, Query: query})
	if err != nil {
		t.Fatalf("EncodeSplit failed: %v", err)
	}
	if len(ticket) >= len(query) {
		t.Errorf("expected ticket smaller than %d bytes, got %d", len(query), len(ticket))
	}
}

func TestDecodeSplitErrors(t *testing.T) {
	c := newTestCodec(t)

	if _, err := c.DecodeSplit(nil); !errors.Is(err, ErrEmptyTicket) {
		t.Errorf("expected ErrEmptyTicket, got %v", err)
	}

	if _, err := c.DecodeSplit([]byte("not zstd")); err == nil {
		t.Error("expected error for garbage ticket")
	}

	raw := func(t SplitTicket) []byte {
		data, err := msgpack.Marshal(&t)
		if err != nil {
			panic(err)
		}
		return c.compressor.Compress(data)
	}

	if _, err := c.DecodeSplit(raw(SplitTicket{Version: 99, Count: 1})); err == nil {
		t.Error("expected error for unknown version")
	}
	if _, err := c.DecodeSplit(raw(SplitTicket{Version: ticketVersion, Index: 3, Count: 2})); err == nil {
		t.Error("expected error for out of range index")
	}
}

func TestCompressorEmptyInput(t *testing.T) {
	c, err := NewCompressor()
	if err != nil {
		t.Fatalf("NewCompressor failed: %v", err)
	}
	defer c.Close()
	d, err := NewDecompressor()
	if err != nil {
		t.Fatalf("NewDecompressor failed: %v", err)
	}
	defer d.Close()

	if got := c.Compress(nil); len(got) != 0 {
		t.Errorf("expected empty output, got %d bytes", len(got))
	}
	got, err := d.Decompress(nil)
	if err != nil || len(got) != 0 {
		t.Errorf("expected empty output, got %d bytes, err %v", len(got), err)
	}
}
