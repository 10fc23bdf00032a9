package transport

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

type frameKind byte

const (
	kindHeader frameKind = iota + 1
	kindRows
	kindWelcome
)

func (k frameKind) String() string {
	switch k {
	case kindHeader:
		return "header"
	case kindRows:
		return "rows"
	case kindWelcome:
		return "welcome"
	default:
		return fmt.Sprintf("kind(%d)", byte(k))
	}
}

// frame is the unit exchanged over a link.
type frame struct {
	kind   frameKind
	header Header
	rows   RowBlock
	// welcome
	rank int
	size int
}

// Wire layout, big endian:
//
//	magic 'H' | version | flags | kind | body
//
// flags bit 0 marks a zstd-compressed body.
const (
	wireMagic      = 'H'
	wireVersion    = 1
	flagCompressed = 1 << 0
	wirePrefix     = 4
)

var errShortFrame = errors.New("short frame")

// Codec serialises frames for byte-oriented substrates.
type Codec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewCodec returns a codec; compress enables zstd on outgoing frames.
// Incoming compressed frames are always accepted.
func NewCodec(compress bool) (*Codec, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	c := &Codec{dec: dec}
	if compress {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			dec.Close()
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		c.enc = enc
	}
	return c, nil
}

// Close releases the zstd resources.
func (c *Codec) Close() {
	if c.enc != nil {
		c.enc.Close()
	}
	c.dec.Close()
}

func (c *Codec) encode(f frame) ([]byte, error) {
	var body []byte
	switch f.kind {
	case kindHeader:
		body = appendHeader(nil, f.header)
	case kindRows:
		body = appendRows(nil, f.rows)
	case kindWelcome:
		body = binary.BigEndian.AppendUint32(nil, uint32(f.rank))
		body = binary.BigEndian.AppendUint32(body, uint32(f.size))
	default:
		return nil, fmt.Errorf("encode: unknown frame %s", f.kind)
	}

	var flags byte
	if c.enc != nil {
		body = c.enc.EncodeAll(body, nil)
		flags |= flagCompressed
	}
	out := make([]byte, 0, wirePrefix+len(body))
	out = append(out, wireMagic, wireVersion, flags, byte(f.kind))
	return append(out, body...), nil
}

func (c *Codec) decode(data []byte) (frame, error) {
	if len(data) < wirePrefix {
		return frame{}, errShortFrame
	}
	if data[0] != wireMagic || data[1] != wireVersion {
		return frame{}, fmt.Errorf("decode: bad magic/version %#x/%d", data[0], data[1])
	}
	flags, kind, body := data[2], frameKind(data[3]), data[wirePrefix:]
	if flags&flagCompressed != 0 {
		var err error
		body, err = c.dec.DecodeAll(body, nil)
		if err != nil {
			return frame{}, fmt.Errorf("decode: decompress: %w", err)
		}
	}

	r := &reader{buf: body}
	f := frame{kind: kind}
	switch kind {
	case kindHeader:
		f.header = readHeader(r)
	case kindRows:
		f.rows = readRows(r)
	case kindWelcome:
		f.rank = int(r.u32())
		f.size = int(r.u32())
	default:
		return frame{}, fmt.Errorf("decode: unknown frame %s", kind)
	}
	if r.err != nil {
		return frame{}, fmt.Errorf("decode %s: %w", kind, r.err)
	}
	if len(r.buf) != 0 {
		return frame{}, fmt.Errorf("decode %s: %d trailing bytes", kind, len(r.buf))
	}
	return f, nil
}

func appendString(b []byte, s string) []byte {
	b = binary.BigEndian.AppendUint16(b, uint16(len(s)))
	return append(b, s...)
}

func appendHeader(b []byte, h Header) []byte {
	b = appendString(b, h.JobID)
	b = binary.BigEndian.AppendUint32(b, uint32(h.Width))
	b = binary.BigEndian.AppendUint32(b, uint32(h.Height))
	b = append(b, byte(h.Channels))
	b = binary.BigEndian.AppendUint16(b, uint16(len(h.Filters)))
	for _, name := range h.Filters {
		b = appendString(b, name)
	}
	return b
}

func appendRows(b []byte, rb RowBlock) []byte {
	b = binary.BigEndian.AppendUint32(b, uint32(rb.Start))
	b = binary.BigEndian.AppendUint32(b, uint32(rb.Count))
	b = binary.BigEndian.AppendUint32(b, uint32(rb.Width))
	b = append(b, byte(len(rb.Planes)))
	for _, p := range rb.Planes {
		b = append(b, p...)
	}
	return b
}

// reader is a sticky-error cursor over a frame body.
type reader struct {
	buf []byte
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.buf) < n {
		r.err = errShortFrame
		return nil
	}
	out := r.buf[:n]
	r.buf = r.buf[n:]
	return out
}

func (r *reader) u8() byte {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) u16() uint16 {
	if b := r.take(2); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

func (r *reader) u32() uint32 {
	if b := r.take(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (r *reader) str() string {
	return string(r.take(int(r.u16())))
}

func readHeader(r *reader) Header {
	h := Header{JobID: r.str()}
	h.Width = int(r.u32())
	h.Height = int(r.u32())
	h.Channels = int(r.u8())
	n := int(r.u16())
	for range n {
		if r.err != nil {
			break
		}
		h.Filters = append(h.Filters, r.str())
	}
	return h
}

func readRows(r *reader) RowBlock {
	rb := RowBlock{
		Start: int(r.u32()),
		Count: int(r.u32()),
		Width: int(r.u32()),
	}
	channels := int(r.u8())
	for range channels {
		p := r.take(rb.Count * rb.Width)
		if r.err != nil {
			break
		}
		rb.Planes = append(rb.Planes, append([]byte(nil), p...))
	}
	return rb
}
