// Package transport moves job headers and row blocks between the
// coordinator (rank 0) and the workers (ranks 1..Size-1).
//
// Messages between a given pair of ranks are delivered in the order they
// were sent, so the protocol carries no sequence numbers. Two substrates are
// provided: an in-process channel mesh (NewLocalMesh) and a websocket star
// (Hub / DialWorker) for workers running as separate processes.
package transport

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned when using a transport after Close.
	ErrClosed = errors.New("transport closed")
	// ErrUnexpectedMessage is returned when a peer sends a message of the wrong kind.
	ErrUnexpectedMessage = errors.New("unexpected message")
	// ErrNoRoute is returned when no link exists between two ranks.
	ErrNoRoute = errors.New("no route to rank")
)

// Header tells a worker what job it is about to receive a slice of.
type Header struct {
	JobID    string
	Width    int
	Height   int
	Channels int
	Filters  []string
}

// RowBlock carries image rows [Start, Start+Count), one contiguous byte
// plane per channel (channel-planar, never interleaved).
type RowBlock struct {
	Start  int
	Count  int
	Width  int
	Planes [][]byte
}

// Validate checks that every plane holds exactly Count rows of Width samples.
func (b RowBlock) Validate() error {
	if b.Start < 0 || b.Count < 0 || b.Width < 1 {
		return fmt.Errorf("invalid row block start=%d count=%d width=%d", b.Start, b.Count, b.Width)
	}
	if len(b.Planes) == 0 {
		return errors.New("row block has no planes")
	}
	for c, p := range b.Planes {
		if len(p) != b.Count*b.Width {
			return fmt.Errorf("plane %d has %d bytes, want %d", c, len(p), b.Count*b.Width)
		}
	}
	return nil
}

func (b RowBlock) clone() RowBlock {
	planes := make([][]byte, len(b.Planes))
	for c, p := range b.Planes {
		planes[c] = append([]byte(nil), p...)
	}
	b.Planes = planes
	return b
}

func (h Header) clone() Header {
	h.Filters = append([]string(nil), h.Filters...)
	return h
}

// Transport is one rank's view of the job's message-passing fabric.
// Send operations block until the message is handed to the substrate;
// receive operations block until a message from that rank arrives or ctx
// is done.
type Transport interface {
	Rank() int
	Size() int
	SendHeader(ctx context.Context, to int, h Header) error
	ReceiveHeader(ctx context.Context, from int) (Header, error)
	SendRows(ctx context.Context, to int, b RowBlock) error
	ReceiveRows(ctx context.Context, from int) (RowBlock, error)
	Close() error
}

// link is the substrate-specific half of a Transport.
type link interface {
	send(ctx context.Context, to int, f frame) error
	recv(ctx context.Context, from int) (frame, error)
	close() error
}

// endpoint implements Transport over any link.
type endpoint struct {
	rank int
	size int
	link link
}

func (e *endpoint) Rank() int { return e.rank }
func (e *endpoint) Size() int { return e.size }

func (e *endpoint) checkPeer(peer int) error {
	if peer < 0 || peer >= e.size || peer == e.rank {
		return fmt.Errorf("%w: %d (self %d, size %d)", ErrNoRoute, peer, e.rank, e.size)
	}
	return nil
}

func (e *endpoint) SendHeader(ctx context.Context, to int, h Header) error {
	if err := e.checkPeer(to); err != nil {
		return err
	}
	return e.link.send(ctx, to, frame{kind: kindHeader, header: h.clone()})
}

func (e *endpoint) ReceiveHeader(ctx context.Context, from int) (Header, error) {
	if err := e.checkPeer(from); err != nil {
		return Header{}, err
	}
	f, err := e.link.recv(ctx, from)
	if err != nil {
		return Header{}, err
	}
	if f.kind != kindHeader {
		return Header{}, fmt.Errorf("%w: got %s from rank %d, want header", ErrUnexpectedMessage, f.kind, from)
	}
	return f.header, nil
}

func (e *endpoint) SendRows(ctx context.Context, to int, b RowBlock) error {
	if err := e.checkPeer(to); err != nil {
		return err
	}
	if err := b.Validate(); err != nil {
		return err
	}
	return e.link.send(ctx, to, frame{kind: kindRows, rows: b.clone()})
}

func (e *endpoint) ReceiveRows(ctx context.Context, from int) (RowBlock, error) {
	if err := e.checkPeer(from); err != nil {
		return RowBlock{}, err
	}
	f, err := e.link.recv(ctx, from)
	if err != nil {
		return RowBlock{}, err
	}
	if f.kind != kindRows {
		return RowBlock{}, fmt.Errorf("%w: got %s from rank %d, want rows", ErrUnexpectedMessage, f.kind, from)
	}
	if err := f.rows.Validate(); err != nil {
		return RowBlock{}, fmt.Errorf("rows from rank %d: %w", from, err)
	}
	return f.rows, nil
}

func (e *endpoint) Close() error {
	return e.link.close()
}
