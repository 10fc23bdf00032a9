package transport

import (
	"context"
	"sync"
)

// localLink connects one rank to every other rank of an in-process mesh.
// Frames are deep-copied on send so no two ranks ever share a buffer.
type localLink struct {
	rank int
	mesh *localMesh
	once sync.Once
	done chan struct{}
}

type localMesh struct {
	// queues[from][to]
	queues [][]chan frame
}

// NewLocalMesh returns size fully connected in-process transports, one per
// rank. Each ordered pair of ranks gets its own FIFO queue of depth buffer.
func NewLocalMesh(size, buffer int) []Transport {
	m := &localMesh{queues: make([][]chan frame, size)}
	for from := range size {
		m.queues[from] = make([]chan frame, size)
		for to := range size {
			if from != to {
				m.queues[from][to] = make(chan frame, max(buffer, 0))
			}
		}
	}

	out := make([]Transport, size)
	for rank := range size {
		out[rank] = &endpoint{
			rank: rank,
			size: size,
			link: &localLink{rank: rank, mesh: m, done: make(chan struct{})},
		}
	}
	return out
}

func (l *localLink) send(ctx context.Context, to int, f frame) error {
	select {
	case <-l.done:
		return ErrClosed
	default:
	}
	select {
	case l.mesh.queues[l.rank][to] <- f:
		return nil
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *localLink) recv(ctx context.Context, from int) (frame, error) {
	select {
	case f := <-l.mesh.queues[from][l.rank]:
		return f, nil
	case <-l.done:
		return frame{}, ErrClosed
	case <-ctx.Done():
		return frame{}, ctx.Err()
	}
}

func (l *localLink) close() error {
	l.once.Do(func() { close(l.done) })
	return nil
}
