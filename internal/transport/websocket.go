package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSOptions configures the websocket substrate.
type WSOptions struct {
	// Compress enables zstd on outgoing frames.
	Compress bool
	// WriteWait bounds a single frame write. Zero means no deadline.
	WriteWait time.Duration
	// MaxMessageSize bounds an incoming frame. Zero means unlimited.
	MaxMessageSize int64
	Logger         *zap.Logger
}

func (o WSOptions) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// wsConn is one websocket peer. Reads are pumped into inbox by readPump so
// that frames stay in arrival order; writes are serialised by writeMu.
type wsConn struct {
	conn      *websocket.Conn
	codec     *Codec
	writeWait time.Duration

	writeMu  sync.Mutex
	inbox    chan frame
	done     chan struct{}
	readErr  error
	quit     chan struct{}
	quitOnce sync.Once
}

func newWSConn(conn *websocket.Conn, codec *Codec, opts WSOptions) *wsConn {
	if opts.MaxMessageSize > 0 {
		conn.SetReadLimit(opts.MaxMessageSize)
	}
	c := &wsConn{
		conn:      conn,
		codec:     codec,
		writeWait: opts.WriteWait,
		inbox:     make(chan frame, 16),
		done:      make(chan struct{}),
		quit:      make(chan struct{}),
	}
	go c.readPump()
	return c
}

func (c *wsConn) readPump() {
	defer close(c.done)
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			c.readErr = err
			return
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		f, err := c.codec.decode(data)
		if err != nil {
			c.readErr = err
			return
		}
		select {
		case c.inbox <- f:
		case <-c.quit:
			return
		}
	}
}

func (c *wsConn) write(ctx context.Context, f frame) error {
	data, err := c.codec.encode(f)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Time{}
	if c.writeWait > 0 {
		deadline = time.Now().Add(c.writeWait)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (c *wsConn) read(ctx context.Context) (frame, error) {
	select {
	case f := <-c.inbox:
		return f, nil
	case <-c.done:
		// the pump may have queued frames before failing
		select {
		case f := <-c.inbox:
			return f, nil
		default:
		}
		if c.readErr == nil || websocket.IsCloseError(c.readErr, websocket.CloseNormalClosure) {
			return frame{}, ErrClosed
		}
		return frame{}, fmt.Errorf("read: %w", c.readErr)
	case <-ctx.Done():
		return frame{}, ctx.Err()
	}
}

func (c *wsConn) close() error {
	c.quitOnce.Do(func() { close(c.quit) })
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.conn.Close()
}

// Hub is the coordinator side of the websocket star. Workers connecting to
// it are assigned ranks 1..size-1 in the order they arrive.
type Hub struct {
	size     int
	opts     WSOptions
	codec    *Codec
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu        sync.Mutex
	conns     []*wsConn
	ready     chan struct{}
	closeOnce sync.Once
}

// NewHub creates a hub for a job of size ranks, the coordinator included.
func NewHub(size int, opts WSOptions) (*Hub, error) {
	if size < 1 {
		return nil, fmt.Errorf("invalid job size %d", size)
	}
	codec, err := NewCodec(opts.Compress)
	if err != nil {
		return nil, err
	}
	h := &Hub{
		size:   size,
		opts:   opts,
		codec:  codec,
		logger: opts.logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 << 10,
			WriteBufferSize: 64 << 10,
		},
		ready: make(chan struct{}),
	}
	if size == 1 {
		close(h.ready)
	}
	return h, nil
}

// ServeHTTP upgrades a worker connection and assigns it the next rank.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	full := len(h.conns) >= h.size-1
	h.mu.Unlock()
	if full {
		http.Error(w, "job already has all its workers", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err), zap.String("remote", r.RemoteAddr))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.conns) >= h.size-1 {
		_ = conn.Close()
		return
	}
	rank := len(h.conns) + 1
	wc := newWSConn(conn, h.codec, h.opts)
	if err := wc.write(r.Context(), frame{kind: kindWelcome, rank: rank, size: h.size}); err != nil {
		h.logger.Warn("welcome failed", zap.Error(err), zap.Int("rank", rank))
		_ = wc.close()
		return
	}
	h.conns = append(h.conns, wc)
	h.logger.Info("worker joined",
		zap.Int("rank", rank),
		zap.String("remote", r.RemoteAddr),
		zap.Int("joined", len(h.conns)),
		zap.Int("expected", h.size-1))
	if len(h.conns) == h.size-1 {
		close(h.ready)
	}
}

// Wait blocks until every worker has joined and returns rank 0's transport.
func (h *Hub) Wait(ctx context.Context) (Transport, error) {
	select {
	case <-h.ready:
		return &endpoint{rank: 0, size: h.size, link: hubLink{h}}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) conn(rank int) (*wsConn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if rank < 1 || rank > len(h.conns) {
		return nil, fmt.Errorf("%w: %d", ErrNoRoute, rank)
	}
	return h.conns[rank-1], nil
}

type hubLink struct{ h *Hub }

func (l hubLink) send(ctx context.Context, to int, f frame) error {
	c, err := l.h.conn(to)
	if err != nil {
		return err
	}
	return c.write(ctx, f)
}

func (l hubLink) recv(ctx context.Context, from int) (frame, error) {
	c, err := l.h.conn(from)
	if err != nil {
		return frame{}, err
	}
	return c.read(ctx)
}

func (l hubLink) close() error {
	var errs []error
	l.h.closeOnce.Do(func() {
		l.h.mu.Lock()
		defer l.h.mu.Unlock()
		for _, c := range l.h.conns {
			if err := c.close(); err != nil && !errors.Is(err, net.ErrClosed) {
				errs = append(errs, err)
			}
		}
		// the read pumps share the codec
		for _, c := range l.h.conns {
			<-c.done
		}
		l.h.codec.Close()
	})
	return errors.Join(errs...)
}

// Serve listens on addr and mounts hub at path. The returned server must be
// shut down by the caller; the returned address is the bound one.
func Serve(addr, path string, hub *Hub) (*http.Server, net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle(path, hub)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			hub.logger.Error("coordinator server stopped", zap.Error(err))
		}
	}()
	return srv, ln.Addr(), nil
}

// workerLink is a worker's single connection to the coordinator.
type workerLink struct {
	conn  *wsConn
	codec *Codec
	once  sync.Once
}

// DialWorker connects to a coordinator hub at url and waits for its rank.
func DialWorker(ctx context.Context, url string, opts WSOptions) (Transport, error) {
	codec, err := NewCodec(opts.Compress)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		codec.Close()
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	link := &workerLink{conn: newWSConn(conn, codec, opts), codec: codec}

	f, err := link.conn.read(ctx)
	if err != nil {
		_ = link.close()
		return nil, fmt.Errorf("await rank: %w", err)
	}
	if f.kind != kindWelcome {
		_ = link.close()
		return nil, fmt.Errorf("%w: got %s, want welcome", ErrUnexpectedMessage, f.kind)
	}
	opts.logger().Info("joined coordinator", zap.String("url", url), zap.Int("rank", f.rank), zap.Int("size", f.size))
	return &endpoint{rank: f.rank, size: f.size, link: link}, nil
}

func (l *workerLink) send(ctx context.Context, to int, f frame) error {
	if to != 0 {
		return fmt.Errorf("%w: %d (workers only reach the coordinator)", ErrNoRoute, to)
	}
	return l.conn.write(ctx, f)
}

func (l *workerLink) recv(ctx context.Context, from int) (frame, error) {
	if from != 0 {
		return frame{}, fmt.Errorf("%w: %d (workers only reach the coordinator)", ErrNoRoute, from)
	}
	return l.conn.read(ctx)
}

func (l *workerLink) close() error {
	var err error
	l.once.Do(func() {
		err = l.conn.close()
		<-l.conn.done
		l.codec.Close()
	})
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
