package transport

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"
)

func sampleBlock() RowBlock {
	return RowBlock{
		Start:  3,
		Count:  2,
		Width:  3,
		Planes: [][]byte{{1, 2, 3, 4, 5, 6}, {7, 8, 9, 10, 11, 12}, {13, 14, 15, 16, 17, 18}},
	}
}

func sampleHeader() Header {
	return Header{JobID: "job-1", Width: 3, Height: 10, Channels: 3, Filters: []string{"sharpen", "smooth"}}
}

func TestRowBlock_Validate(t *testing.T) {
	tests := []struct {
		name    string
		block   RowBlock
		wantErr bool
	}{
		{"ok", sampleBlock(), false},
		{"empty block", RowBlock{Start: 9, Count: 0, Width: 4, Planes: [][]byte{nil}}, false},
		{"no planes", RowBlock{Count: 1, Width: 1}, true},
		{"short plane", RowBlock{Count: 2, Width: 2, Planes: [][]byte{{1, 2, 3}}}, true},
		{"zero width", RowBlock{Count: 1, Width: 0, Planes: [][]byte{{}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.block.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		codec, err := NewCodec(compress)
		if err != nil {
			t.Fatalf("NewCodec(%v) returned error: %v", compress, err)
		}
		defer codec.Close()

		frames := []frame{
			{kind: kindHeader, header: sampleHeader()},
			{kind: kindRows, rows: sampleBlock()},
			{kind: kindWelcome, rank: 2, size: 4},
		}
		for _, want := range frames {
			data, err := codec.encode(want)
			if err != nil {
				t.Fatalf("encode(%s) returned error: %v", want.kind, err)
			}
			if compressed := data[2]&flagCompressed != 0; compressed != compress {
				t.Errorf("compressed flag = %v, want %v", compressed, compress)
			}
			got, err := codec.decode(data)
			if err != nil {
				t.Fatalf("decode(%s) returned error: %v", want.kind, err)
			}
			if diff := cmp.Diff(want, got, cmp.AllowUnexported(frame{})); diff != "" {
				t.Errorf("round trip %s (compress=%v) mismatch (-want +got):\n%s", want.kind, compress, diff)
			}
		}
	}
}

func TestCodec_DecodeErrors(t *testing.T) {
	codec, _ := NewCodec(false)
	defer codec.Close()

	good, _ := codec.encode(frame{kind: kindRows, rows: sampleBlock()})
	tests := []struct {
		name string
		data []byte
	}{
		{"too short", []byte{'H', 1}},
		{"bad magic", append([]byte{'X'}, good[1:]...)},
		{"unknown kind", []byte{'H', 1, 0, 99}},
		{"truncated body", good[:len(good)-1]},
		{"trailing bytes", append(append([]byte(nil), good...), 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := codec.decode(tt.data); err == nil {
				t.Error("decode() returned nil error")
			}
		})
	}
}

func TestLocalMesh_OrderAndIsolation(t *testing.T) {
	ctx := context.Background()
	mesh := NewLocalMesh(3, 4)
	coord, worker := mesh[0], mesh[2]

	if coord.Rank() != 0 || worker.Rank() != 2 || worker.Size() != 3 {
		t.Fatalf("ranks = %d, %d, size %d", coord.Rank(), worker.Rank(), worker.Size())
	}

	block := sampleBlock()
	if err := coord.SendHeader(ctx, 2, sampleHeader()); err != nil {
		t.Fatalf("SendHeader() returned error: %v", err)
	}
	if err := coord.SendRows(ctx, 2, block); err != nil {
		t.Fatalf("SendRows() returned error: %v", err)
	}
	block.Planes[0][0] = 99

	h, err := worker.ReceiveHeader(ctx, 0)
	if err != nil {
		t.Fatalf("ReceiveHeader() returned error: %v", err)
	}
	if diff := cmp.Diff(sampleHeader(), h); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
	rows, err := worker.ReceiveRows(ctx, 0)
	if err != nil {
		t.Fatalf("ReceiveRows() returned error: %v", err)
	}
	if diff := cmp.Diff(sampleBlock(), rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestLocalMesh_UnexpectedKind(t *testing.T) {
	ctx := context.Background()
	mesh := NewLocalMesh(2, 1)
	if err := mesh[1].SendRows(ctx, 0, sampleBlock()); err != nil {
		t.Fatalf("SendRows() returned error: %v", err)
	}
	if _, err := mesh[0].ReceiveHeader(ctx, 1); !errors.Is(err, ErrUnexpectedMessage) {
		t.Errorf("ReceiveHeader() error = %v, want ErrUnexpectedMessage", err)
	}
}

func TestLocalMesh_BadPeer(t *testing.T) {
	mesh := NewLocalMesh(2, 1)
	ctx := context.Background()
	for _, peer := range []int{-1, 0, 2} {
		if err := mesh[0].SendHeader(ctx, peer, sampleHeader()); !errors.Is(err, ErrNoRoute) {
			t.Errorf("SendHeader(%d) error = %v, want ErrNoRoute", peer, err)
		}
	}
}

func TestLocalMesh_ReceiveCanceled(t *testing.T) {
	mesh := NewLocalMesh(2, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := mesh[1].ReceiveRows(ctx, 0); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("ReceiveRows() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestLocalMesh_Closed(t *testing.T) {
	mesh := NewLocalMesh(2, 1)
	if err := mesh[0].Close(); err != nil {
		t.Fatalf("Close() returned error: %v", err)
	}
	if err := mesh[0].Close(); err != nil {
		t.Errorf("second Close() returned error: %v", err)
	}
	if err := mesh[0].SendHeader(context.Background(), 1, sampleHeader()); !errors.Is(err, ErrClosed) {
		t.Errorf("SendHeader() after Close error = %v, want ErrClosed", err)
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebsocket_StarExchange(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := WSOptions{Compress: true, WriteWait: 5 * time.Second, Logger: zaptest.NewLogger(t)}
	hub, err := NewHub(3, opts)
	if err != nil {
		t.Fatalf("NewHub() returned error: %v", err)
	}
	srv := httptest.NewServer(hub)
	defer srv.Close()

	w1, err := DialWorker(ctx, wsURL(srv), opts)
	if err != nil {
		t.Fatalf("DialWorker() returned error: %v", err)
	}
	defer w1.Close()
	w2, err := DialWorker(ctx, wsURL(srv), WSOptions{})
	if err != nil {
		t.Fatalf("DialWorker() returned error: %v", err)
	}
	defer w2.Close()

	if w1.Rank() != 1 || w2.Rank() != 2 || w2.Size() != 3 {
		t.Fatalf("ranks = %d, %d, size %d, want 1, 2, 3", w1.Rank(), w2.Rank(), w2.Size())
	}

	coord, err := hub.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() returned error: %v", err)
	}
	defer coord.Close()

	if _, err := DialWorker(ctx, wsURL(srv), WSOptions{}); err == nil {
		t.Error("DialWorker() joined a full job")
	}

	for _, w := range []Transport{w1, w2} {
		if err := coord.SendHeader(ctx, w.Rank(), sampleHeader()); err != nil {
			t.Fatalf("SendHeader(%d) returned error: %v", w.Rank(), err)
		}
		if err := coord.SendRows(ctx, w.Rank(), sampleBlock()); err != nil {
			t.Fatalf("SendRows(%d) returned error: %v", w.Rank(), err)
		}
	}

	for _, w := range []Transport{w1, w2} {
		h, err := w.ReceiveHeader(ctx, 0)
		if err != nil {
			t.Fatalf("rank %d ReceiveHeader() returned error: %v", w.Rank(), err)
		}
		if diff := cmp.Diff(sampleHeader(), h); diff != "" {
			t.Errorf("rank %d header mismatch (-want +got):\n%s", w.Rank(), diff)
		}
		rows, err := w.ReceiveRows(ctx, 0)
		if err != nil {
			t.Fatalf("rank %d ReceiveRows() returned error: %v", w.Rank(), err)
		}
		rows.Start = w.Rank()
		if err := w.SendRows(ctx, 0, rows); err != nil {
			t.Fatalf("rank %d SendRows() returned error: %v", w.Rank(), err)
		}
	}

	for _, rank := range []int{1, 2} {
		rows, err := coord.ReceiveRows(ctx, rank)
		if err != nil {
			t.Fatalf("ReceiveRows(%d) returned error: %v", rank, err)
		}
		if rows.Start != rank {
			t.Errorf("ReceiveRows(%d).Start = %d, want %d", rank, rows.Start, rank)
		}
	}

	if err := w1.SendRows(ctx, 2, sampleBlock()); !errors.Is(err, ErrNoRoute) {
		t.Errorf("worker to worker SendRows() error = %v, want ErrNoRoute", err)
	}
}

func TestHub_WaitCanceled(t *testing.T) {
	hub, err := NewHub(2, WSOptions{})
	if err != nil {
		t.Fatalf("NewHub() returned error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := hub.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() error = %v, want context.Canceled", err)
	}
}

func TestWebsocket_CloseStopsReadPumps(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := WSOptions{Compress: true, WriteWait: 5 * time.Second}
	hub, err := NewHub(2, opts)
	if err != nil {
		t.Fatalf("NewHub() returned error: %v", err)
	}
	srv := httptest.NewServer(hub)
	defer srv.Close()

	w, err := DialWorker(ctx, wsURL(srv), opts)
	if err != nil {
		t.Fatalf("DialWorker() returned error: %v", err)
	}
	coord, err := hub.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() returned error: %v", err)
	}

	// keep frames in flight while both sides close
	for range 4 {
		if err := w.SendRows(ctx, 0, sampleBlock()); err != nil {
			t.Fatalf("SendRows() returned error: %v", err)
		}
	}

	if err := coord.Close(); err != nil {
		t.Errorf("coordinator Close() returned error: %v", err)
	}
	for _, c := range hub.conns {
		select {
		case <-c.done:
		default:
			t.Error("hub read pump still running after Close")
		}
	}

	if err := w.Close(); err != nil {
		t.Errorf("worker Close() returned error: %v", err)
	}
	link := w.(*endpoint).link.(*workerLink)
	select {
	case <-link.conn.done:
	default:
		t.Error("worker read pump still running after Close")
	}
}
