package framecache

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"minicap/pkg/models"
)

func frameOf(b byte, n int) models.EncodedFrame {
	return models.EncodedFrame{Data: bytes.Repeat([]byte{b}, n), Width: 1, Height: 1}
}

func TestSnapshotEmpty(t *testing.T) {
	c := New()
	if _, ok := c.Snapshot(); ok {
		t.Error("Snapshot() on empty cache reported a frame")
	}
	if c.Seq() != 0 {
		t.Errorf("Seq() = %d, want 0", c.Seq())
	}
}

func TestSnapshotReturnsLatestOnly(t *testing.T) {
	c := New()
	for i := 1; i <= 10; i++ {
		if seq := c.Store(frameOf(byte(i), i)); seq != uint64(i) {
			t.Fatalf("Store() seq = %d, want %d", seq, i)
		}
	}

	frame, ok := c.Snapshot()
	if !ok {
		t.Fatal("Snapshot() reported empty cache")
	}
	if !bytes.Equal(frame.Data, bytes.Repeat([]byte{10}, 10)) {
		t.Errorf("Snapshot() = %v, want frame 10", frame.Data)
	}
	if frame.Seq != 10 {
		t.Errorf("frame.Seq = %d, want 10", frame.Seq)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	c := New()
	c.Store(frameOf('a', 8))

	first, _ := c.Snapshot()
	first.Data[0] = 'z'

	second, _ := c.Snapshot()
	if !bytes.Equal(second.Data, bytes.Repeat([]byte{'a'}, 8)) {
		t.Errorf("cached frame changed through a snapshot: %q", second.Data)
	}

	waited, err := c.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}
	waited.Data[1] = 'z'
	if third, _ := c.Snapshot(); third.Data[1] != 'a' {
		t.Error("cached frame changed through Wait")
	}
}

func TestWaitBlocksUntilFirstStore(t *testing.T) {
	c := New()
	got := make(chan models.EncodedFrame, 1)

	go func() {
		frame, err := c.Wait(context.Background())
		if err != nil {
			t.Errorf("Wait() failed: %v", err)
		}
		got <- frame
	}()

	select {
	case <-got:
		t.Fatal("Wait() returned before any Store")
	case <-time.After(20 * time.Millisecond):
	}

	c.Store(frameOf('x', 3))

	select {
	case frame := <-got:
		if string(frame.Data) != "xxx" {
			t.Errorf("Wait() = %q, want xxx", frame.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait() did not return after Store")
	}
}

func TestWaitHonorsContext(t *testing.T) {
	c := New()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := c.Wait(ctx); err != context.DeadlineExceeded {
		t.Errorf("Wait() error = %v, want DeadlineExceeded", err)
	}
}

// Every snapshot taken while writers race must equal one complete stored frame.
func TestNoTornReads(t *testing.T) {
	c := New()
	c.Store(frameOf(0, 4096))

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; ; i++ {
				select {
				case <-stop:
					return
				default:
				}
				b := byte(w*64 + i%64)
				c.Store(frameOf(b, 1024+int(b)))
			}
		}(w)
	}

	for i := 0; i < 5000; i++ {
		frame, ok := c.Snapshot()
		if !ok {
			t.Fatal("Snapshot() reported empty cache")
		}
		first := frame.Data[0]
		if first != 0 && len(frame.Data) != 1024+int(first) {
			t.Fatalf("frame length %d does not match marker %d", len(frame.Data), first)
		}
		for _, b := range frame.Data {
			if b != first {
				t.Fatalf("torn frame: mixed bytes %d and %d", first, b)
			}
		}
	}

	close(stop)
	wg.Wait()
}
