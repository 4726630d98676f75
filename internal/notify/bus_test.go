package notify

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"banter/api/internal/comment"
)

func setupTestBus(t *testing.T) (*Bus, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	bus, err := NewBus("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create bus: %v", err)
	}
	return bus, s
}

func TestPublishAndReceiveChange(t *testing.T) {
	bus, _ := setupTestBus(t)
	defer bus.Close()

	ctx := context.Background()
	sub, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Close()

	if err := bus.PublishChange(ctx, comment.KindComment, "cmt_1"); err != nil {
		t.Fatalf("PublishChange failed: %v", err)
	}

	select {
	case change := <-sub.Marks():
		if change.Collection != comment.KindComment || change.ID != "cmt_1" {
			t.Errorf("unexpected change: %+v", change)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change mark")
	}
}

func TestCloseStopsDelivery(t *testing.T) {
	bus, _ := setupTestBus(t)
	defer bus.Close()

	ctx := context.Background()
	sub, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	sub.Close()

	if err := bus.PublishChange(ctx, comment.KindComment, "cmt_after_close"); err != nil {
		t.Fatalf("PublishChange failed: %v", err)
	}

	deadline := time.After(200 * time.Millisecond)
	for {
		select {
		case change, ok := <-sub.Marks():
			if !ok {
				return // channel drained and closed, nothing delivered late
			}
			if change.ID == "cmt_after_close" {
				t.Fatal("received a mark published after Close")
			}
		case <-deadline:
			t.Fatal("marks channel never closed after Close")
		}
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	bus, _ := setupTestBus(t)
	defer bus.Close()

	sub, err := bus.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	sub.Close()
	sub.Close()
	sub.Close()
}
