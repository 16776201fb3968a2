package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/sidecar/internal/models"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: "sidecar.created", Data: map[string]string{"path": "a.png.md"}})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: sidecar.created") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"path":"a.png.md"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestNotifyThrottlesErrorsPerPath(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Notify(models.Notice{Kind: models.NoticeError, Path: "a.png", Message: "boom"})
	// Same path inside the window is dropped.
	b.Notify(models.Notice{Kind: models.NoticeError, Path: "a.png", Message: "boom again"})
	// Other paths and non-error notices pass.
	b.Notify(models.Notice{Kind: models.NoticeError, Path: "b.png", Message: "boom"})
	b.Notify(models.Notice{Kind: models.NoticeCreated, Path: "a.png.md"})
	b.Notify(models.Notice{Kind: models.NoticeCreated, Path: "a.png.md"})

	time.Sleep(50 * time.Millisecond)
	errorCount := 0
	createdCount := 0
loop:
	for {
		select {
		case msg := <-ch:
			s := string(msg)
			switch {
			case strings.Contains(s, "event: sidecar.error"):
				errorCount++
			case strings.Contains(s, "event: sidecar.created"):
				createdCount++
			}
		default:
			break loop
		}
	}

	if errorCount != 2 {
		t.Errorf("error notices = %d, want 2 (throttled per path)", errorCount)
	}
	if createdCount != 2 {
		t.Errorf("created notices = %d, want 2", createdCount)
	}
}

func TestNoticePayload(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Notify(models.Notice{Kind: models.NoticeRenamed, Path: "assets/photo.png.md", Message: "moved"})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: sidecar.renamed") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"path":"assets/photo.png.md"`) || !strings.Contains(s, `"message":"moved"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	// Start handler in background.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	// Give handler time to subscribe.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.Notify(models.Notice{Kind: models.NoticeDeleted, Path: "x.png.md"})
	time.Sleep(50 * time.Millisecond)

	// Cancel context to disconnect.
	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: sidecar.deleted") {
		t.Errorf("handler output missing event: %q", body)
	}

	// Client should be cleaned up.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Fill buffer (capacity 64) and then one more should not block.
	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
	// If we reach here without deadlock, the test passes.
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// Should be safe no-op after close.
	b.Publish(Event{Type: "sidecar.deleted", Data: map[string]string{"path": "x.png.md"}})
	b.Notify(models.Notice{Kind: models.NoticeError, Path: "x.png"})
}
