package audit_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jmerrifield20/provenance/internal/audit"
	"go.uber.org/zap"
)

var ctx = context.Background()

func TestRecord_assignsSequentialIDs(t *testing.T) {
	l := audit.NewLogger(audit.NewMemoryStore(), zap.NewNop())
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 6789, time.UTC)
	l.SetClock(func() time.Time { return fixed })

	e1, err := l.Record(ctx, "u1", "product.create", "created p1")
	if err != nil {
		t.Fatal(err)
	}
	e2, err := l.Record(ctx, "u2", "checkpoint.append", "appended block 1")
	if err != nil {
		t.Fatal(err)
	}
	if e1.ID != 1 || e2.ID != 2 {
		t.Errorf("ids: got %d, %d, want 1, 2", e1.ID, e2.ID)
	}
	if !e1.Timestamp.Equal(fixed.Truncate(time.Microsecond)) {
		t.Errorf("timestamp: got %v", e1.Timestamp)
	}
}

func TestListRecent_newestFirst(t *testing.T) {
	l := audit.NewLogger(audit.NewMemoryStore(), zap.NewNop())
	for _, a := range []string{"a", "b", "c", "d"} {
		if _, err := l.Record(ctx, "u", a, ""); err != nil {
			t.Fatal(err)
		}
	}

	got, err := l.ListRecent(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	for i, want := range []string{"d", "c", "b"} {
		if got[i].Action != want {
			t.Errorf("entry %d: got %q, want %q", i, got[i].Action, want)
		}
	}

	all, _ := l.ListRecent(ctx, 100)
	if len(all) != 4 {
		t.Errorf("expected all 4 entries, got %d", len(all))
	}
}

func TestListRecent_returnsCopies(t *testing.T) {
	l := audit.NewLogger(audit.NewMemoryStore(), zap.NewNop())
	_, _ = l.Record(ctx, "u", "a", "original")

	got, _ := l.ListRecent(ctx, 1)
	got[0].Details = "edited"

	again, _ := l.ListRecent(ctx, 1)
	if again[0].Details != "original" {
		t.Error("stored entry was mutated through a returned pointer")
	}
}

func TestRecord_concurrentWritersGapFree(t *testing.T) {
	l := audit.NewLogger(audit.NewMemoryStore(), zap.NewNop())

	const writers, perWriter = 8, 50
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if _, err := l.Record(ctx, "u", "checkpoint.append", ""); err != nil {
					t.Error(err)
				}
			}
		}()
	}
	wg.Wait()

	entries, _ := l.ListRecent(ctx, writers*perWriter)
	if len(entries) != writers*perWriter {
		t.Fatalf("expected %d entries, got %d", writers*perWriter, len(entries))
	}
	for i, e := range entries {
		if want := int64(writers*perWriter - i); e.ID != want {
			t.Fatalf("entry %d has id %d, want %d", i, e.ID, want)
		}
	}
}
