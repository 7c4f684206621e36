package retention

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/wwwzy/PumpCPQ/internal/model"
	"github.com/wwwzy/PumpCPQ/internal/storage"
)

func openTestStorage(t *testing.T, ctx context.Context) *storage.Storage {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "pumpcpq-test.db")
	store, err := storage.Open(ctx, storage.Config{Path: dbPath, EnableWAL: true})
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seed(t *testing.T, ctx context.Context, store *storage.Storage, now time.Time) {
	t.Helper()

	for i, age := range []time.Duration{10 * 24 * time.Hour, 9 * 24 * time.Hour, time.Hour} {
		rec := &storage.AuditRecord{
			TraceID:   "trace",
			Action:    "llm.scripted.chat",
			Status:    "success",
			CreatedAt: now.Add(-age),
		}
		if err := store.InsertAuditRecord(ctx, rec); err != nil {
			t.Fatalf("insert audit %d: %v", i, err)
		}
	}
	for i, age := range []time.Duration{400 * 24 * time.Hour, 2 * time.Hour} {
		c := model.Canvas{
			SessionID: "sess-" + string(rune('a'+i)),
			Customer:  model.CustomerInfo{Name: "Dana", Email: "dana@example.com"},
			Timestamp: now.Add(-age),
		}
		if err := store.SaveCanvas(ctx, c); err != nil {
			t.Fatalf("save canvas %d: %v", i, err)
		}
	}
}

func TestRunOnceDeletesExpiredRows(t *testing.T) {
	ctx := context.Background()
	store := openTestStorage(t, ctx)
	now := time.Now().UTC()
	seed(t, ctx, store, now)

	c, err := NewCollector(store, Config{
		KeepAudit:  7 * 24 * time.Hour,
		KeepQuotes: 365 * 24 * time.Hour,
		BatchRows:  1,
	}, nil)
	if err != nil {
		t.Fatalf("new collector: %v", err)
	}

	res, err := c.RunOnce(ctx, now)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if res.AuditRecords != 2 || res.Quotes != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}

	audits, err := store.CountAuditRecords(ctx)
	if err != nil {
		t.Fatalf("count audits: %v", err)
	}
	quotes, err := store.CountQuotes(ctx)
	if err != nil {
		t.Fatalf("count quotes: %v", err)
	}
	if audits != 1 || quotes != 1 {
		t.Fatalf("expected 1 audit and 1 quote left, got %d and %d", audits, quotes)
	}
}

func TestQuotesKeptForeverByDefault(t *testing.T) {
	ctx := context.Background()
	store := openTestStorage(t, ctx)
	now := time.Now().UTC()
	seed(t, ctx, store, now)

	res, err := Prune(ctx, store, DefaultConfig())
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if res.Quotes != 0 {
		t.Fatalf("quotes must be kept with default config, deleted %d", res.Quotes)
	}
	if res.AuditRecords != 2 {
		t.Fatalf("expected 2 audit records deleted, got %d", res.AuditRecords)
	}
}

type failingStore struct {
	mu    sync.Mutex
	calls int
}

func (s *failingStore) DeleteAuditRecordsBeforeLimited(context.Context, time.Time, int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return 0, errors.New("database is locked")
}

func (s *failingStore) DeleteQuotesBeforeLimited(context.Context, time.Time, int) (int64, error) {
	return 0, nil
}

func TestRunOnceReportsErrors(t *testing.T) {
	var reported error
	c, err := NewCollector(&failingStore{}, Config{
		KeepAudit: time.Hour,
		OnError:   func(err error) { reported = err },
	}, nil)
	if err != nil {
		t.Fatalf("new collector: %v", err)
	}
	if _, err := c.RunOnce(context.Background(), time.Now()); err == nil {
		t.Fatalf("expected error")
	}
	if reported == nil {
		t.Fatalf("expected OnError to be called")
	}
}

func TestManagerLifecycle(t *testing.T) {
	ctx := context.Background()
	store := openTestStorage(t, ctx)
	now := time.Now().UTC()
	seed(t, ctx, store, now)

	cfg := Config{Enabled: true, Interval: 10 * time.Millisecond, KeepAudit: 24 * time.Hour}
	c, err := NewCollector(store, cfg, nil)
	if err != nil {
		t.Fatalf("new collector: %v", err)
	}
	m := NewManager(cfg, c)
	if err := m.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Start(ctx); err == nil {
		t.Fatalf("expected second start to fail")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		n, err := store.CountAuditRecords(ctx)
		if err != nil {
			t.Fatalf("count audits: %v", err)
		}
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("retention did not run, %d audit records left", n)
		}
		time.Sleep(10 * time.Millisecond)
	}

	m.Stop()
	if err := m.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestManagerDisabled(t *testing.T) {
	m := NewManager(Config{Enabled: false}, nil)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	m.Stop()
	if err := m.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
}
