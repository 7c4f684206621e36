package storage

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wwwzy/PumpCPQ/internal/model"
)

func openTestStorage(t *testing.T) *Storage {
	t.Helper()

	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "pumpcpq.db")
	s, err := Open(ctx, Config{
		Path:      dbPath,
		EnableWAL: true,
	})
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleCanvas(session string, at time.Time) model.Canvas {
	return model.Canvas{
		SessionID: session,
		Customer:  model.CustomerInfo{Name: "Dana", Company: model.Ptr("Acme Water"), Email: "dana@acme.example"},
		Requirements: model.PumpRequirements{
			GPM: 40, HeadFt: 60, Fluid: "water", PowerAvailable: model.Power230V1Ph,
			Environment: model.EnvNonATEX, MaterialPref: model.MaterialCastIron, MaintenanceBias: model.MaintenanceBudget,
		},
		Configuration: model.PumpConfiguration{
			Family: "P100", ImpellerCode: "IMP-100-S", MotorHP: 3, Voltage: model.Power230V1Ph,
			SealType: model.SealPacking, Material: model.MaterialCastIron, Mount: model.MountCloseCoupled,
		},
		Violations: []string{},
		Approval:   model.ApprovalNotRequired,
		Pricing:    model.Pricing{ListTotal: 1765, DiscountPercent: 20, NetTotal: 1412},
		Timestamp:  at,
	}
}

func TestSaveCanvasRoundtrip(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	at := time.Now().Add(-time.Minute).UTC().Truncate(time.Second)
	if err := s.SaveCanvas(ctx, sampleCanvas("sess-1", at)); err != nil {
		t.Fatalf("save canvas: %v", err)
	}

	q, err := s.GetQuoteBySession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get quote: %v", err)
	}
	if q.Family != "P100" || q.NetTotal != 1412 || !q.Valid || q.Company != "Acme Water" {
		t.Fatalf("unexpected quote row: %+v", q)
	}

	c, err := q.Canvas()
	if err != nil {
		t.Fatalf("decode canvas: %v", err)
	}
	if c.Customer.Name != "Dana" || c.Pricing.ListTotal != 1765 || !c.Timestamp.Equal(at) {
		t.Fatalf("unexpected canvas: %+v", c)
	}

	// 同一会话不能重复落盘
	if err := s.SaveCanvas(ctx, sampleCanvas("sess-1", at)); err == nil {
		t.Fatalf("expected unique violation on duplicate session")
	}

	_, err = s.GetQuoteBySession(ctx, "missing")
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestQueryQuotesAndPrune(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	now := time.Now().UTC()
	old := sampleCanvas("old", now.Add(-40*24*time.Hour))
	mid := sampleCanvas("mid", now.Add(-2*24*time.Hour))
	mid.Customer.Company = model.Ptr("")
	mid.Violations = []string{"Close-coupled mount supports motors up to 7.5 HP; selected motor is 10 HP."}
	mid.Configuration.Family = "P200"
	recent := sampleCanvas("recent", now.Add(-time.Hour))
	for _, c := range []model.Canvas{old, mid, recent} {
		if err := s.SaveCanvas(ctx, c); err != nil {
			t.Fatalf("save %s: %v", c.SessionID, err)
		}
	}

	got, err := s.QueryQuotes(ctx, QuoteQuery{Customer: "acme", Desc: true})
	if err != nil {
		t.Fatalf("query quotes: %v", err)
	}
	// mid 跳过了公司名，不应被 acme 命中
	if len(got) != 2 || got[0].SessionID != "recent" {
		t.Fatalf("unexpected customer query result: %d", len(got))
	}

	got, err = s.QueryQuotes(ctx, QuoteQuery{OnlyInvalid: true})
	if err != nil {
		t.Fatalf("query invalid: %v", err)
	}
	if len(got) != 1 || got[0].Family != "P200" {
		t.Fatalf("unexpected invalid query result: %+v", got)
	}

	var deleted int64
	for {
		aff, err := s.DeleteQuotesBeforeLimited(ctx, now.Add(-30*24*time.Hour), 1)
		if err != nil {
			t.Fatalf("delete old quotes: %v", err)
		}
		if aff == 0 {
			break
		}
		deleted += aff
	}
	if deleted != 1 {
		t.Fatalf("expected delete 1 quote, got %d", deleted)
	}
	if n, err := s.CountQuotes(ctx); err != nil || n != 2 {
		t.Fatalf("expected 2 remaining quotes, got %d (%v)", n, err)
	}
}

func TestAuditInsertQueryUpdate(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	rec := AuditRecord{
		TraceID:   "trace-1",
		SessionID: "sess-1",
		Action:    "llm.openai.chat",
		Status:    "running",
		StartedAt: time.Now().Add(-1 * time.Second).UTC(),
	}
	if err := s.InsertAuditRecord(ctx, &rec); err != nil {
		t.Fatalf("insert audit: %v", err)
	}
	if rec.ID == 0 {
		t.Fatalf("expected audit id to be set")
	}

	got, err := s.QueryAuditRecords(ctx, AuditQuery{TraceID: "trace-1", Limit: 10})
	if err != nil {
		t.Fatalf("query audit: %v", err)
	}
	if len(got) != 1 || got[0].Status != "running" {
		t.Fatalf("unexpected audit records: %+v", got)
	}

	status := "success"
	result := `{"requirements":{"gpm":40}}`
	finished := time.Now().UTC()
	if err := s.UpdateAuditRecord(ctx, rec.ID, AuditUpdate{
		Status:     &status,
		ResultJSON: &result,
		FinishedAt: &finished,
	}); err != nil {
		t.Fatalf("update audit: %v", err)
	}

	got2, err := s.QueryAuditRecords(ctx, AuditQuery{SessionID: "sess-1", Limit: 10})
	if err != nil {
		t.Fatalf("query audit after update: %v", err)
	}
	if len(got2) != 1 || got2[0].Status != "success" || got2[0].ResultJSON != result {
		t.Fatalf("unexpected updated record: %+v", got2)
	}

	if err := s.UpdateAuditRecord(ctx, 9999, AuditUpdate{Status: &status}); !IsNotFound(err) {
		t.Fatalf("expected not found for missing id, got %v", err)
	}
}

func TestAuditPrune(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		rec := AuditRecord{
			Action:    "llm.ollama.chat",
			Status:    "success",
			CreatedAt: now.Add(-time.Duration(10-i) * 24 * time.Hour),
		}
		if err := s.InsertAuditRecord(ctx, &rec); err != nil {
			t.Fatalf("insert audit %d: %v", i, err)
		}
	}

	// 10、9、8 天前的三条早于 7 天
	aff, err := s.DeleteAuditRecordsBeforeLimited(ctx, now.Add(-7*24*time.Hour), 2)
	if err != nil || aff != 2 {
		t.Fatalf("expected limited delete of 2, got %d (%v)", aff, err)
	}

	aff, err = s.DeleteAuditRecordsKeepLatest(ctx, 1)
	if err != nil || aff != 2 {
		t.Fatalf("expected keep-latest to delete 2, got %d (%v)", aff, err)
	}

	left, err := s.QueryAuditRecords(ctx, AuditQuery{})
	if err != nil {
		t.Fatalf("query remaining: %v", err)
	}
	if len(left) != 1 || left[0].CreatedAt.Before(now.Add(-7*24*time.Hour)) {
		t.Fatalf("unexpected remaining audit records: %+v", left)
	}

	aff, err = s.DeleteAuditRecordsBefore(ctx, now)
	if err != nil || aff != 1 {
		t.Fatalf("expected delete 1, got %d (%v)", aff, err)
	}
}

func TestOpenAppliesPragmasOnEveryConnection(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "nested", "data", "pumpcpq.db")
	s, err := Open(ctx, Config{
		Path:         dbPath,
		EnableWAL:    true,
		BusyTimeout:  1500 * time.Millisecond,
		MaxOpenConns: 4,
	})
	if err != nil {
		t.Fatalf("open storage in missing dir: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	// 同时占住多个连接，确认每个连接都带上了 pragma
	conns := make([]*sql.Conn, 0, 3)
	t.Cleanup(func() {
		for _, c := range conns {
			_ = c.Close()
		}
	})
	for i := 0; i < 3; i++ {
		c, err := s.sqlDB.Conn(ctx)
		if err != nil {
			t.Fatalf("conn %d: %v", i, err)
		}
		conns = append(conns, c)

		var mode string
		if err := c.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
			t.Fatalf("journal_mode: %v", err)
		}
		if !strings.EqualFold(mode, "wal") {
			t.Fatalf("conn %d journal_mode = %q, want wal", i, mode)
		}
		var fk, timeout, sync int
		if err := c.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk); err != nil {
			t.Fatalf("foreign_keys: %v", err)
		}
		if err := c.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&timeout); err != nil {
			t.Fatalf("busy_timeout: %v", err)
		}
		if err := c.QueryRowContext(ctx, "PRAGMA synchronous").Scan(&sync); err != nil {
			t.Fatalf("synchronous: %v", err)
		}
		// synchronous NORMAL = 1
		if fk != 1 || timeout != 1500 || sync != 1 {
			t.Fatalf("conn %d pragmas: foreign_keys=%d busy_timeout=%d synchronous=%d", i, fk, timeout, sync)
		}
	}
}

func TestInMemoryStoresAreIndependent(t *testing.T) {
	ctx := context.Background()
	a, err := Open(ctx, Config{InMemory: true})
	if err != nil {
		t.Fatalf("open a: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	b, err := Open(ctx, Config{InMemory: true})
	if err != nil {
		t.Fatalf("open b: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })

	if err := a.SaveCanvas(ctx, sampleCanvas("mem-1", time.Now().UTC())); err != nil {
		t.Fatalf("save canvas: %v", err)
	}
	if n, _ := b.CountQuotes(ctx); n != 0 {
		t.Fatalf("second in-memory store sees %d quotes, want 0", n)
	}
	if _, err := Open(ctx, Config{}); err == nil {
		t.Fatalf("expected error when neither path nor in_memory is set")
	}
}

func TestSummary(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	sum, err := s.Summary(ctx)
	if err != nil {
		t.Fatalf("summary on empty db: %v", err)
	}
	if sum.Quotes != 0 || sum.AuditRecords != 0 || sum.LatestQuote != nil {
		t.Fatalf("unexpected empty summary: %+v", sum)
	}

	older := time.Now().Add(-2 * time.Hour).UTC().Truncate(time.Second)
	newer := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)
	for i, at := range []time.Time{newer, older} {
		if err := s.SaveCanvas(ctx, sampleCanvas(fmt.Sprintf("sum-%d", i), at)); err != nil {
			t.Fatalf("save canvas: %v", err)
		}
	}
	if err := s.InsertAuditRecord(ctx, &AuditRecord{SessionID: "sum-0", Action: "llm.test.chat", Status: "success"}); err != nil {
		t.Fatalf("insert audit: %v", err)
	}

	sum, err = s.Summary(ctx)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.Quotes != 2 || sum.AuditRecords != 1 {
		t.Fatalf("unexpected counts: %+v", sum)
	}
	if sum.LatestQuote == nil || !sum.LatestQuote.Equal(newer) {
		t.Fatalf("latest quote = %v, want %v", sum.LatestQuote, newer)
	}
}
