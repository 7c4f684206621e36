package llm

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/wwwzy/PumpCPQ/internal/storage"
)

const (
	auditTruncateLimit = 2048
)

// AuditStore 是审计包装器需要的存储能力，*storage.Storage 满足该接口。
type AuditStore interface {
	InsertAuditRecord(ctx context.Context, rec *storage.AuditRecord) error
	UpdateAuditRecord(ctx context.Context, id uint64, up storage.AuditUpdate) error
}

// Audited 在模型调用前后写审计记录：先插入 running，结束后更新为 success/failed。
// 审计写入失败只记日志，不影响调用本身。
type Audited struct {
	inner  Provider
	store  AuditStore
	logger *zap.Logger
}

// WithAudit 为 Provider 包上审计；store 为 nil 时原样返回。
func WithAudit(p Provider, store AuditStore, logger *zap.Logger) Provider {
	if p == nil || store == nil {
		return p
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Audited{inner: p, store: store, logger: logger}
}

func (a *Audited) Name() string { return a.inner.Name() }

type auditParams struct {
	System    string `json:"system"`
	User      string `json:"user"`
	ForceJSON bool   `json:"force_json"`
}

func (a *Audited) Chat(ctx context.Context, system, user string, forceJSON bool) (string, error) {
	params, _ := json.Marshal(auditParams{System: system, User: user, ForceJSON: forceJSON})

	now := time.Now().UTC()
	record := &storage.AuditRecord{
		TraceID:    GetTraceID(ctx),
		SessionID:  GetSessionID(ctx),
		Action:     "llm." + a.inner.Name() + ".chat",
		ParamsJSON: truncate(string(params), auditTruncateLimit),
		Status:     "running",
		StartedAt:  now,
	}
	if err := a.store.InsertAuditRecord(ctx, record); err != nil {
		a.logger.Warn("failed to insert audit record", zap.Error(err))
	}

	result, runErr := a.inner.Chat(ctx, system, user, forceJSON)

	finishedAt := time.Now().UTC()
	status := "success"
	var errMsg *string
	var resultText *string
	if runErr != nil {
		status = "failed"
		e := truncate(runErr.Error(), auditTruncateLimit)
		errMsg = &e
	} else {
		r := truncate(result, auditTruncateLimit)
		resultText = &r
	}

	// 只有插入成功拿到 ID 后才能更新
	if record.ID != 0 {
		update := storage.AuditUpdate{
			Status:       &status,
			ResultJSON:   resultText,
			ErrorMessage: errMsg,
			FinishedAt:   &finishedAt,
		}
		if err := a.store.UpdateAuditRecord(ctx, record.ID, update); err != nil {
			a.logger.Warn("failed to update audit record", zap.Uint64("id", record.ID), zap.Error(err))
		}
	}

	return result, runErr
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "...(truncated)"
}
