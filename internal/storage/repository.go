package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

const (
	defaultLimit = 200
	maxLimit     = 5000

	defaultDeleteLimit = 500
	maxDeleteLimit     = 900
)

// QuoteQuery 用于查询报价的过滤条件，零值字段不参与过滤。
type QuoteQuery struct {
	// Customer 对客户名或公司名做子串匹配。
	Customer string
	// Family 精确匹配泵系列。
	Family string
	// OnlyInvalid 只返回校验未通过（走了放行流程）的报价。
	OnlyInvalid bool
	// From/To 过滤 QuotedAt 区间：[From, To]（两端包含）。
	From *time.Time
	To   *time.Time
	// Limit 限制返回条数；<=0 使用默认值。
	Limit int
	// Desc 按 QuotedAt 倒序返回。
	Desc bool
}

func (s *Storage) InsertQuote(ctx context.Context, q *Quote) error {
	if s == nil || s.db == nil {
		return errors.New("storage not initialized")
	}
	if q == nil {
		return errors.New("quote is nil")
	}
	if q.SessionID == "" {
		return errors.New("quote session id is required")
	}
	now := time.Now().UTC()
	if q.QuotedAt.IsZero() {
		q.QuotedAt = now
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = now
	}
	if err := s.db.WithContext(ctx).Create(q).Error; err != nil {
		return fmt.Errorf("insert quote: %w", err)
	}
	return nil
}

// GetQuoteBySession 按会话 ID 读取报价，不存在时返回 notFoundError。
func (s *Storage) GetQuoteBySession(ctx context.Context, sessionID string) (*Quote, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("storage not initialized")
	}
	var q Quote
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&q).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFoundError{Entity: "quote", Key: sessionID}
	}
	if err != nil {
		return nil, fmt.Errorf("get quote: %w", err)
	}
	return &q, nil
}

func (s *Storage) QueryQuotes(ctx context.Context, q QuoteQuery) ([]Quote, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("storage not initialized")
	}

	limit := normalizeLimit(q.Limit)
	db := s.db.WithContext(ctx).Model(&Quote{})
	if q.Customer != "" {
		like := "%" + q.Customer + "%"
		db = db.Where("customer_name LIKE ? OR company LIKE ?", like, like)
	}
	if q.Family != "" {
		db = db.Where("family = ?", q.Family)
	}
	if q.OnlyInvalid {
		db = db.Where("valid = ?", false)
	}
	if q.From != nil {
		db = db.Where("quoted_at >= ?", *q.From)
	}
	if q.To != nil {
		db = db.Where("quoted_at <= ?", *q.To)
	}
	if q.Desc {
		db = db.Order("quoted_at DESC")
	} else {
		db = db.Order("quoted_at ASC")
	}
	db = db.Limit(limit)

	var out []Quote
	if err := db.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("query quotes: %w", err)
	}
	return out, nil
}

func (s *Storage) CountQuotes(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("storage not initialized")
	}
	var n int64
	if err := s.db.WithContext(ctx).Model(&Quote{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count quotes: %w", err)
	}
	return n, nil
}

// DeleteQuotesBeforeLimited 删除 QuotedAt 早于 before 的报价，每次最多 limit 条。
func (s *Storage) DeleteQuotesBeforeLimited(ctx context.Context, before time.Time, limit int) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("storage not initialized")
	}

	limit = normalizeDeleteLimit(limit)

	var ids []uint64
	db := s.db.WithContext(ctx).Model(&Quote{}).
		Select("id").
		Where("quoted_at < ?", before).
		Order("id ASC").
		Limit(limit)
	if err := db.Find(&ids).Error; err != nil {
		return 0, fmt.Errorf("select quote ids: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	res := s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&Quote{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete quotes: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// AuditQuery 用于查询审计记录的过滤条件。
//
// 所有字段都是可选过滤条件，零值表示不参与过滤；时间范围使用 CreatedAt。
type AuditQuery struct {
	TraceID   string
	SessionID string
	Action    string
	Status    string
	From      *time.Time
	To        *time.Time
	// Limit 限制返回条数；<=0 使用默认值。
	Limit int
	Desc  bool
}

func (s *Storage) InsertAuditRecord(ctx context.Context, rec *AuditRecord) error {
	if s == nil || s.db == nil {
		return errors.New("storage not initialized")
	}
	if rec == nil {
		return errors.New("audit record is nil")
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

func (s *Storage) QueryAuditRecords(ctx context.Context, q AuditQuery) ([]AuditRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("storage not initialized")
	}

	limit := normalizeLimit(q.Limit)
	db := s.db.WithContext(ctx).Model(&AuditRecord{})
	if q.TraceID != "" {
		db = db.Where("trace_id = ?", q.TraceID)
	}
	if q.SessionID != "" {
		db = db.Where("session_id = ?", q.SessionID)
	}
	if q.Action != "" {
		db = db.Where("action = ?", q.Action)
	}
	if q.Status != "" {
		db = db.Where("status = ?", q.Status)
	}
	if q.From != nil {
		db = db.Where("created_at >= ?", *q.From)
	}
	if q.To != nil {
		db = db.Where("created_at <= ?", *q.To)
	}
	if q.Desc {
		db = db.Order("created_at DESC").Order("id DESC")
	} else {
		db = db.Order("created_at ASC").Order("id ASC")
	}
	db = db.Limit(limit)

	var out []AuditRecord
	if err := db.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	return out, nil
}

type AuditUpdate struct {
	Status       *string
	ResultJSON   *string
	ErrorMessage *string
	FinishedAt   *time.Time
}

func (s *Storage) UpdateAuditRecord(ctx context.Context, id uint64, up AuditUpdate) error {
	if s == nil || s.db == nil {
		return errors.New("storage not initialized")
	}

	updates := make(map[string]interface{})
	if up.Status != nil {
		updates["status"] = *up.Status
	}
	if up.ResultJSON != nil {
		updates["result_json"] = *up.ResultJSON
	}
	if up.ErrorMessage != nil {
		updates["error_message"] = *up.ErrorMessage
	}
	if up.FinishedAt != nil {
		updates["finished_at"] = *up.FinishedAt
	}

	if len(updates) == 0 {
		return nil
	}

	res := s.db.WithContext(ctx).Model(&AuditRecord{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update audit record: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFoundError{Entity: "audit record", Key: fmt.Sprint(id)}
	}
	return nil
}

func (s *Storage) CountAuditRecords(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("storage not initialized")
	}
	var n int64
	if err := s.db.WithContext(ctx).Model(&AuditRecord{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count audit records: %w", err)
	}
	return n, nil
}

func (s *Storage) DeleteAuditRecordsBefore(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("storage not initialized")
	}
	res := s.db.WithContext(ctx).Where("created_at < ?", before).Delete(&AuditRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete audit records: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *Storage) DeleteAuditRecordsBeforeLimited(ctx context.Context, before time.Time, limit int) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("storage not initialized")
	}

	limit = normalizeDeleteLimit(limit)

	var ids []uint64
	db := s.db.WithContext(ctx).Model(&AuditRecord{}).
		Select("id").
		Where("created_at < ?", before).
		Order("id ASC").
		Limit(limit)
	if err := db.Find(&ids).Error; err != nil {
		return 0, fmt.Errorf("select audit ids: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	res := s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&AuditRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete audit records: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteAuditRecordsKeepLatest 只保留 id 最大的 keep 条记录。
func (s *Storage) DeleteAuditRecordsKeepLatest(ctx context.Context, keep int) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("storage not initialized")
	}
	if keep < 0 {
		return 0, fmt.Errorf("keep must be >= 0, got %d", keep)
	}

	var ids []uint64
	if err := s.db.WithContext(ctx).Model(&AuditRecord{}).
		Select("id").Order("id DESC").Limit(keep).Find(&ids).Error; err != nil {
		return 0, fmt.Errorf("select latest audit ids: %w", err)
	}

	db := s.db.WithContext(ctx)
	if len(ids) > 0 {
		db = db.Where("id NOT IN ?", ids)
	} else {
		db = db.Where("1 = 1")
	}
	res := db.Delete(&AuditRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete audit records: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func normalizeLimit(v int) int {
	if v <= 0 {
		return defaultLimit
	}
	if v > maxLimit {
		return maxLimit
	}
	return v
}

func normalizeDeleteLimit(v int) int {
	if v <= 0 {
		return defaultDeleteLimit
	}
	if v > maxDeleteLimit {
		return maxDeleteLimit
	}
	return v
}

type notFoundError struct {
	Entity string
	Key    string
}

func (e notFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.Key)
}

// IsNotFound 判断错误是否表示记录不存在。
func IsNotFound(err error) bool {
	var nf notFoundError
	return errors.As(err, &nf)
}
