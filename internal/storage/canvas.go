package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wwwzy/PumpCPQ/internal/model"
)

// QuoteFromCanvas 把会话最终的 Canvas 转为可落库的 Quote。
func QuoteFromCanvas(c model.Canvas) (*Quote, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode canvas: %w", err)
	}
	return &Quote{
		SessionID:       c.SessionID,
		CustomerName:    c.Customer.Name,
		Company:         c.Customer.CompanyName(),
		Email:           c.Customer.Email,
		Phone:           c.Customer.Phone,
		Family:          c.Configuration.Family,
		MotorHP:         c.Configuration.MotorHP,
		ATEX:            c.Configuration.ATEX,
		Valid:           len(c.Violations) == 0,
		Approval:        string(c.Approval),
		ListTotal:       c.Pricing.ListTotal,
		DiscountPercent: c.Pricing.DiscountPercent,
		NetTotal:        c.Pricing.NetTotal,
		CanvasJSON:      string(raw),
		QuotedAt:        c.Timestamp.UTC(),
	}, nil
}

// Canvas 解码 CanvasJSON。
func (q *Quote) Canvas() (model.Canvas, error) {
	var c model.Canvas
	if q == nil {
		return c, fmt.Errorf("quote is nil")
	}
	if err := json.Unmarshal([]byte(q.CanvasJSON), &c); err != nil {
		return c, fmt.Errorf("decode canvas %s: %w", q.SessionID, err)
	}
	return c, nil
}

// SaveCanvas 持久化会话的最终报价，满足 agent.CanvasSink。
func (s *Storage) SaveCanvas(ctx context.Context, c model.Canvas) error {
	q, err := QuoteFromCanvas(c)
	if err != nil {
		return err
	}
	return s.InsertQuote(ctx, q)
}
