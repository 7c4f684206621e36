// Package llmtest 提供按脚本应答的 Provider，用于确定性测试。
package llmtest

import (
	"context"
	"errors"
	"sync"
)

// Call 记录一次被调用时的入参。
type Call struct {
	System    string
	User      string
	ForceJSON bool
}

// Reply 是一条脚本应答；Err 非空时返回错误。
type Reply struct {
	Text string
	Err  error
}

// ErrScriptExhausted 脚本用尽后返回该错误。
var ErrScriptExhausted = errors.New("llmtest: script exhausted")

// Scripted 按顺序返回预设应答。Respond 非空时优先使用它动态生成应答。
type Scripted struct {
	ProviderName string
	Respond      func(call Call) (string, error)

	mu      sync.Mutex
	replies []Reply
	calls   []Call
}

func New(replies ...Reply) *Scripted {
	return &Scripted{ProviderName: "scripted", replies: replies}
}

// Func 用函数生成应答。
func Func(fn func(call Call) (string, error)) *Scripted {
	return &Scripted{ProviderName: "scripted", Respond: fn}
}

func (s *Scripted) Name() string { return s.ProviderName }

func (s *Scripted) Chat(ctx context.Context, system, user string, forceJSON bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	call := Call{System: system, User: user, ForceJSON: forceJSON}

	s.mu.Lock()
	s.calls = append(s.calls, call)
	respond := s.Respond
	var next *Reply
	if respond == nil && len(s.replies) > 0 {
		r := s.replies[0]
		s.replies = s.replies[1:]
		next = &r
	}
	s.mu.Unlock()

	if respond != nil {
		return respond(call)
	}
	if next == nil {
		return "", ErrScriptExhausted
	}
	return next.Text, next.Err
}

// Calls 返回到目前为止的调用记录副本。
func (s *Scripted) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}
