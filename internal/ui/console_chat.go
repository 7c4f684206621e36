package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/wwwzy/PumpCPQ/internal/agent"
)

type ConsoleChatUI struct {
	In  io.Reader
	Out io.Writer
}

type stepResult struct {
	reply agent.Reply
	err   error
}

func (u *ConsoleChatUI) Run(ctx context.Context, backend ChatBackend, opts ChatOptions) error {
	if u.In == nil {
		return fmt.Errorf("console ui: In is nil")
	}
	out := u.Out
	if out == nil {
		return fmt.Errorf("console ui: Out is nil")
	}

	lines := readLines(u.In)

	fmt.Fprintln(out, "PumpCPQ 报价对话。输入 exit/quit 退出，输入 start over 重新选型。")

	var userText *string
	for {
		reply, err := u.step(ctx, backend, userText, lines, opts)
		if err != nil {
			if ctx.Err() != nil {
				fmt.Fprintln(out, "已退出。")
				return nil
			}
			return err
		}
		fmt.Fprintf(out, "助手: %s\n\n", reply.Text)
		if reply.Done {
			return nil
		}

		line, ok, err := u.prompt(ctx, "你: ", lines)
		if err != nil || !ok {
			fmt.Fprintln(out, "已退出。")
			return nil
		}
		switch strings.ToLower(line) {
		case "exit", "quit":
			fmt.Fprintln(out, "已退出。")
			return nil
		}
		userText = &line
	}
}

// step 在后台执行一轮 Step，期间处理界面上的审批请求。
func (u *ConsoleChatUI) step(ctx context.Context, backend ChatBackend, text *string, lines <-chan string, opts ChatOptions) (agent.Reply, error) {
	done := make(chan stepResult, 1)
	go func() {
		r, err := backend.Step(ctx, text)
		done <- stepResult{reply: r, err: err}
	}()

	approvals := opts.Approvals.Requests()
	for {
		select {
		case res := <-done:
			return res.reply, res.err
		case req := <-approvals:
			u.askApproval(ctx, req, lines, done)
		}
	}
}

func (u *ConsoleChatUI) askApproval(ctx context.Context, req ApprovalRequest, lines <-chan string, done chan stepResult) {
	fmt.Fprintln(u.Out, "该配置存在以下问题：")
	for _, v := range req.Violations {
		fmt.Fprintf(u.Out, "  - %s\n", v)
	}
	fmt.Fprint(u.Out, "批准例外并继续报价？(y/N): ")

	select {
	case line, ok := <-lines:
		if !ok {
			req.Respond(agent.Decision{Approved: false, Note: "input closed"})
			return
		}
		line = strings.TrimSpace(line)
		approved := strings.EqualFold(line, "y") || strings.EqualFold(line, "yes")
		req.Respond(agent.Decision{Approved: approved, Note: "confirmed in console"})
	case res := <-done:
		// 等待超时，Step 已经结束；把结果放回去交给调用方
		fmt.Fprintln(u.Out, "\n(审批等待超时)")
		done <- res
	case <-ctx.Done():
	}
}

func (u *ConsoleChatUI) prompt(ctx context.Context, label string, lines <-chan string) (string, bool, error) {
	for {
		fmt.Fprint(u.Out, label)
		select {
		case <-ctx.Done():
			return "", false, ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return "", false, nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			return line, true, nil
		}
	}
}

// readLines 由单个 goroutine 读取输入，主循环和审批提示共用同一个 channel，不会丢行。
func readLines(r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			ch <- scanner.Text()
		}
	}()
	return ch
}
