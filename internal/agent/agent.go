// Package agent answers natural-language questions about a single table.
package agent

import (
	"context"

	"github.com/KaramelBytes/csvbot/internal/frame"
)

// QueryAgent turns a question into an answer about the data it is bound to.
type QueryAgent interface {
	Run(ctx context.Context, query string) (string, error)
}

// Factory binds a fresh agent to a loaded frame. One agent serves one query.
type Factory func(f *frame.Frame) QueryAgent

// Static always returns the same answer or error.
type Static struct {
	Answer string
	Err    error
}

func (s Static) Run(ctx context.Context, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.Err != nil {
		return "", s.Err
	}
	return s.Answer, nil
}

// StaticFactory returns a Factory that ignores the frame.
func StaticFactory(answer string, err error) Factory {
	return func(*frame.Frame) QueryAgent { return Static{Answer: answer, Err: err} }
}

// Func adapts a plain function to QueryAgent.
type Func func(ctx context.Context, query string) (string, error)

func (fn Func) Run(ctx context.Context, query string) (string, error) { return fn(ctx, query) }
