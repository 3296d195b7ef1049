// Package csvquery loads an uploaded CSV and asks a query agent about it.
package csvquery

import (
	"context"
	"io"
	"time"

	"github.com/KaramelBytes/csvbot/internal/agent"
	"github.com/KaramelBytes/csvbot/internal/frame"
	"github.com/KaramelBytes/csvbot/internal/logger"
)

// Service answers one question about one CSV stream per call. It holds no
// per-query state and is safe for concurrent use.
type Service struct {
	agents  agent.Factory
	log     logger.Logger
	options frame.Options
}

type Option func(*Service)

// WithLogger sets the logger; the default discards output.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithFrameOptions overrides CSV parsing (delimiter, row cap).
func WithFrameOptions(o frame.Options) Option {
	return func(s *Service) { s.options = o }
}

func New(agents agent.Factory, opts ...Option) *Service {
	s := &Service{agents: agents, log: logger.Nop(), options: frame.DefaultOptions()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Answer parses r and returns the agent's answer to query verbatim.
// The query is passed through as-is, including when empty.
func (s *Service) Answer(ctx context.Context, r io.Reader, query string) (string, error) {
	return s.AnswerNamed(ctx, "", r, query)
}

// AnswerNamed is Answer with a file name for logs and the agent's schema view.
func (s *Service) AnswerNamed(ctx context.Context, name string, r io.Reader, query string) (string, error) {
	start := time.Now()
	f, err := frame.Load(name, r, s.options)
	if err != nil {
		s.log.Warn("csvquery", "csv load failed", map[string]interface{}{"file": name, "error": err.Error()})
		return "", &DataLoadError{Name: name, Err: err}
	}

	answer, err := s.agents(f).Run(ctx, query)
	details := map[string]interface{}{
		"file":         name,
		"rows":         f.NumRows(),
		"columns":      f.NumCols(),
		"query_length": len(query),
		"duration_ms":  time.Since(start).Milliseconds(),
	}
	if err != nil {
		details["error"] = err
		s.log.Error("csvquery", "agent failed", details)
		return "", &AgentExecutionError{Err: err}
	}
	s.log.Info("csvquery", "answered", details)
	return answer, nil
}
