package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/KaramelBytes/csvbot/internal/ai"
	"github.com/KaramelBytes/csvbot/internal/frame"
	"github.com/KaramelBytes/csvbot/internal/logger"
	"github.com/KaramelBytes/csvbot/internal/utils"
)

const (
	DefaultMaxSteps = 5
	defaultRowLimit = 10
	maxRowLimit     = 50
	// upper bound on the data preview regardless of model context size
	maxPreviewTokens = 8000
	minPreviewTokens = 256
)

var (
	// ErrIterationLimit is returned when the model keeps calling tools
	// without settling on an answer.
	ErrIterationLimit = errors.New("agent stopped: iteration limit reached without a final answer")
	ErrEmptyResponse  = errors.New("model returned an empty response")
)

// Options configures an LLM agent.
type Options struct {
	Model     string
	MaxTokens int
	// MaxSteps bounds model calls per query. 0 means DefaultMaxSteps.
	MaxSteps int
	// PreviewTokens caps the CSV preview in the system prompt. 0 derives a
	// budget from the model's context window.
	PreviewTokens int
	Logger        logger.Logger
}

// LLM is a dataframe agent: the model sees the schema and a preview, and may
// call aggregate/rows/distinct tools against the full frame before answering.
type LLM struct {
	frame   *frame.Frame
	runtime ai.Runtime
	opts    Options
	system  string
}

// NewLLM binds an agent to f. Temperature is always 0.
func NewLLM(f *frame.Frame, rt ai.Runtime, opts Options) *LLM {
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	a := &LLM{frame: f, runtime: rt, opts: opts}
	a.system = a.buildSystemPrompt()
	return a
}

// NewFactory returns a Factory producing LLM agents over rt.
func NewFactory(rt ai.Runtime, opts Options) Factory {
	return func(f *frame.Frame) QueryAgent { return NewLLM(f, rt, opts) }
}

// Run drives the tool loop until the model gives a final answer.
func (a *LLM) Run(ctx context.Context, query string) (string, error) {
	msgs := []ai.Message{
		{Role: "system", Content: a.system},
		{Role: "user", Content: query},
	}
	for step := 1; step <= a.opts.MaxSteps; step++ {
		start := time.Now()
		resp, err := a.runtime.Generate(ctx, ai.GenerateRequest{
			Model:       a.opts.Model,
			Messages:    msgs,
			MaxTokens:   a.opts.MaxTokens,
			Temperature: 0,
		})
		if err != nil {
			return "", fmt.Errorf("model call (step %d): %w", step, err)
		}
		a.logUsage(step, resp, time.Since(start))

		content := strings.TrimSpace(resp.Content())
		if content == "" {
			return "", ErrEmptyResponse
		}
		act, ok, perr := parseAction(content)
		if !ok {
			return content, nil
		}
		var obs string
		switch {
		case perr != nil:
			obs = "Error: " + perr.Error()
		case act.FinalAnswer != nil:
			return finalText(act.FinalAnswer), nil
		default:
			obs = a.execute(act)
		}
		a.opts.Logger.Debug("agent", "tool call", map[string]interface{}{
			"step": step, "tool": act.Tool, "column": act.Column, "op": act.Op,
		})
		msgs = append(msgs,
			ai.Message{Role: "assistant", Content: content},
			ai.Message{Role: "user", Content: "Observation:\n" + obs},
		)
	}
	return "", ErrIterationLimit
}

func (a *LLM) logUsage(step int, resp *ai.GenerateResponse, took time.Duration) {
	details := map[string]interface{}{
		"step":              step,
		"model":             a.opts.Model,
		"prompt_tokens":     resp.Usage.PromptTokens,
		"completion_tokens": resp.Usage.CompletionTokens,
		"duration_ms":       took.Milliseconds(),
		"request_id":        resp.RequestID,
	}
	if cost, ok := ai.EstimateCostUSD(a.opts.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens); ok {
		details["cost_usd"] = cost
	}
	a.opts.Logger.Debug("agent", "model response", details)
}

// action is one model turn in JSON form.
type action struct {
	Tool        string          `json:"tool"`
	Column      string          `json:"column"`
	Op          string          `json:"op"`
	Where       json.RawMessage `json:"where"`
	Limit       rowLimit        `json:"limit"`
	FinalAnswer json.RawMessage `json:"final_answer"`
}

// rowLimit accepts 5, 5.0 or "5".
type rowLimit int

func (l *rowLimit) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case nil:
		*l = 0
	case float64:
		*l = rowLimit(x)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return fmt.Errorf("limit must be a number, got %q", x)
		}
		*l = rowLimit(n)
	default:
		return fmt.Errorf("limit must be a number, got %s", b)
	}
	return nil
}

// parseAction reports whether content is a tool call or a wrapped final
// answer. Anything else is treated as a plain-text answer. An object that
// names a tool or final_answer but does not decode is still an action; err
// describes the problem so it can be sent back to the model.
func parseAction(content string) (action, bool, error) {
	raw := []byte(extractJSON(content))
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return action{}, false, nil
	}
	_, hasTool := keys["tool"]
	_, hasFinal := keys["final_answer"]
	if !hasTool && !hasFinal {
		return action{}, false, nil
	}
	var act action
	if err := json.Unmarshal(raw, &act); err != nil {
		return action{}, true, fmt.Errorf("invalid action: %w", err)
	}
	if string(act.FinalAnswer) == "null" {
		act.FinalAnswer = nil
	}
	return act, true, nil
}

// finalText renders a final_answer of any JSON type as display text.
func finalText(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return strings.TrimSpace(string(raw))
	}
	switch v.(type) {
	case map[string]any, []any:
		return strings.TrimSpace(string(raw))
	}
	return strings.TrimSpace(scalar(v))
}

// extractJSON isolates the outermost JSON object, dropping code fences or
// prose around it.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return s
	}
	return s[start : end+1]
}

// conditions accepts either {"col": value, ...} (equality) or a list of
// {"column","op","value"} objects.
func conditions(raw json.RawMessage) ([]frame.Condition, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var list []frame.Condition
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("invalid where list: %w", err)
		}
		return list, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("invalid where object: %w", err)
	}
	out := make([]frame.Condition, 0, len(m))
	for col, v := range m {
		out = append(out, frame.Condition{Column: col, Op: "=", Value: scalar(v)})
	}
	return out, nil
}

func scalar(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

// execute runs a tool and returns the observation text. Tool errors are
// reported to the model rather than aborting the query.
func (a *LLM) execute(act action) string {
	conds, err := conditions(act.Where)
	if err != nil {
		return "Error: " + err.Error()
	}
	rows := a.frame.AllRows()
	if len(conds) > 0 {
		if rows, err = a.frame.Filter(conds); err != nil {
			return "Error: " + err.Error()
		}
	}
	limit := int(act.Limit)
	if limit <= 0 {
		limit = defaultRowLimit
	}
	if limit > maxRowLimit {
		limit = maxRowLimit
	}

	switch strings.ToLower(act.Tool) {
	case "aggregate":
		op, err := frame.ParseAggOp(act.Op)
		if err != nil {
			return "Error: " + err.Error()
		}
		v, err := a.frame.Aggregate(op, act.Column, rows)
		if err != nil {
			return "Error: " + err.Error()
		}
		return fmt.Sprintf("%s(%s) over %d matching rows = %s", op, act.Column, len(rows), strconv.FormatFloat(v, 'f', -1, 64))
	case "rows":
		return fmt.Sprintf("%d matching rows (showing up to %d):\n%s", len(rows), limit, a.frame.CSV(rows, limit))
	case "distinct":
		vcs, err := a.frame.Distinct(act.Column, rows)
		if err != nil {
			return "Error: " + err.Error()
		}
		var b strings.Builder
		fmt.Fprintf(&b, "%d distinct values in %s", len(vcs), act.Column)
		for i, vc := range vcs {
			if i >= limit {
				b.WriteString("\n...")
				break
			}
			fmt.Fprintf(&b, "\n%s: %d", vc.Value, vc.Count)
		}
		return b.String()
	}
	return fmt.Sprintf("Error: unknown tool %q (use aggregate, rows or distinct)", act.Tool)
}

func (a *LLM) buildSystemPrompt() string {
	summary := frame.Describe(a.frame, 5).Markdown()

	budget := a.opts.PreviewTokens
	if budget <= 0 {
		budget = ai.ContextTokens(a.opts.Model)/4 - utils.CountTokens(summary)
		if budget > maxPreviewTokens {
			budget = maxPreviewTokens
		}
		if budget < minPreviewTokens {
			budget = minPreviewTokens
		}
	}
	full := a.frame.CSV(a.frame.AllRows(), 0)
	preview := utils.TruncateToTokenLimit(full, budget)

	var b strings.Builder
	b.WriteString("You answer questions about a CSV table loaded as a dataframe.\n")
	b.WriteString("Use only the data below and the tool results. Do not guess values you cannot see.\n\n")
	b.WriteString(summary)
	b.WriteString("\n[DATA PREVIEW]\n")
	if len(preview) < len(full) {
		b.WriteString("(partial: the table is larger than the preview, use tools for exact results)\n")
	}
	b.WriteString(preview)
	b.WriteString("\n[TOOLS]\n")
	b.WriteString("Reply with exactly one JSON object per turn:\n")
	b.WriteString(`{"tool":"aggregate","column":"<name>","op":"count|sum|mean|min|max|median|nunique","where":{"<column>":"<value>"}}` + "\n")
	b.WriteString(`{"tool":"rows","where":[{"column":"<name>","op":"=|!=|>|>=|<|<=|contains","value":"<v>"}],"limit":10}` + "\n")
	b.WriteString(`{"tool":"distinct","column":"<name>","limit":10}` + "\n")
	b.WriteString(`{"final_answer":"<answer for the user>"}` + "\n")
	b.WriteString("\"where\" is optional. When the preview already answers the question, reply with final_answer directly.\n")
	return b.String()
}
