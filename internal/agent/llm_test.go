package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/csvbot/internal/ai"
	"github.com/KaramelBytes/csvbot/internal/frame"
)

// scripted replays canned replies and records every request.
type scripted struct {
	replies []string
	err     error
	reqs    []ai.GenerateRequest
}

func (s *scripted) Generate(_ context.Context, req ai.GenerateRequest) (*ai.GenerateResponse, error) {
	s.reqs = append(s.reqs, req)
	if s.err != nil {
		return nil, s.err
	}
	i := len(s.reqs) - 1
	if i >= len(s.replies) {
		i = len(s.replies) - 1
	}
	return &ai.GenerateResponse{Choices: []ai.Choice{{Message: ai.Message{Role: "assistant", Content: s.replies[i]}}}}, nil
}

func people(t *testing.T) *frame.Frame {
	t.Helper()
	f, err := frame.Load("people.csv", strings.NewReader("name,age\nAlice,30\nBob,25\n"), frame.DefaultOptions())
	require.NoError(t, err)
	return f
}

func TestPlainTextIsFinalAnswer(t *testing.T) {
	rt := &scripted{replies: []string{"Alice is 30 years old."}}
	a := NewLLM(people(t), rt, Options{Model: "gpt-4o-mini"})

	got, err := a.Run(context.Background(), "What is Alice's age?")
	require.NoError(t, err)
	assert.Equal(t, "Alice is 30 years old.", got)

	require.Len(t, rt.reqs, 1)
	req := rt.reqs[0]
	assert.Equal(t, float64(0), req.Temperature)
	assert.Equal(t, "gpt-4o-mini", req.Model)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, "- name:")
	assert.Contains(t, req.Messages[0].Content, "Alice,30")
	assert.Equal(t, "What is Alice's age?", req.Messages[1].Content)
}

func TestToolLoopAggregate(t *testing.T) {
	rt := &scripted{replies: []string{
		"```json\n{\"tool\":\"aggregate\",\"column\":\"age\",\"op\":\"mean\",\"where\":{\"name\":\"Alice\"}}\n```",
		`{"final_answer":"30"}`,
	}}
	a := NewLLM(people(t), rt, Options{Model: "gpt-4o-mini"})

	got, err := a.Run(context.Background(), "What is Alice's age?")
	require.NoError(t, err)
	assert.Equal(t, "30", got)

	require.Len(t, rt.reqs, 2)
	last := rt.reqs[1].Messages
	obs := last[len(last)-1]
	assert.Equal(t, "user", obs.Role)
	assert.Contains(t, obs.Content, "mean(age) over 1 matching rows = 30")
}

func TestToolErrorsAreObservations(t *testing.T) {
	rt := &scripted{replies: []string{
		`{"tool":"aggregate","column":"height","op":"sum"}`,
		`{"final_answer":"There is no height column."}`,
	}}
	a := NewLLM(people(t), rt, Options{})

	got, err := a.Run(context.Background(), "total height?")
	require.NoError(t, err)
	assert.Equal(t, "There is no height column.", got)
	obs := rt.reqs[1].Messages[len(rt.reqs[1].Messages)-1].Content
	assert.Contains(t, obs, "Error:")
	assert.Contains(t, obs, "unknown column")
}

func TestIterationLimit(t *testing.T) {
	rt := &scripted{replies: []string{`{"tool":"rows","limit":1}`}}
	a := NewLLM(people(t), rt, Options{MaxSteps: 3})

	_, err := a.Run(context.Background(), "loop forever")
	assert.ErrorIs(t, err, ErrIterationLimit)
	assert.Len(t, rt.reqs, 3)
}

func TestRuntimeErrorIsWrapped(t *testing.T) {
	cause := &ai.AuthError{APIError: &ai.APIError{StatusCode: 401, Message: "bad key"}}
	a := NewLLM(people(t), &scripted{err: cause}, Options{})

	_, err := a.Run(context.Background(), "q")
	var auth *ai.AuthError
	require.True(t, errors.As(err, &auth))
}

func TestEmptyResponse(t *testing.T) {
	a := NewLLM(people(t), &scripted{replies: []string{"   "}}, Options{})
	_, err := a.Run(context.Background(), "q")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestExecuteTools(t *testing.T) {
	a := NewLLM(people(t), &scripted{}, Options{})
	cases := []struct {
		name string
		act  action
		want string
	}{
		{"count all", action{Tool: "aggregate", Op: "count"}, "= 2"},
		{"rows filtered", action{Tool: "rows", Where: []byte(`[{"column":"age","op":">","value":"26"}]`)}, "Alice,30"},
		{"distinct", action{Tool: "distinct", Column: "name"}, "2 distinct values in name"},
		{"bad op", action{Tool: "aggregate", Column: "age", Op: "stddev"}, "unknown operation"},
		{"unknown tool", action{Tool: "plot"}, `unknown tool "plot"`},
		{"bad where", action{Tool: "rows", Where: []byte(`"age>3"`)}, "invalid where"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Contains(t, a.execute(tc.act), tc.want)
		})
	}
}

func TestParseAction(t *testing.T) {
	_, ok, _ := parseAction("The answer is {not json}")
	assert.False(t, ok)

	_, ok, _ = parseAction(`{"answer":"30"}`)
	assert.False(t, ok, "objects without tool or final_answer are plain text")

	act, ok, err := parseAction(`Sure: {"tool":"rows","limit":3}`)
	require.True(t, ok)
	require.NoError(t, err)
	assert.Equal(t, "rows", act.Tool)
	assert.Equal(t, rowLimit(3), act.Limit)

	act, ok, err = parseAction(`{"tool":"rows","limit":"5"}`)
	require.True(t, ok)
	require.NoError(t, err)
	assert.Equal(t, rowLimit(5), act.Limit)

	_, ok, err = parseAction(`{"tool":"rows","limit":"five"}`)
	assert.True(t, ok, "a broken tool call is still a tool call")
	assert.ErrorContains(t, err, "limit must be a number")

	_, ok, err = parseAction(`{"tool":["rows"]}`)
	assert.True(t, ok)
	assert.Error(t, err)
}

func TestFinalAnswerOfAnyType(t *testing.T) {
	cases := []struct {
		reply string
		want  string
	}{
		{`{"final_answer": 30}`, "30"},
		{`{"final_answer": 27.5}`, "27.5"},
		{`{"final_answer": true}`, "true"},
		{`{"final_answer": " Alice "}`, "Alice"},
		{`{"final_answer": ["Alice","Bob"]}`, `["Alice","Bob"]`},
	}
	for _, tc := range cases {
		t.Run(tc.reply, func(t *testing.T) {
			rt := &scripted{replies: []string{tc.reply}}
			got, err := NewLLM(people(t), rt, Options{}).Run(context.Background(), "q")
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Len(t, rt.reqs, 1)
		})
	}
}

func TestMalformedToolCallIsReported(t *testing.T) {
	rt := &scripted{replies: []string{
		`{"tool":"rows","where":{"name":"Bob"},"limit":{"n":1}}`,
		`{"tool":"rows","where":{"name":"Bob"},"limit":"1"}`,
		`{"final_answer":25}`,
	}}
	a := NewLLM(people(t), rt, Options{})

	got, err := a.Run(context.Background(), "How old is Bob?")
	require.NoError(t, err)
	assert.Equal(t, "25", got)
	require.Len(t, rt.reqs, 3)

	first := rt.reqs[1].Messages
	assert.Contains(t, first[len(first)-1].Content, "Error: invalid action")

	second := rt.reqs[2].Messages
	obs := second[len(second)-1].Content
	assert.Contains(t, obs, "1 matching rows (showing up to 1)")
	assert.Contains(t, obs, "Bob,25")
}

func TestPreviewIsTruncated(t *testing.T) {
	var b strings.Builder
	b.WriteString("id,value\n")
	for i := 0; i < 2000; i++ {
		b.WriteString("1234567,abcdefghij\n")
	}
	f, err := frame.Load("big.csv", strings.NewReader(b.String()), frame.DefaultOptions())
	require.NoError(t, err)

	rt := &scripted{replies: []string{"ok"}}
	a := NewLLM(f, rt, Options{PreviewTokens: 100})
	_, err = a.Run(context.Background(), "q")
	require.NoError(t, err)
	sys := rt.reqs[0].Messages[0].Content
	assert.Contains(t, sys, "(partial:")
	assert.Less(t, len(sys), 20000)
}

func TestStaticAndFactory(t *testing.T) {
	ans, err := StaticFactory("30", nil)(nil).Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "30", ans)

	boom := errors.New("boom")
	_, err = Static{Err: boom}.Run(context.Background(), "q")
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Static{Answer: "x"}.Run(ctx, "q")
	assert.ErrorIs(t, err, context.Canceled)

	rt := &scripted{replies: []string{"fine"}}
	got, err := NewFactory(rt, Options{Model: "m"})(people(t)).Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "fine", got)
}
