// Package web renders the CSV Bot UI: a password gate, a CSV upload and a
// question box whose answer comes from the query service.
package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/KaramelBytes/csvbot/internal/csvquery"
	"github.com/KaramelBytes/csvbot/internal/gate"
	"github.com/KaramelBytes/csvbot/internal/logger"
	"github.com/KaramelBytes/csvbot/internal/session"
)

// Action is one user interaction. Each request maps to exactly one.
type Action interface{ action() }

// ActionView renders the current state without changing it.
type ActionView struct{}

// ActionPassword submits a password attempt.
type ActionPassword struct{ Attempt string }

// ActionUpload replaces the session's file. Size is the declared size and
// may exceed len(Data) when the body was cut off at the upload limit.
type ActionUpload struct {
	Name string
	Data []byte
	Size int64
}

// ActionSubmit asks a question about the uploaded file.
type ActionSubmit struct{ Query string }

func (ActionView) action()     {}
func (ActionPassword) action() {}
func (ActionUpload) action()   {}
func (ActionSubmit) action()   {}

// View is everything the page needs to render one state. Locked pages show
// only the password widget; ShowQuery turns on once a file is loaded.
type View struct {
	Title         string `json:"title"`
	Locked        bool   `json:"locked"`
	PasswordError bool   `json:"password_error,omitempty"`
	FileName      string `json:"file_name,omitempty"`
	ShowQuery     bool   `json:"show_query"`
	Query         string `json:"query,omitempty"`
	Answer        string `json:"answer,omitempty"`
	Error         string `json:"error,omitempty"`
	MaxUpload     int64  `json:"max_upload_bytes"`
}

// Answerer is the query capability the UI needs.
type Answerer interface {
	AnswerNamed(ctx context.Context, name string, r io.Reader, query string) (string, error)
}

const (
	pageTitle = "CSV Bot"

	msgNoFile      = "Choose a CSV file to upload."
	msgNotCSV      = "Only .csv files are accepted."
	msgUploadFirst = "Upload a CSV file first."
)

// Orchestrator applies actions to session state and derives the View.
type Orchestrator struct {
	gate      *gate.Gate
	answers   Answerer
	log       logger.Logger
	maxUpload int64
}

func NewOrchestrator(g *gate.Gate, answers Answerer, maxUpload int64, log logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.Nop()
	}
	return &Orchestrator{gate: g, answers: answers, log: log, maxUpload: maxUpload}
}

// Handle runs one action against st and returns what to render. The caller
// must hold st's lock. While the gate is closed, everything but a password
// attempt is ignored.
func (o *Orchestrator) Handle(ctx context.Context, st *session.State, a Action) View {
	if p, ok := a.(ActionPassword); ok {
		if !o.gate.Enter(st, p.Attempt) {
			o.log.Warn("gate", "password incorrect", map[string]interface{}{"session": st.ID})
		}
		return o.render(st)
	}
	if !o.gate.IsAuthorized(st) {
		return o.render(st)
	}

	switch act := a.(type) {
	case ActionUpload:
		o.upload(st, act)
	case ActionSubmit:
		o.submit(ctx, st, act.Query)
	}
	return o.render(st)
}

func (o *Orchestrator) upload(st *session.State, act ActionUpload) {
	switch {
	case o.maxUpload > 0 && (act.Size > o.maxUpload || int64(len(act.Data)) > o.maxUpload):
		st.ClearResult()
		st.Error = fmt.Sprintf("The file is larger than the %s upload limit.", humanBytes(o.maxUpload))
		return
	case act.Name == "":
		st.ClearResult()
		st.Error = msgNoFile
		return
	case !strings.EqualFold(filepath.Ext(act.Name), ".csv"):
		st.ClearResult()
		st.Error = msgNotCSV
		return
	}
	st.SetFile(filepath.Base(act.Name), act.Data)
	o.log.Info("web", "file uploaded", map[string]interface{}{"session": st.ID, "file": st.File.Name, "bytes": len(act.Data)})
}

func (o *Orchestrator) submit(ctx context.Context, st *session.State, query string) {
	st.ClearResult()
	st.Query = query
	if !st.HasFile() {
		st.Error = msgUploadFirst
		return
	}
	answer, err := o.answers.AnswerNamed(ctx, st.File.Name, bytes.NewReader(st.File.Data), query)
	if err != nil {
		st.Error = userMessage(err)
		return
	}
	st.Answer = answer
}

// userMessage turns service errors into text for the page.
func userMessage(err error) string {
	var dle *csvquery.DataLoadError
	var aee *csvquery.AgentExecutionError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "The request was cancelled before an answer arrived."
	case errors.As(err, &dle):
		return "Could not read the CSV file: " + dle.Err.Error()
	case errors.As(err, &aee):
		return "The agent could not answer: " + aee.Err.Error()
	}
	return "Something went wrong: " + err.Error()
}

func (o *Orchestrator) render(st *session.State) View {
	v := View{Title: pageTitle, MaxUpload: o.maxUpload}
	if p := o.gate.Prompt(st); p.Show {
		v.Locked = true
		v.PasswordError = p.Error
		return v
	}
	if st.HasFile() {
		v.FileName = st.File.Name
		v.ShowQuery = true
		v.Query = st.Query
		v.Answer = st.Answer
	}
	v.Error = st.Error
	return v
}

func humanBytes(n int64) string {
	const mb = 1 << 20
	if n >= mb && n%mb == 0 {
		return fmt.Sprintf("%d MB", n/mb)
	}
	return fmt.Sprintf("%d bytes", n)
}
