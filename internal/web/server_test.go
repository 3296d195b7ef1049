package web

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/csvbot/internal/agent"
	"github.com/KaramelBytes/csvbot/internal/csvquery"
	"github.com/KaramelBytes/csvbot/internal/gate"
	"github.com/KaramelBytes/csvbot/internal/session"
)

func init() { gin.SetMode(gin.TestMode) }

// client keeps the session cookie across requests like a browser would.
type client struct {
	t      *testing.T
	h      http.Handler
	cookie *http.Cookie
}

func newTestServer(t *testing.T, answer string) *client {
	t.Helper()
	g, err := gate.New("letmein")
	require.NoError(t, err)
	svc := csvquery.New(agent.StaticFactory(answer, nil))
	orch := NewOrchestrator(g, svc, 1<<20, nil)
	srv, err := NewServer(orch, session.NewStore(0), Options{MaxUploadBytes: 1 << 20})
	require.NoError(t, err)
	return &client{t: t, h: srv.Handler()}
}

func (c *client) do(req *http.Request) *httptest.ResponseRecorder {
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	w := httptest.NewRecorder()
	c.h.ServeHTTP(w, req)
	for _, ck := range w.Result().Cookies() {
		if ck.Name == session.CookieName {
			c.cookie = ck
		}
	}
	return w
}

func (c *client) form(path string, vals url.Values, wantJSON bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(vals.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if wantJSON {
		req.Header.Set("Accept", "application/json")
	}
	return c.do(req)
}

func (c *client) upload(name, content string) *httptest.ResponseRecorder {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(c.t, err)
	_, _ = fw.Write([]byte(content))
	require.NoError(c.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	return c.do(req)
}

func decodeView(t *testing.T, w *httptest.ResponseRecorder) View {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var v View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	c := newTestServer(t, "")
	w := c.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok":true`)
}

func TestPageRendersPasswordPrompt(t *testing.T) {
	c := newTestServer(t, "")
	w := c.do(httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `type="password"`)
	assert.NotContains(t, body, `type="file"`)
	assert.NotContains(t, body, "Password incorrect")
	require.NotNil(t, c.cookie, "session cookie issued")
	assert.True(t, c.cookie.HttpOnly)
}

func TestWrongPasswordRendersError(t *testing.T) {
	c := newTestServer(t, "")
	w := c.form("/password", url.Values{"password": {"nope"}}, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Password incorrect")
	assert.NotContains(t, w.Body.String(), "nope", "attempt is never echoed")
}

func TestFullFlow(t *testing.T) {
	c := newTestServer(t, "30")

	v := decodeView(t, c.form("/password", url.Values{"password": {"letmein"}}, true))
	require.False(t, v.Locked)

	v = decodeView(t, c.upload("people.csv", "name,age\nAlice,30\nBob,25"))
	require.True(t, v.ShowQuery)
	assert.Equal(t, "people.csv", v.FileName)

	v = decodeView(t, c.form("/ask", url.Values{"query": {"What is Alice's age?"}}, true))
	assert.Equal(t, "30", v.Answer)
	assert.Empty(t, v.Error)

	// the HTML page shows the same state
	w := c.do(httptest.NewRequest(http.MethodGet, "/", nil))
	body := w.Body.String()
	assert.Contains(t, body, "CSV Bot")
	assert.Contains(t, body, `class="answer">30<`)
	assert.Contains(t, body, "What is Alice&#39;s age?")
}

func TestSessionsAreIsolated(t *testing.T) {
	a := newTestServer(t, "x")
	decodeView(t, a.form("/password", url.Values{"password": {"letmein"}}, true))

	// a second browser on the same server has no cookie and stays locked
	b := &client{t: t, h: a.h}
	w := b.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Contains(t, w.Body.String(), `type="password"`)
	require.NotNil(t, b.cookie)
	assert.NotEqual(t, a.cookie.Value, b.cookie.Value)
}

func TestUploadRejectsNonCSV(t *testing.T) {
	c := newTestServer(t, "")
	decodeView(t, c.form("/password", url.Values{"password": {"letmein"}}, true))

	v := decodeView(t, c.upload("notes.txt", "hello"))
	assert.Equal(t, msgNotCSV, v.Error)
	assert.False(t, v.ShowQuery)
}

func TestUploadOverLimit(t *testing.T) {
	c := newTestServer(t, "")
	decodeView(t, c.form("/password", url.Values{"password": {"letmein"}}, true))

	big := strings.Repeat("a,b\n", (1<<20)/4+16)
	v := decodeView(t, c.upload("big.csv", big))
	assert.Contains(t, v.Error, "upload limit")
	assert.False(t, v.ShowQuery)
}

func TestUploadWithoutFileField(t *testing.T) {
	c := newTestServer(t, "")
	decodeView(t, c.form("/password", url.Values{"password": {"letmein"}}, true))

	v := decodeView(t, c.form("/upload", url.Values{"other": {"x"}}, true))
	assert.Equal(t, msgNoFile, v.Error)
}

func TestMalformedUploadShowsLoadError(t *testing.T) {
	c := newTestServer(t, "unused")
	decodeView(t, c.form("/password", url.Values{"password": {"letmein"}}, true))
	decodeView(t, c.upload("bad.csv", "a,b\n1,2\n3,4,5\n"))

	v := decodeView(t, c.form("/ask", url.Values{"query": {"q"}}, true))
	assert.Contains(t, v.Error, "Could not read the CSV file")
	assert.Empty(t, v.Answer)
}
