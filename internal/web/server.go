package web

import (
	"embed"
	"errors"
	"html/template"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/KaramelBytes/csvbot/internal/logger"
	"github.com/KaramelBytes/csvbot/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	sessionKey = "csvbot.session"
	// room for multipart headers and the other form fields
	multipartSlack = 1 << 20
)

// Options configures the HTTP server.
type Options struct {
	MaxUploadBytes int64
	// SecureCookie marks the session cookie Secure (serve behind TLS).
	SecureCookie bool
	Logger       logger.Logger
}

// Server wires the orchestrator and session store to gin routes.
type Server struct {
	orch   *Orchestrator
	store  *session.Store
	opts   Options
	log    logger.Logger
	engine *gin.Engine
}

func NewServer(orch *Orchestrator, store *session.Store, opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	tmpl, err := template.New("").Funcs(template.FuncMap{"mb": func(n int64) int64 { return n >> 20 }}).
		ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	s := &Server{orch: orch, store: store, opts: opts, log: opts.Logger}
	r := gin.New()
	r.Use(RequestLogger(opts.Logger), gin.Recovery())
	r.SetHTMLTemplate(tmpl)
	r.MaxMultipartMemory = 32 << 20

	r.GET("/health", s.health)

	ui := r.Group("/", s.withSession)
	ui.GET("/", s.page)
	ui.POST("/password", s.password)
	ui.POST("/upload", s.upload)
	ui.POST("/ask", s.ask)

	s.engine = r
	return s, nil
}

// Handler exposes the router for http.Server or httptest.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "sessions": s.store.Len(), "time": time.Now().Format(time.RFC3339)})
}

// withSession loads or creates the session named by the cookie.
func (s *Server) withSession(c *gin.Context) {
	id, _ := c.Cookie(session.CookieName)
	st, created := s.store.GetOrCreate(id)
	if created {
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(session.CookieName, st.ID, 0, "/", "", s.opts.SecureCookie, true)
	}
	c.Set(sessionKey, st)
	c.Next()
}

func (s *Server) dispatch(c *gin.Context, a Action) {
	st := c.MustGet(sessionKey).(*session.State)
	st.Lock()
	v := s.orch.Handle(c.Request.Context(), st, a)
	st.Unlock()

	switch c.NegotiateFormat(gin.MIMEHTML, gin.MIMEJSON) {
	case gin.MIMEJSON:
		c.JSON(http.StatusOK, v)
	default:
		c.HTML(http.StatusOK, "index.html", v)
	}
}

func (s *Server) page(c *gin.Context) { s.dispatch(c, ActionView{}) }

func (s *Server) password(c *gin.Context) {
	s.dispatch(c, ActionPassword{Attempt: c.PostForm("password")})
}

func (s *Server) ask(c *gin.Context) {
	s.dispatch(c, ActionSubmit{Query: c.PostForm("query")})
}

func (s *Server) upload(c *gin.Context) {
	limit := s.opts.MaxUploadBytes
	if limit > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartSlack)
	}
	fh, err := c.FormFile("file")
	var act ActionUpload
	var mbe *http.MaxBytesError
	switch {
	case err == nil:
		act = ActionUpload{Name: fh.Filename, Size: fh.Size}
		if limit <= 0 || fh.Size <= limit {
			if act.Data, err = readFormFile(fh); err != nil {
				s.log.Error("web", "read upload", map[string]interface{}{"error": err})
				act = ActionUpload{}
			}
		}
	case errors.As(err, &mbe):
		act = ActionUpload{Size: mbe.Limit}
	default:
		s.log.Debug("web", "upload without file", map[string]interface{}{"error": err.Error()})
	}
	s.dispatch(c, act)
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
