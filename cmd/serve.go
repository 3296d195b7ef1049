package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	cfgpkg "github.com/KaramelBytes/csvbot/internal/config"
	"github.com/KaramelBytes/csvbot/internal/gate"
	"github.com/KaramelBytes/csvbot/internal/session"
	"github.com/KaramelBytes/csvbot/internal/web"
)

var (
	serveAddr         string
	serveNoPassword   bool
	serveSecureCookie bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web UI (password gate, CSV upload, questions)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("addr") {
			c.Addr = serveAddr
		}
		if serveNoPassword {
			c.RequirePassword = false
		}
		srv, err := buildServer(c)
		if err != nil {
			return err
		}

		httpSrv := &http.Server{
			Addr:              c.Addr,
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			appLog.Info("serve", "listening", map[string]interface{}{
				"addr": c.Addr, "provider": c.Provider, "model": c.Model, "password": c.RequirePassword,
			})
			errCh <- httpSrv.ListenAndServe()
		}()
		fmt.Printf("✓ CSV Bot listening on %s\n", c.Addr)

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		appLog.Info("serve", "shutting down", nil)
		return httpSrv.Shutdown(shutdownCtx)
	},
}

// buildServer validates c and assembles gate, query service, sessions and routes.
func buildServer(c *cfgpkg.Global) (*web.Server, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	g := gate.Open()
	if c.RequirePassword {
		var err error
		if g, err = gate.New(c.Secrets.Password); err != nil {
			return nil, err
		}
	}
	svc, err := newQueryService(c)
	if err != nil {
		return nil, err
	}
	if c.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	orch := web.NewOrchestrator(g, svc, c.MaxUploadBytes, appLog)
	store := session.NewStore(time.Duration(c.SessionTTLMinutes) * time.Minute)
	return web.NewServer(orch, store, web.Options{
		MaxUploadBytes: c.MaxUploadBytes,
		SecureCookie:   serveSecureCookie,
		Logger:         appLog,
	})
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8501", "listen address (overrides config addr)")
	serveCmd.Flags().BoolVar(&serveNoPassword, "no-password", false, "disable the password gate")
	serveCmd.Flags().BoolVar(&serveSecureCookie, "secure-cookie", false, "mark the session cookie Secure (behind TLS)")
}
