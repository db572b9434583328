// Package server implements the HTTP surface: the OpenAI-compatible chat
// completion endpoint, health, and static asset serving.
package server

import (
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/semaphore"

	"github.com/edgellm/edgellm/llm"
	"github.com/edgellm/edgellm/mcp"
	"github.com/edgellm/edgellm/tools"
)

const defaultModelName = "qwen3-0.6b"

type Server struct {
	runner   *llm.Runner
	builtins *tools.Registry
	mcpState mcp.State
	webRoot  string

	// gate admits one generation at a time; the backend shares context and
	// tensor buffers across calls.
	gate *semaphore.Weighted
	// mcpMu serializes calls into the external tool server.
	mcpMu sync.Mutex
}

// New assembles a server. builtins may be nil to disable local tools.
func New(runner *llm.Runner, builtins *tools.Registry, mcpState mcp.State, webRoot string) *Server {
	return &Server{
		runner:   runner,
		builtins: builtins,
		mcpState: mcpState,
		webRoot:  webRoot,
		gate:     semaphore.NewWeighted(1),
	}
}

// GenerateRoutes builds the gin handler.
func (s *Server) GenerateRoutes(allowOrigins []string) http.Handler {
	config := cors.DefaultConfig()
	config.AllowWildcard = true
	if len(allowOrigins) > 0 {
		config.AllowOrigins = allowOrigins
	} else {
		config.AllowAllOrigins = true
	}

	r := gin.New()
	r.Use(gin.Recovery(), cors.New(config))

	r.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/index.html")
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	r.POST("/v1/chat/completions", s.ChatHandler)
	r.NoRoute(s.serveStatic)

	return r
}

// serveStatic serves files under the web root; traversal outside it is a 404.
func (s *Server) serveStatic(c *gin.Context) {
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		c.Status(http.StatusNotFound)
		return
	}

	rel := strings.TrimPrefix(filepath.Clean("/"+c.Request.URL.Path), "/")
	path := filepath.Join(s.webRoot, rel)

	root, err := filepath.Abs(s.webRoot)
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil || (abs != root && !strings.HasPrefix(abs, root+string(os.PathSeparator))) {
		c.Status(http.StatusNotFound)
		return
	}
	st, err := os.Stat(abs)
	if err != nil || st.IsDir() {
		c.Status(http.StatusNotFound)
		return
	}
	f, err := os.Open(abs)
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	defer f.Close()
	// ServeContent, unlike ServeFile, does not redirect paths ending in
	// /index.html (which would loop with the / redirect).
	http.ServeContent(c.Writer, c.Request, st.Name(), st.ModTime(), f)
}

// Serve runs the HTTP server on ln until it fails.
func (s *Server) Serve(ln net.Listener, allowOrigins []string) error {
	srv := &http.Server{Handler: s.GenerateRoutes(allowOrigins)}
	return srv.Serve(ln)
}
