// Package devserver is a local stand-in for the VPS Pilot backend. It serves
// the node REST endpoints and the system-stat WebSocket with synthetic data,
// so the client can be exercised without a fleet.
package devserver

import (
	"context"
	stderrors "errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/vpspilot/pilot/internal/logger"
	"github.com/vpspilot/pilot/internal/nodeapi"
	"github.com/vpspilot/pilot/internal/stream"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Paths served, relative to the API prefix.
const (
	APIPrefix  = "/api/v1"
	StreamPath = "/nodes/ws/system-stat"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Options configure a Server.
type Options struct {
	Generator *Generator
	// Token, when set, is required as a bearer token on REST routes.
	Token  string
	Logger logger.Logger
}

// Server is the dev backend.
type Server struct {
	engine *gin.Engine
	gen    *Generator
	token  string
	log    logger.Logger

	mu      sync.Mutex
	names   map[int]string
	queries int
}

// New builds a server. A nil generator serves DefaultNodes.
func New(opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		gen:   opts.Generator,
		token: opts.Token,
		log:   opts.Logger,
		names: make(map[int]string),
	}
	if s.gen == nil {
		s.gen = NewGenerator(DefaultNodes())
	}
	if s.log == nil {
		s.log = logger.NewEnvLogger("[devserver]")
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	api := r.Group(APIPrefix)
	api.GET(StreamPath, s.systemStat)

	nodes := api.Group("/nodes")
	nodes.Use(s.auth())
	{
		nodes.GET("", s.listNodes)
		nodes.GET("/:id", s.getNode)
		nodes.PUT("/change-name", s.rename)
	}

	s.engine = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Queries returns how many stream queries have been answered.
func (s *Server) Queries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Round(time.Microsecond))
	}
}

func (s *Server) auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.token == "" {
			c.Next()
			return
		}
		got := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if got != s.token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func (s *Server) node(id int) (nodeapi.Node, bool) {
	n, ok := s.gen.Node(id)
	if !ok {
		return n, false
	}
	s.mu.Lock()
	if name, renamed := s.names[id]; renamed {
		n.Name = name
	}
	s.mu.Unlock()
	return n, true
}

func (s *Server) getNode(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	n, ok := s.node(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "node not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"id":     n.ID,
		"name":   n.Name,
		"ip":     n.IP,
		"memory": n.Memory,
		"cpus":   n.CPUs,
	}})
}

func (s *Server) listNodes(c *gin.Context) {
	search := strings.ToLower(c.Query("search"))
	page, err := strconv.Atoi(c.Query("page"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit < 1 {
		limit = 10
	}

	var matched []nodeapi.Node
	for _, base := range s.gen.Nodes {
		n, _ := s.node(base.ID)
		if search != "" && !strings.Contains(strings.ToLower(n.Name), search) && !strings.Contains(n.IP, search) {
			continue
		}
		matched = append(matched, n)
	}

	out := make([]gin.H, 0, limit)
	start := (page - 1) * limit
	for i := start; i < len(matched) && i < start+limit; i++ {
		n := matched[i]
		out = append(out, gin.H{
			"id":               n.ID,
			"name":             n.Name,
			"ip":               n.IP,
			"os":               n.OS,
			"platform":         n.Platform,
			"platform_version": n.PlatformVersion,
			"kernel_version":   n.KernelVersion,
			"cpus":             n.CPUs,
			"total_memory":     n.MemoryGB(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (s *Server) rename(c *gin.Context) {
	var form struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, ok := s.gen.Node(form.ID); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "node not found"})
		return
	}
	s.mu.Lock()
	s.names[form.ID] = form.Name
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"data": "Node name updated"})
}

// systemStat answers every query with the node's full window for the
// requested range. Invalid queries are logged and ignored.
func (s *Server) systemStat(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("stream read: %v", err)
			}
			return
		}

		q, err := stream.DecodeQuery(data)
		if err != nil {
			s.log.Warn("ignoring query %q: %v", data, err)
			continue
		}

		payload, err := json.Marshal(s.gen.Window(q.ID, q.Range()))
		if err != nil {
			s.log.Error("encode window: %v", err)
			return
		}
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			s.log.Debug("stream write: %v", err)
			return
		}

		s.mu.Lock()
		s.queries++
		s.mu.Unlock()
	}
}
