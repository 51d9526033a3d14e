package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/peter-kozarec/simutrade/pkg/middleware"
	"github.com/peter-kozarec/simutrade/pkg/simulation"
)

type Config struct {
	Address        string
	ReadLimit      int64
	WriteQueue     int
	WriteTimeout   time.Duration
	PongWait       time.Duration
	PingInterval   time.Duration
	AllowedOrigins []string
}

func DefaultConfig() Config {
	return Config{
		Address:      ":8080",
		ReadLimit:    64 << 10,
		WriteQueue:   1024,
		WriteTimeout: 10 * time.Second,
		PongWait:     60 * time.Second,
		PingInterval: 50 * time.Second,
	}
}

type Option func(*Server)

// WithHandlerMiddleware wraps the inbound dispatch. The first wrapper is the outermost.
func WithHandlerMiddleware(wrappers ...func(middleware.Handler) middleware.Handler) Option {
	return func(s *Server) {
		s.handlerWrappers = append(s.handlerWrappers, wrappers...)
	}
}

// WithSinkMiddleware wraps every connection's outbound sink. The first wrapper is the outermost.
func WithSinkMiddleware(wrappers ...func(simulation.Sink) simulation.Sink) Option {
	return func(s *Server) {
		s.sinkWrappers = append(s.sinkWrappers, wrappers...)
	}
}

// Server exposes a session manager over websocket.
type Server struct {
	logger  *zap.Logger
	manager *simulation.Manager
	cfg     Config

	handlerWrappers []func(middleware.Handler) middleware.Handler
	sinkWrappers    []func(simulation.Sink) simulation.Sink

	handler  middleware.Handler
	upgrader websocket.Upgrader
	engine   *gin.Engine
}

func New(logger *zap.Logger, manager *simulation.Manager, cfg Config, options ...Option) *Server {
	s := &Server{
		logger:  logger,
		manager: manager,
		cfg:     cfg,
	}
	for _, option := range options {
		option(s)
	}

	s.handler = middleware.Chain(s.handlerWrappers...)(manager.Handle)

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	s.engine = gin.New()
	s.engine.Use(gin.Recovery())
	s.engine.GET("/ws", s.serveWebsocket)
	s.engine.GET("/ping", s.ping)
	s.engine.GET("/sessions", s.sessions)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves until ctx is cancelled, then stops accepting
// connections and shuts the manager down.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("address", s.cfg.Address))
		errChan <- srv.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	err := s.manager.Shutdown(shutdownCtx)
	if httpErr := srv.Shutdown(shutdownCtx); httpErr != nil {
		err = multierr.Append(err, httpErr)
	}
	return err
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == origin {
			return true
		}
	}
	return false
}

func (s *Server) serveWebsocket(c *gin.Context) {
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := newConnection(ws, s.logger, s.cfg)

	sink := middleware.Chain(s.sinkWrappers...)(simulation.SinkFunc(conn.Send))
	client := simulation.NewClient(conn.id.String(), sink)

	conn.logger.Info("client connected", zap.String("remote", ws.RemoteAddr().String()))

	go conn.write()
	go func() {
		defer conn.stop()

		conn.read(client, s.handler, func(ctx context.Context, client *simulation.Client, err error) {
			s.manager.ReportError(ctx, client, "", err)
		})

		disconnectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.manager.Disconnect(disconnectCtx, client); err != nil {
			conn.logger.Warn("failed to stop sessions", zap.Error(err))
		}
		conn.logger.Info("client disconnected")
	}()
}

func (s *Server) ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"time":     time.Now().UTC(),
		"sessions": len(s.manager.Sessions()),
	})
}

func (s *Server) sessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": s.manager.Sessions()})
}
