package httpServer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	pathpkg "path"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"minicap/internal/auth"
	"minicap/internal/framecache"
	"minicap/internal/metrics"
	"minicap/internal/pipeline"
	"minicap/internal/server"
	"minicap/internal/sessionmanager"
	"minicap/internal/storage"
	"minicap/pkg/models"
)

// SnapshotDir is the storage prefix saved frames are written under
const SnapshotDir = "snapshots"

// signer is implemented by storage backends that can hand out download URLs
type signer interface {
	GetSignedURL(path string, expiration time.Duration) (string, error)
}

// Dependencies are the components the control API reads and configures
type Dependencies struct {
	Pipeline *pipeline.Pipeline
	Cache    *framecache.Cache
	Sessions *sessionmanager.Manager
	Frames   *server.Server
	Storage  storage.Storage
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Auth     *auth.Manager
}

// Server wraps the HTTP server with dependencies
type Server struct {
	router   *gin.Engine
	pipeline *pipeline.Pipeline
	cache    *framecache.Cache
	sessions *sessionmanager.Manager
	frames   *server.Server
	storage  storage.Storage
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	auth     *auth.Manager
}

// New creates a new HTTP server
func New(deps Dependencies) *Server {
	s := &Server{
		pipeline: deps.Pipeline,
		cache:    deps.Cache,
		sessions: deps.Sessions,
		frames:   deps.Frames,
		storage:  deps.Storage,
		metrics:  deps.Metrics,
		gatherer: deps.Gatherer,
		auth:     deps.Auth,
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	if s.auth == nil {
		s.auth = auth.New("")
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	router := gin.New()
	router.Use(gin.Recovery(), s.observe())

	api := router.Group("/api")
	{
		api.GET("/ping", s.handlePing)
		api.GET("/v1/status", s.handleStatus)
		api.GET("/v1/settings", s.handleGetSettings)
		api.PUT("/v1/settings", s.requireAuth(), s.handleUpdateSettings)
		api.GET("/v1/sessions", s.handleListSessions)
		api.GET("/v1/frame", s.handleFrame)
		api.POST("/v1/snapshots", s.requireAuth(), s.handleSaveSnapshot)
		api.GET("/v1/snapshots/*path", s.handleGetSnapshot)
		api.DELETE("/v1/snapshots/*path", s.requireAuth(), s.handleDeleteSnapshot)
		api.POST("/v1/tokens", s.requireAdmin(), s.handleIssueToken)
		api.DELETE("/v1/tokens/:token", s.requireAdmin(), s.handleRevokeToken)
	}

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	s.router = router
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves HTTP on addr until ctx is done
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("HTTP server listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// observe logs requests and records HTTP metrics
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		elapsed := time.Since(start)
		s.metrics.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), elapsed.Seconds())

		log.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": elapsed,
		}).Debug("HTTP request")
	}
}

// requireAuth rejects requests without the admin key or an issued token
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.auth.Authorize(credential(c)); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Next()
	}
}

// requireAdmin rejects requests without the admin key
func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.auth.Enabled() {
			c.AbortWithStatusJSON(http.StatusNotImplemented, gin.H{"error": "API key not configured"})
			return
		}
		if !s.auth.IsAdmin(credential(c)) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin key required"})
			return
		}
		c.Next()
	}
}

// credential reads a bearer token or the X-API-Key header
func credential(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.GetHeader("X-API-Key")
}

// Handler implementations

func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
		"time":    time.Now().Unix(),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	info := s.pipeline.Info()

	resp := models.StatusResponse{
		State:      info.State.String(),
		Rotation:   int(info.Rotation),
		BaseSize:   info.BaseSize,
		TargetSize: info.TargetSize,
		Settings:   s.settings(),
	}

	if frame, ok := s.cache.Snapshot(); ok {
		resp.LastFrame = &models.FrameInfo{
			Seq:        frame.Seq,
			Width:      frame.Width,
			Height:     frame.Height,
			Bytes:      frame.Len(),
			CapturedAt: frame.CapturedAt.Format(time.RFC3339Nano),
		}
	}

	if session, ok := s.sessions.Current(); ok {
		sessionInfo := session.Info()
		resp.Session = &sessionInfo
		resp.Connections = 1
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.settings())
}

func (s *Server) handleUpdateSettings(c *gin.Context) {
	var req models.SettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	fields := log.Fields{}
	if req.Quality != nil {
		s.pipeline.SetQuality(*req.Quality)
		fields["quality"] = *req.Quality
	}
	if req.FrameRate != nil {
		s.pipeline.SetFrameRate(*req.FrameRate)
		fields["frameRate"] = *req.FrameRate
	}
	if req.Debug != nil {
		s.frames.SetDebug(*req.Debug)
		fields["debug"] = *req.Debug
	}
	log.WithFields(fields).Info("Settings updated")

	c.JSON(http.StatusOK, s.settings())
}

func (s *Server) handleListSessions(c *gin.Context) {
	sessions := make([]models.SessionInfo, 0)
	if current, ok := s.sessions.Current(); ok {
		sessions = append(sessions, current.Info())
	}
	for _, session := range s.sessions.Recent() {
		sessions = append(sessions, session.Info())
	}

	c.JSON(http.StatusOK, models.SessionListResponse{
		Sessions: sessions,
		Total:    s.sessions.GetSessionCount(),
	})
}

func (s *Server) handleFrame(c *gin.Context) {
	frame, ok := s.cache.Snapshot()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no frame captured yet"})
		return
	}

	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("X-Frame-Seq", strconv.FormatUint(frame.Seq, 10))
	c.Data(http.StatusOK, "image/jpeg", frame.Data)
}

func (s *Server) handleSaveSnapshot(c *gin.Context) {
	if s.storage == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "storage not configured"})
		return
	}

	frame, ok := s.cache.Snapshot()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no frame captured yet"})
		return
	}

	name := storage.ObjectName("", frame.CapturedAt)
	path := pathpkg.Join(SnapshotDir, name)
	if err := s.storage.Write(c.Request.Context(), path, frame.Data); err != nil {
		log.WithError(err).WithField("path", path).Error("Failed to save snapshot")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save snapshot"})
		return
	}

	resp := gin.H{
		"path":  name,
		"seq":   frame.Seq,
		"bytes": frame.Len(),
	}
	if sg, ok := s.storage.(signer); ok {
		if url, err := sg.GetSignedURL(path, time.Hour); err == nil {
			resp["url"] = url
		} else {
			log.WithError(err).Warn("Failed to sign snapshot URL")
		}
	}

	c.JSON(http.StatusCreated, resp)
}

func (s *Server) handleGetSnapshot(c *gin.Context) {
	if s.storage == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "storage not configured"})
		return
	}

	path, err := snapshotPath(c.Param("path"))
	if err != nil {
		s.storageError(c, err)
		return
	}
	data, err := s.storage.Read(c.Request.Context(), path)
	if err != nil {
		s.storageError(c, err)
		return
	}

	c.Data(http.StatusOK, storage.ContentType(path), data)
}

func (s *Server) handleDeleteSnapshot(c *gin.Context) {
	if s.storage == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "storage not configured"})
		return
	}

	path, err := snapshotPath(c.Param("path"))
	if err != nil {
		s.storageError(c, err)
		return
	}
	if err := s.storage.Delete(c.Request.Context(), path); err != nil {
		s.storageError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) handleIssueToken(c *gin.Context) {
	var req models.TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := s.auth.IssueToken(req.Label, time.Duration(req.ExpiresIn)*time.Second, c.ClientIP())
	if err != nil {
		log.WithError(err).Error("Failed to issue token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	log.WithFields(log.Fields{
		"label":     token.Label,
		"issuedTo":  token.IssuedTo,
		"expiresAt": token.ExpiresAt,
	}).Info("API token issued")

	c.JSON(http.StatusCreated, models.TokenResponse{
		Token:     token.Token,
		Label:     token.Label,
		ExpiresAt: token.ExpiresAt.Format(time.RFC3339),
	})
}

func (s *Server) handleRevokeToken(c *gin.Context) {
	if !s.auth.RevokeToken(c.Param("token")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "token not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// Helper functions

func (s *Server) settings() models.SettingsResponse {
	return models.SettingsResponse{
		Quality:       s.pipeline.Quality(),
		FrameRate:     s.pipeline.FrameRate(),
		FramePeriodMs: s.pipeline.FramePeriod().Milliseconds(),
		Debug:         s.frames.Debug(),
	}
}

// snapshotPath maps a route parameter to its object under SnapshotDir
func snapshotPath(param string) (string, error) {
	name := strings.TrimPrefix(param, "/")
	if name == "" || !fs.ValidPath(name) {
		return "", fmt.Errorf("%w: %q", storage.ErrInvalidPath, name)
	}
	return pathpkg.Join(SnapshotDir, name), nil
}

func (s *Server) storageError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "snapshot not found"})
	case errors.Is(err, storage.ErrInvalidPath):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid snapshot path"})
	default:
		log.WithError(err).Error("Storage request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage error"})
	}
}
