// Package api serves the splitting strategies over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/zhchang/tasksplit/density"
	"github.com/zhchang/tasksplit/extract"
	"github.com/zhchang/tasksplit/geo"
	"github.com/zhchang/tasksplit/splitter"
)

const requestIDHeader = "X-Request-ID"

// Pinger reports database health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	engine       *gin.Engine
	splitter     *splitter.Splitter
	orchestrator *density.Orchestrator
	db           Pinger
	meters       float64
	buildings    int
}

type Option func(*Server)

// WithDensity enables /average-building.
func WithDensity(o *density.Orchestrator, db Pinger) Option {
	return func(s *Server) {
		s.orchestrator = o
		s.db = db
	}
}

// WithDefaults sets the square size and building count used when a
// request leaves them out.
func WithDefaults(meters float64, buildings int) Option {
	return func(s *Server) {
		s.meters = meters
		s.buildings = buildings
	}
}

func NewServer(sp *splitter.Splitter, options ...Option) *Server {
	s := &Server{splitter: sp, meters: 100, buildings: 5}
	for _, option := range options {
		option(s)
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog())
	r.GET("/healthz", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.POST("/squares", s.squares)
	r.POST("/average-building", s.averageBuilding)
	r.POST("/features", s.features)
	s.engine = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logrus.WithFields(logrus.Fields{
			"request_id": c.GetString("request_id"),
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"duration":   time.Since(start).Round(time.Millisecond).String(),
		}).Info("request")
	}
}

type squaresRequest struct {
	AOI     json.RawMessage `json:"aoi" binding:"required"`
	Meters  float64         `json:"meters"`
	Extract json.RawMessage `json:"extract"`
}

type averageBuildingRequest struct {
	AOI          json.RawMessage `json:"aoi" binding:"required"`
	NumBuildings int             `json:"num_buildings"`
	Features     json.RawMessage `json:"features"`
	Polygons     json.RawMessage `json:"polygons"`
}

type featuresRequest struct {
	AOI      json.RawMessage `json:"aoi" binding:"required"`
	Features json.RawMessage `json:"features" binding:"required"`
}

func (s *Server) health(c *gin.Context) {
	status := gin.H{"status": "ok"}
	if s.db != nil {
		if err := s.db.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
			return
		}
		status["database"] = "ok"
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) squares(c *gin.Context) {
	var req squaresRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, "square", badRequest(err))
		return
	}
	if req.Meters == 0 {
		req.Meters = s.meters
	}
	strategy := splitter.Square{Meters: req.Meters}
	if len(req.Extract) > 0 {
		var err error
		if strategy.Extract, err = geo.ParseFeatureCollection([]byte(req.Extract)); err != nil {
			s.fail(c, "square", err)
			return
		}
	}
	s.run(c, []byte(req.AOI), strategy)
}

func (s *Server) features(c *gin.Context) {
	var req featuresRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, "features", badRequest(err))
		return
	}
	fc, err := geo.ParseFeatureCollection([]byte(req.Features))
	if err != nil {
		s.fail(c, "features", err)
		return
	}
	s.run(c, []byte(req.AOI), splitter.Features{Features: fc})
}

func (s *Server) averageBuilding(c *gin.Context) {
	var req averageBuildingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, "density", badRequest(err))
		return
	}
	if s.orchestrator == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no database configured", "request_id": c.GetString("request_id")})
		return
	}
	dr := density.Request{TargetCount: req.NumBuildings}
	if dr.TargetCount == 0 {
		dr.TargetCount = s.buildings
	}
	var err error
	if len(req.Features) > 0 {
		if dr.Features, err = geo.ParseFeatureCollection([]byte(req.Features)); err != nil {
			s.fail(c, "density", err)
			return
		}
	}
	if len(req.Polygons) > 0 {
		if dr.Polygons, err = geo.ParseFeatureCollection([]byte(req.Polygons)); err != nil {
			s.fail(c, "density", err)
			return
		}
	}
	s.run(c, []byte(req.AOI), splitter.Density{Orchestrator: s.orchestrator, Request: dr})
}

func (s *Server) run(c *gin.Context, aoi []byte, strategy splitter.Strategy) {
	start := time.Now()
	fc, err := s.splitter.Split(c.Request.Context(), aoi, strategy)
	SplitDuration.WithLabelValues(strategy.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		s.fail(c, strategy.Name(), err)
		return
	}
	body, err := fc.MarshalJSON()
	if err != nil {
		s.fail(c, strategy.Name(), err)
		return
	}
	SplitsTotal.WithLabelValues(strategy.Name(), "ok").Inc()
	TasksTotal.WithLabelValues(strategy.Name()).Add(float64(len(fc)))
	c.Data(http.StatusOK, "application/geo+json", body)
}

type bindError struct {
	err error
}

func (b bindError) Error() string {
	return b.err.Error()
}

func badRequest(err error) error {
	return bindError{err}
}

// Status maps a split error to its HTTP status.
func Status(err error) int {
	var be bindError
	switch {
	case errors.As(err, &be), errors.Is(err, geo.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, extract.ErrExtraction):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, strategy string, err error) {
	status := Status(err)
	SplitsTotal.WithLabelValues(strategy, http.StatusText(status)).Inc()
	entry := logrus.WithField("request_id", c.GetString("request_id"))
	if status >= http.StatusInternalServerError {
		entry.Errorf("%s split failed: %s", strategy, err)
	} else {
		entry.Infof("%s split rejected: %s", strategy, err)
	}
	c.JSON(status, gin.H{"error": err.Error(), "request_id": c.GetString("request_id")})
}
