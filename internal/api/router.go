package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/dungeonrun/internal/content"
	"github.com/cory-johannsen/dungeonrun/internal/game/dungeon"
	"github.com/cory-johannsen/dungeonrun/internal/game/run"
	"github.com/cory-johannsen/dungeonrun/internal/storage/postgres"
)

// defaultListLimit caps archive listings without an explicit limit.
const defaultListLimit = 50

// StartRequest is the body of POST /runs.
type StartRequest struct {
	DungeonID string   `json:"dungeon_id" binding:"required"`
	TeamID    string   `json:"team_id"`
	KeyLevel  int      `json:"key_level" binding:"min=1"`
	Affixes   []string `json:"affixes"`
	// Route overrides the dungeon's shipped route.
	Route         dungeon.Route `json:"route"`
	QuantityBonus float64       `json:"quantity_bonus"`
	RarityBonus   float64       `json:"rarity_bonus"`
}

// ControlRequest is the body of the member and pack control endpoints.
type ControlRequest struct {
	MemberID  string `json:"member_id"`
	AbilityID string `json:"ability_id"`
	PackID    string `json:"pack_id"`
}

// HealthCheck reports whether a dependency of the server is usable.
type HealthCheck func(ctx context.Context) error

// Server serves the HTTP and websocket surface over a registry.
type Server struct {
	reg      *Registry
	content  *content.Bundle
	logger   *zap.Logger
	upgrader websocket.Upgrader
	checks   map[string]HealthCheck
}

// NewServer returns a server over reg, resolving run requests against bundle.
//
// Precondition: reg and bundle must be non-nil.
func NewServer(reg *Registry, bundle *content.Bundle, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		reg:     reg,
		content: bundle,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// WithHealthChecks adds named checks to GET /health and returns s.
func (s *Server) WithHealthChecks(checks map[string]HealthCheck) *Server {
	if s.checks == nil {
		s.checks = make(map[string]HealthCheck, len(checks))
	}
	for name, fn := range checks {
		s.checks[name] = fn
	}
	return s
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/health", s.health)
	r.GET("/dungeons", s.listDungeons)

	runs := r.Group("/runs")
	runs.POST("", s.startRun)
	runs.GET("", s.listRuns)
	runs.GET("/:id", s.snapshot)
	runs.DELETE("/:id", s.forget)
	runs.GET("/:id/result", s.result)
	runs.GET("/:id/log", s.exportLog)
	runs.GET("/:id/feed", s.feed)
	runs.POST("/:id/pause", s.control(func(sig *run.ControlSignals, _ ControlRequest) error { sig.Pause(); return nil }))
	runs.POST("/:id/resume", s.control(func(sig *run.ControlSignals, _ ControlRequest) error { sig.Resume(); return nil }))
	runs.POST("/:id/stop", s.control(func(sig *run.ControlSignals, _ ControlRequest) error { sig.Stop(); return nil }))
	runs.POST("/:id/resurrect", s.control(func(sig *run.ControlSignals, req ControlRequest) error {
		if req.MemberID == "" {
			return errBadControl("member_id is required")
		}
		sig.Resurrect(req.MemberID)
		return nil
	}))
	runs.POST("/:id/ability", s.control(func(sig *run.ControlSignals, req ControlRequest) error {
		if req.MemberID == "" || req.AbilityID == "" {
			return errBadControl("member_id and ability_id are required")
		}
		sig.UseAbility(req.MemberID, req.AbilityID)
		return nil
	}))
	runs.POST("/:id/engage", s.control(func(sig *run.ControlSignals, req ControlRequest) error {
		if req.PackID == "" {
			return errBadControl("pack_id is required")
		}
		sig.EngageOptional(req.PackID)
		return nil
	}))

	archive := r.Group("/archive/runs")
	archive.GET("", s.listArchived)
	archive.GET("/:id", s.getArchived)
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}

type errBadControl string

func (e errBadControl) Error() string { return string(e) }

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var bad errBadControl
	switch {
	case errors.Is(err, ErrRunNotFound),
		errors.Is(err, postgres.ErrRunNotFound),
		errors.Is(err, postgres.ErrNoCombatLog):
		return http.StatusNotFound
	case errors.Is(err, ErrRunFinished), errors.Is(err, ErrRunActive):
		return http.StatusConflict
	case errors.As(err, &bad),
		errors.Is(err, content.ErrUnknownDungeon),
		errors.Is(err, content.ErrUnknownTeam),
		errors.Is(err, content.ErrUnknownAffix):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func abort(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// health answers 200 when every check passes and 503 naming the failures otherwise.
func (s *Server) health(c *gin.Context) {
	failed := gin.H{}
	for name, check := range s.checks {
		if err := check(c.Request.Context()); err != nil {
			s.logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "failed": failed})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listDungeons(c *gin.Context) {
	type view struct {
		ID               string  `json:"id"`
		Name             string  `json:"name"`
		TimeLimitSeconds float64 `json:"time_limit_seconds"`
		ForcesRequired   int     `json:"forces_required"`
		Pulls            int     `json:"pulls"`
	}
	out := make([]view, 0, len(s.content.Dungeons))
	for _, id := range s.content.DungeonIDs() {
		d, route, _ := s.content.Dungeon(id)
		out = append(out, view{
			ID:               d.ID,
			Name:             d.Name,
			TimeLimitSeconds: d.TimeLimitSeconds,
			ForcesRequired:   d.ForcesRequired(),
			Pulls:            len(route),
		})
	}
	c.JSON(http.StatusOK, out)
}

// params resolves req against the content bundle.
func (s *Server) params(c *gin.Context, req StartRequest) (run.Params, error) {
	d, route, err := s.content.Dungeon(req.DungeonID)
	if err != nil {
		return run.Params{}, err
	}
	if len(req.Route) > 0 {
		route = req.Route
	}
	teamID := req.TeamID
	if teamID == "" {
		teamID = "default"
	}
	team, err := s.content.Team(teamID)
	if err != nil {
		return run.Params{}, err
	}
	affixes, err := s.content.AffixEffects(req.Affixes)
	if err != nil {
		return run.Params{}, err
	}
	highest, err := s.reg.HighestCompletedKey(c.Request.Context(), d.ID)
	if err != nil {
		s.logger.Warn("looking up highest completed key", zap.String("dungeon", d.ID), zap.Error(err))
		highest = 0
	}
	return run.Params{
		Team:                 team,
		Dungeon:              d,
		Route:                route,
		KeyLevel:             req.KeyLevel,
		Affixes:              affixes,
		HighestCompletedTier: highest,
		QuantityBonus:        req.QuantityBonus,
		RarityBonus:          req.RarityBonus,
	}, nil
}

func (s *Server) startRun(c *gin.Context) {
	var req StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	p, err := s.params(c, req)
	if err != nil {
		abort(c, statusFor(err), err)
		return
	}
	e, err := s.reg.Start(p)
	if err != nil {
		// Validation failures are caller errors.
		abort(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"run_id": e.ID})
}

func (s *Server) listRuns(c *gin.Context) {
	c.JSON(http.StatusOK, s.reg.List())
}

func (s *Server) entry(c *gin.Context) (*Entry, bool) {
	e, err := s.reg.Get(c.Param("id"))
	if err != nil {
		abort(c, statusFor(err), err)
		return nil, false
	}
	return e, true
}

func (s *Server) snapshot(c *gin.Context) {
	e, ok := s.entry(c)
	if !ok {
		return
	}
	snap, ok := e.Snapshot()
	if !ok {
		c.JSON(http.StatusAccepted, gin.H{"run_id": e.ID, "phase": run.PhaseIdle})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) forget(c *gin.Context) {
	if err := s.reg.Forget(c.Param("id")); err != nil {
		abort(c, statusFor(err), err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) result(c *gin.Context) {
	e, ok := s.entry(c)
	if !ok {
		return
	}
	res, err := e.Result()
	if err != nil {
		abort(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) exportLog(c *gin.Context) {
	e, ok := s.entry(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, e.Export())
}

func (s *Server) control(apply func(*run.ControlSignals, ControlRequest) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		e, ok := s.entry(c)
		if !ok {
			return
		}
		var req ControlRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				abort(c, http.StatusBadRequest, err)
				return
			}
		}
		var applyErr error
		err := e.Control(func(sig *run.ControlSignals) { applyErr = apply(sig, req) })
		if err == nil {
			err = applyErr
		}
		if err != nil {
			abort(c, statusFor(err), err)
			return
		}
		c.Status(http.StatusAccepted)
	}
}

func (s *Server) listArchived(c *gin.Context) {
	if s.reg.archive == nil {
		abort(c, http.StatusNotImplemented, errors.New("no run archive configured"))
		return
	}
	limit := defaultListLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			abort(c, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = n
	}
	out, err := s.reg.archive.List(c.Request.Context(), c.Query("dungeon"), limit)
	if err != nil {
		abort(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getArchived(c *gin.Context) {
	if s.reg.archive == nil {
		abort(c, http.StatusNotImplemented, errors.New("no run archive configured"))
		return
	}
	rec, err := s.reg.archive.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		abort(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"dungeon_id": rec.DungeonID,
		"key_level":  rec.KeyLevel,
		"created_at": rec.CreatedAt,
		"result":     rec.Result,
		"log":        rec.Log,
	})
}
