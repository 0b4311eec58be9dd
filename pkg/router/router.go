package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cannibal3004/ai-dungeon-master-sub001/internal/models"
	"github.com/cannibal3004/ai-dungeon-master-sub001/internal/session"
	"github.com/cannibal3004/ai-dungeon-master-sub001/pkg/config"
	"github.com/cannibal3004/ai-dungeon-master-sub001/pkg/errors"
	"github.com/cannibal3004/ai-dungeon-master-sub001/pkg/health"
	"github.com/cannibal3004/ai-dungeon-master-sub001/pkg/logger"
	"github.com/cannibal3004/ai-dungeon-master-sub001/pkg/middleware"
	"github.com/cannibal3004/ai-dungeon-master-sub001/pkg/ws"
)

// Track server start time for uptime reporting
var startTime = time.Now()

// Router serves the local control-surface API the renderer talks to. Every
// mutation it accepts funnels through the session coordinator.
type Router struct {
	Engine  *gin.Engine
	Session *session.Coordinator
	Health  *health.Checker
	Logger  *logger.Logger
	Config  *config.Config
}

// New creates the control-surface router around a running coordinator.
func New(coord *session.Coordinator, checker *health.Checker, cfg *config.Config, log *logger.Logger) *Router {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(logger.Middleware(log))
	engine.Use(errors.ErrorHandler())
	engine.Use(errors.RecoveryWithLogger())
	engine.Use(middleware.RequestID())
	engine.Use(corsMiddleware(cfg.Security.AllowedOrigins))

	return &Router{
		Engine:  engine,
		Session: coord,
		Health:  checker,
		Logger:  log.WithComponent("router"),
		Config:  cfg,
	}
}

// SetupRoutes registers all control-surface routes.
func (r *Router) SetupRoutes() {
	r.Engine.GET("/healthz", r.healthCheckHandler())
	r.Engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	actionLimiter := middleware.NewActionLimiter(
		r.Config.Security.ActionRateLimit,
		r.Config.Security.ActionBurst,
		r.Logger,
	)

	v1 := r.Engine.Group("/v1")
	{
		v1.GET("/snapshot", r.snapshotHandler)
		v1.POST("/action", actionLimiter.Middleware(), r.actionHandler)
		v1.POST("/annotate", r.annotateHandler)
		v1.POST("/gesture", r.gestureHandler)

		audioRoutes := v1.Group("/audio")
		{
			audioRoutes.POST("/narration", r.narrationHandler)
			audioRoutes.POST("/ambience", r.ambienceHandler)
		}

		combatRoutes := v1.Group("/combat")
		{
			combatRoutes.POST("/attack", r.attackHandler)
			combatRoutes.POST("/next-turn", r.nextTurnHandler)
		}

		saveRoutes := v1.Group("/saves")
		{
			saveRoutes.GET("", r.listSavesHandler)
			saveRoutes.POST("", r.createSaveHandler)
			saveRoutes.GET("/:id", r.getSaveHandler)
			saveRoutes.DELETE("/:id", r.deleteSaveHandler)
		}
	}
}

func (r *Router) healthCheckHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "ok"
		code := http.StatusOK
		if r.Health != nil && !r.Health.Healthy() {
			status = "unhealthy"
			code = http.StatusServiceUnavailable
		}
		body := gin.H{
			"status": status,
			"uptime": time.Since(startTime).String(),
			"time":   time.Now().Format(time.RFC3339),
		}
		if r.Health != nil {
			body["components"] = r.Health.GetStatus()
		}
		c.JSON(code, body)
	}
}

func (r *Router) snapshotHandler(c *gin.Context) {
	c.JSON(http.StatusOK, r.Session.Snapshot())
}

type actionRequest struct {
	Action string `json:"action" binding:"required"`
}

func (r *Router) actionHandler(c *gin.Context) {
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewBadRequestError("INVALID_ACTION", "Action text is required."))
		return
	}
	r.Session.SubmitAction(c.Request.Context(), req.Action)
	c.JSON(http.StatusAccepted, gin.H{"status": "submitted"})
}

type annotateRequest struct {
	Text string `json:"text" binding:"required"`
}

func (r *Router) annotateHandler(c *gin.Context) {
	var req annotateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewBadRequestError("INVALID_TEXT", "Text is required."))
		return
	}
	c.JSON(http.StatusOK, gin.H{"segments": r.Session.Highlight(req.Text)})
}

func (r *Router) gestureHandler(c *gin.Context) {
	r.Session.Gesture()
	c.JSON(http.StatusOK, gin.H{"audio": r.Session.Audio().Snapshot()})
}

type narrationRequest struct {
	Enabled bool `json:"enabled"`
}

func (r *Router) narrationHandler(c *gin.Context) {
	var req narrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewBadRequestError("INVALID_BODY", "Expected {\"enabled\": bool}."))
		return
	}
	r.Session.Audio().SetNarrationEnabled(req.Enabled)
	c.JSON(http.StatusOK, gin.H{"audio": r.Session.Audio().Snapshot()})
}

type ambienceRequest struct {
	Enabled *bool    `json:"enabled,omitempty"`
	Volume  *float64 `json:"volume,omitempty"`
}

func (r *Router) ambienceHandler(c *gin.Context) {
	var req ambienceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewBadRequestError("INVALID_BODY", "Expected enabled and/or volume."))
		return
	}
	if req.Enabled != nil {
		r.Session.Audio().SetAmbienceEnabled(*req.Enabled)
	}
	if req.Volume != nil {
		r.Session.Audio().SetAmbienceVolume(*req.Volume)
	}
	c.JSON(http.StatusOK, gin.H{"audio": r.Session.Audio().Snapshot()})
}

type attackRequest struct {
	TargetID     string `json:"target_id"`
	AttackBonus  int    `json:"attack_bonus"`
	DamageDice   string `json:"damage_dice"`
	DamageType   string `json:"damage_type"`
	Advantage    bool   `json:"advantage"`
	Disadvantage bool   `json:"disadvantage"`
}

func (r *Router) attackHandler(c *gin.Context) {
	var req attackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewBadRequestError("INVALID_ATTACK", "Malformed attack request."))
		return
	}
	ok := r.Session.SubmitAttack(req.TargetID, ws.AttackIntent{
		AttackBonus:  req.AttackBonus,
		DamageDice:   req.DamageDice,
		DamageType:   req.DamageType,
		Advantage:    req.Advantage,
		Disadvantage: req.Disadvantage,
	})
	if !ok {
		c.Error(errors.NewConflictError("ATTACK_REJECTED", "Attack not submitted: not your turn or no valid target."))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "submitted"})
}

func (r *Router) nextTurnHandler(c *gin.Context) {
	if !r.Session.AdvanceTurn() {
		c.Error(errors.NewConflictError("TURN_REJECTED", "Cannot advance turn right now."))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "submitted"})
}

type createSaveRequest struct {
	Name string `json:"name" binding:"required"`
}

func (r *Router) createSaveHandler(c *gin.Context) {
	var req createSaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewBadRequestError("INVALID_SAVE", "Save name is required."))
		return
	}
	record := r.Session.CreateSave(c.Request.Context(), req.Name)
	if record == nil {
		c.Error(errors.NewUpstreamError("SAVE_FAILED", "The narrator service rejected the save."))
		return
	}
	c.JSON(http.StatusCreated, record)
}

func (r *Router) listSavesHandler(c *gin.Context) {
	saves := r.Session.ListSaves(c.Request.Context())
	if saves == nil {
		saves = []models.SaveRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"saves": saves})
}

func (r *Router) getSaveHandler(c *gin.Context) {
	record := r.Session.GetSave(c.Request.Context(), c.Param("id"))
	if record == nil {
		c.Error(errors.NewNotFoundError("SAVE_NOT_FOUND", "No such save."))
		return
	}
	c.JSON(http.StatusOK, record)
}

func (r *Router) deleteSaveHandler(c *gin.Context) {
	r.Session.DeleteSave(c.Request.Context(), c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowAll {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else if _, ok := allowed[origin]; ok {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}

		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept, Accept-Encoding, Authorization, Origin")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
