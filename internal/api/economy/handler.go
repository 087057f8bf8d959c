// Package economy provides REST API handlers for the progression engine:
// quest-event ingestion, tier claims, teams, leaderboards, and feature flags.
// Every mutating endpoint requires an Idempotency-Key header.
package economy

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/emberplay/economy-core/internal/errs"
	"github.com/emberplay/economy-core/internal/models"
	"github.com/emberplay/economy-core/internal/service/battlepass"
	"github.com/emberplay/economy-core/internal/service/flags"
	"github.com/emberplay/economy-core/internal/service/leaderboard"
	"github.com/emberplay/economy-core/pkg/logger"
)

// Handler handles economy API requests.
type Handler struct {
	battlepass  *battlepass.Service
	flags       *flags.Resolver
	leaderboard *leaderboard.Service
	log         *logger.Logger
}

// NewHandler creates a new economy handler.
func NewHandler(bp *battlepass.Service, fl *flags.Resolver, lb *leaderboard.Service, log *logger.Logger) *Handler {
	return &Handler{
		battlepass:  bp,
		flags:       fl,
		leaderboard: lb,
		log:         log,
	}
}

// RegisterRoutes mounts every endpoint under the given router group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/events", h.IngestEvent)
	r.POST("/claims", h.ClaimTier)
	r.POST("/claims/retroactive", h.ClaimRetroactive)
	r.POST("/quests/:code/bonus", h.ClaimQuestBonus)
	r.POST("/teams", h.CreateTeam)
	r.POST("/teams/:id/join", h.JoinTeam)
	r.POST("/teams/contribute", h.Contribute)

	r.GET("/progress/:user_id", h.GetProgress)
	r.GET("/leaderboard/players", h.GetPlayerLeaderboard)
	r.GET("/leaderboard/teams", h.GetTeamLeaderboard)
	r.GET("/users/:user_id/stats", h.GetUserStats)

	r.GET("/flags/:key/evaluate", h.EvaluateFlag)
	r.GET("/flags", h.ListFlags)
	r.PUT("/flags/:key", h.UpsertFlag)
	r.DELETE("/flags/:key", h.DeleteFlag)
}

// idempotencyKey extracts the required Idempotency-Key header.
func (h *Handler) idempotencyKey(c *gin.Context) (string, bool) {
	key := c.GetHeader("Idempotency-Key")
	if key == "" {
		h.errorResponse(c, http.StatusBadRequest, "INVALID_ARGUMENT", "Idempotency-Key header is required")
		return "", false
	}
	return key, true
}

// IngestEvent handles POST /events.
func (h *Handler) IngestEvent(c *gin.Context) {
	key, ok := h.idempotencyKey(c)
	if !ok {
		return
	}

	var input battlepass.IngestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request body")
		return
	}
	input.IdempotencyKey = key
	input.RequestID = c.GetHeader("X-Request-ID")

	result, replayed, err := h.battlepass.IngestEvent(c.Request.Context(), input)
	if err != nil {
		h.domainError(c, err, "Failed to ingest quest event")
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": result, "replayed": replayed})
}

// ClaimTier handles POST /claims.
func (h *Handler) ClaimTier(c *gin.Context) {
	key, ok := h.idempotencyKey(c)
	if !ok {
		return
	}

	var input battlepass.ClaimInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request body")
		return
	}
	input.IdempotencyKey = key
	input.RequestID = c.GetHeader("X-Request-ID")

	result, replayed, err := h.battlepass.ClaimTier(c.Request.Context(), input)
	if err != nil {
		h.domainError(c, err, "Failed to claim tier reward")
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": result, "replayed": replayed})
}

// ClaimRetroactive handles POST /claims/retroactive.
func (h *Handler) ClaimRetroactive(c *gin.Context) {
	key, ok := h.idempotencyKey(c)
	if !ok {
		return
	}

	var input battlepass.RetroactiveInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request body")
		return
	}
	input.IdempotencyKey = key
	input.RequestID = c.GetHeader("X-Request-ID")

	result, replayed, err := h.battlepass.ClaimRetroactive(c.Request.Context(), input)
	if err != nil {
		h.domainError(c, err, "Failed to claim retroactive rewards")
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": result, "replayed": replayed})
}

// ClaimQuestBonus handles POST /quests/:code/bonus.
func (h *Handler) ClaimQuestBonus(c *gin.Context) {
	key, ok := h.idempotencyKey(c)
	if !ok {
		return
	}

	var input battlepass.BonusInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request body")
		return
	}
	input.QuestCode = c.Param("code")
	input.IdempotencyKey = key
	input.RequestID = c.GetHeader("X-Request-ID")

	result, replayed, err := h.battlepass.ClaimQuestBonus(c.Request.Context(), input)
	if err != nil {
		h.domainError(c, err, "Failed to claim quest bonus")
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": result, "replayed": replayed})
}

// CreateTeam handles POST /teams.
func (h *Handler) CreateTeam(c *gin.Context) {
	key, ok := h.idempotencyKey(c)
	if !ok {
		return
	}

	var input battlepass.CreateTeamInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request body")
		return
	}
	input.IdempotencyKey = key
	input.RequestID = c.GetHeader("X-Request-ID")

	result, replayed, err := h.battlepass.CreateTeam(c.Request.Context(), input)
	if err != nil {
		h.domainError(c, err, "Failed to create team")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"result": result, "replayed": replayed})
}

// JoinTeam handles POST /teams/:id/join.
func (h *Handler) JoinTeam(c *gin.Context) {
	key, ok := h.idempotencyKey(c)
	if !ok {
		return
	}

	teamID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid team id")
		return
	}

	var input battlepass.JoinTeamInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request body")
		return
	}
	input.TeamID = uint(teamID)
	input.IdempotencyKey = key
	input.RequestID = c.GetHeader("X-Request-ID")

	result, replayed, err := h.battlepass.JoinTeam(c.Request.Context(), input)
	if err != nil {
		h.domainError(c, err, "Failed to join team")
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": result, "replayed": replayed})
}

// Contribute handles POST /teams/contribute.
func (h *Handler) Contribute(c *gin.Context) {
	key, ok := h.idempotencyKey(c)
	if !ok {
		return
	}

	var input battlepass.ContributeInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request body")
		return
	}
	input.IdempotencyKey = key
	input.RequestID = c.GetHeader("X-Request-ID")

	result, replayed, err := h.battlepass.Contribute(c.Request.Context(), input)
	if err != nil {
		h.domainError(c, err, "Failed to contribute team XP")
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": result, "replayed": replayed})
}

// GetProgress handles GET /progress/:user_id?season=key.
func (h *Handler) GetProgress(c *gin.Context) {
	userID := c.Param("user_id")
	seasonKey := c.Query("season")

	progress, season, err := h.battlepass.GetProgress(c.Request.Context(), userID, seasonKey)
	if err != nil {
		h.domainError(c, err, "Failed to get progress")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"season":  season.Key,
		"user_id": userID,
		"xp":      progress.XP,
		"tier":    progress.Tier,
	})
}

// GetPlayerLeaderboard handles GET /leaderboard/players?season=key&limit=10.
func (h *Handler) GetPlayerLeaderboard(c *gin.Context) {
	limit, err := h.parseLimit(c, 10)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}

	entries, err := h.leaderboard.TopPlayers(c.Request.Context(), c.Query("season"), limit)
	if err != nil {
		h.domainError(c, err, "Failed to get player leaderboard")
		return
	}

	c.JSON(http.StatusOK, gin.H{"leaderboard": entries, "total_entries": len(entries)})
}

// GetTeamLeaderboard handles GET /leaderboard/teams?season=key&limit=10.
func (h *Handler) GetTeamLeaderboard(c *gin.Context) {
	limit, err := h.parseLimit(c, 10)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}

	entries, err := h.leaderboard.TopTeams(c.Request.Context(), c.Query("season"), limit)
	if err != nil {
		h.domainError(c, err, "Failed to get team leaderboard")
		return
	}

	c.JSON(http.StatusOK, gin.H{"leaderboard": entries, "total_entries": len(entries)})
}

// GetUserStats handles GET /users/:user_id/stats?season=key.
func (h *Handler) GetUserStats(c *gin.Context) {
	stats, err := h.leaderboard.GetUserStats(c.Request.Context(), c.Param("user_id"), c.Query("season"))
	if err != nil {
		h.domainError(c, err, "Failed to get user stats")
		return
	}

	c.JSON(http.StatusOK, stats)
}

// EvaluateFlag handles GET /flags/:key/evaluate.
func (h *Handler) EvaluateFlag(c *gin.Context) {
	ec := flags.EvalContext{
		UserID:      c.Query("user_id"),
		SessionID:   c.Query("session_id"),
		IP:          c.ClientIP(),
		Region:      c.Query("region"),
		Environment: c.Query("environment"),
	}

	enabled := h.flags.IsEnabled(c.Request.Context(), c.Param("key"), ec)
	c.JSON(http.StatusOK, gin.H{"key": c.Param("key"), "enabled": enabled})
}

// ListFlags handles GET /flags.
func (h *Handler) ListFlags(c *gin.Context) {
	list, err := h.flags.List(c.Request.Context())
	if err != nil {
		h.domainError(c, err, "Failed to list flags")
		return
	}
	c.JSON(http.StatusOK, gin.H{"flags": list})
}

// UpsertFlag handles PUT /flags/:key.
func (h *Handler) UpsertFlag(c *gin.Context) {
	var flag models.FeatureFlag
	if err := c.ShouldBindJSON(&flag); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request body")
		return
	}
	flag.Key = c.Param("key")

	if err := h.flags.Save(c.Request.Context(), &flag); err != nil {
		h.domainError(c, err, "Failed to save flag")
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": flag.Key, "saved": true})
}

// DeleteFlag handles DELETE /flags/:key.
func (h *Handler) DeleteFlag(c *gin.Context) {
	if err := h.flags.Remove(c.Request.Context(), c.Param("key")); err != nil {
		h.domainError(c, err, "Failed to delete flag")
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": c.Param("key"), "deleted": true})
}

func (h *Handler) parseLimit(c *gin.Context, defaultLimit int) (int, error) {
	limitStr := c.DefaultQuery("limit", strconv.Itoa(defaultLimit))
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit < 1 || limit > 100 {
		return 0, fmt.Errorf("limit must be a number between 1 and 100")
	}
	return limit, nil
}

// domainError maps a service error onto its HTTP status and stable code;
// non-domain errors become opaque 500s.
func (h *Handler) domainError(c *gin.Context, err error, logMsg string) {
	status := errs.StatusOf(err)
	code := errs.CodeOf(err)
	if code == "" {
		h.log.Error().Err(err).Msg(logMsg)
		h.errorResponse(c, http.StatusInternalServerError, "INTERNAL", "internal server error")
		return
	}
	h.errorResponse(c, status, code, err.Error())
}

func (h *Handler) errorResponse(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, gin.H{
		"code":      code,
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}
