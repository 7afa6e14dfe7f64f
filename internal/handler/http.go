package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"storybook-server/internal/catalog"
	"storybook-server/internal/middleware"
	"storybook-server/internal/models"
	"storybook-server/internal/pipeline"
	"storybook-server/internal/repository"
	"storybook-server/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StoryHandler - HTTP API сессий генерации и опубликованных историй.
type StoryHandler struct {
	sessions  *session.Manager
	stories   repository.StoryRepository
	catalog   catalog.Catalog
	jwtSecret string
	logger    *zap.Logger
}

// NewStoryHandler создает обработчик.
func NewStoryHandler(sessions *session.Manager, stories repository.StoryRepository, c catalog.Catalog, jwtSecret string, logger *zap.Logger) *StoryHandler {
	return &StoryHandler{
		sessions:  sessions,
		stories:   stories,
		catalog:   c,
		jwtSecret: jwtSecret,
		logger:    logger.Named("StoryHandler"),
	}
}

// RegisterRoutes регистрирует маршруты /api/v1. limiter может быть nil.
func (h *StoryHandler) RegisterRoutes(router *gin.Engine, limiter gin.HandlerFunc) {
	api := router.Group("/api/v1", middleware.JWTAuth(h.jwtSecret, h.logger))

	api.GET("/catalog", h.getCatalog)

	sessions := api.Group("/sessions")
	if limiter != nil {
		sessions.Use(limiter)
	}
	{
		sessions.POST("", h.createSession)
		sessions.GET("/:id", h.getSession)
		sessions.DELETE("/:id", h.deleteSession)
		sessions.PUT("/:id/selection", h.updateSelection)
		sessions.POST("/:id/characters/toggle", h.toggleCharacter)
		sessions.POST("/:id/pets/toggle", h.togglePet)
		sessions.POST("/:id/generate", h.transition(pipeline.ActionGenerate))
		sessions.POST("/:id/next", h.transition(pipeline.ActionNext))
		sessions.POST("/:id/finish", h.transition(pipeline.ActionFinish))
		sessions.POST("/:id/title", h.transition(pipeline.ActionTitle))
		sessions.POST("/:id/share", h.transition(pipeline.ActionShare))
		sessions.POST("/:id/retry", h.transition(pipeline.ActionRetry))
		sessions.POST("/:id/reset", h.resetSession)
		sessions.GET("/:id/chunks/:index/image", h.getChunkImage)
	}

	stories := api.Group("/stories")
	{
		stories.GET("", h.listStories)
		stories.GET("/:id", h.getStory)
		stories.PATCH("/:id/status", middleware.RequireRole(middleware.RoleReviewer), h.updateStoryStatus)
	}
}

// --- Вспомогательные функции --- //

func parseID(c *gin.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid id %q", models.ErrBadRequest, c.Param("id"))
	}
	return id, nil
}

// loadSession возвращает сессию текущего владельца. При ошибке ответ уже отправлен.
func (h *StoryHandler) loadSession(c *gin.Context) (*session.Session, models.SessionContext, bool) {
	sc, err := middleware.GetSessionContext(c)
	if err != nil {
		h.handleServiceError(c, err)
		return nil, sc, false
	}
	id, err := parseID(c)
	if err != nil {
		h.handleServiceError(c, err)
		return nil, sc, false
	}
	s, err := h.sessions.Get(id, sc)
	if err != nil {
		h.handleServiceError(c, err)
		return nil, sc, false
	}
	return s, sc, true
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", models.ErrBadRequest, key, raw)
	}
	return v, nil
}

// --- Обработчики HTTP --- //

func (h *StoryHandler) getCatalog(c *gin.Context) {
	c.JSON(http.StatusOK, h.catalog)
}

func (h *StoryHandler) createSession(c *gin.Context) {
	sc, err := middleware.GetSessionContext(c)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	s, err := h.sessions.Create(sc)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toSessionResponse(s, s.Orchestrator.Snapshot()))
}

func (h *StoryHandler) getSession(c *gin.Context) {
	s, _, ok := h.loadSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(s, s.Orchestrator.Snapshot()))
}

func (h *StoryHandler) deleteSession(c *gin.Context) {
	sc, err := middleware.GetSessionContext(c)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	id, err := parseID(c)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	if err := h.sessions.Delete(id, sc); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *StoryHandler) updateSelection(c *gin.Context) {
	s, _, ok := h.loadSession(c)
	if !ok {
		return
	}
	var req selectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleServiceError(c, fmt.Errorf("%w: %v", models.ErrBadRequest, err))
		return
	}

	agg := s.Orchestrator.Selection()
	setters := []struct {
		value string
		set   func(string) error
	}{
		{req.Theme, agg.SetTheme},
		{req.Genre, agg.SetGenre},
		{req.Mood, agg.SetMood},
	}
	for _, st := range setters {
		if st.value == "" {
			continue
		}
		if err := st.set(st.value); err != nil {
			h.handleServiceError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, agg.Snapshot())
}

func (h *StoryHandler) toggleCharacter(c *gin.Context) {
	s, _, ok := h.loadSession(c)
	if !ok {
		return
	}
	var ch models.Character
	if err := c.ShouldBindJSON(&ch); err != nil {
		h.handleServiceError(c, fmt.Errorf("%w: %v", models.ErrBadRequest, err))
		return
	}
	agg := s.Orchestrator.Selection()
	selected := agg.ToggleCharacter(ch)
	c.JSON(http.StatusOK, toggleResponse{Selected: selected, Selection: agg.Snapshot()})
}

func (h *StoryHandler) togglePet(c *gin.Context) {
	s, _, ok := h.loadSession(c)
	if !ok {
		return
	}
	var pet models.Pet
	if err := c.ShouldBindJSON(&pet); err != nil {
		h.handleServiceError(c, fmt.Errorf("%w: %v", models.ErrBadRequest, err))
		return
	}
	agg := s.Orchestrator.Selection()
	selected := agg.TogglePet(pet)
	c.JSON(http.StatusOK, toggleResponse{Selected: selected, Selection: agg.Snapshot()})
}

// transition запускает переход автомата в фоне и сразу отвечает 202 с новым состоянием.
func (h *StoryHandler) transition(action pipeline.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, sc, ok := h.loadSession(c)
		if !ok {
			return
		}
		if err := h.sessions.Dispatch(s.ID, sc, action); err != nil {
			if errors.Is(err, models.ErrBusy) || errors.Is(err, models.ErrInvalidTransition) {
				state := toStateDTO(s.Orchestrator.State())
				code := ErrCodeInvalidTransition
				if errors.Is(err, models.ErrBusy) {
					code = ErrCodeBusy
				}
				c.AbortWithStatusJSON(http.StatusConflict, APIError{Code: code, Message: err.Error(), State: &state})
				return
			}
			h.handleServiceError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, toSessionResponse(s, s.Orchestrator.Snapshot()))
	}
}

func (h *StoryHandler) resetSession(c *gin.Context) {
	s, sc, ok := h.loadSession(c)
	if !ok {
		return
	}
	var req resetRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.handleServiceError(c, fmt.Errorf("%w: %v", models.ErrBadRequest, err))
			return
		}
	}
	if err := h.sessions.Reset(s.ID, sc, req.ClearSelection); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(s, s.Orchestrator.Snapshot()))
}

func (h *StoryHandler) getChunkImage(c *gin.Context) {
	s, _, ok := h.loadSession(c)
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		h.handleServiceError(c, fmt.Errorf("%w: invalid chunk index", models.ErrBadRequest))
		return
	}
	img, err := s.Orchestrator.ChunkImage(index)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Data(http.StatusOK, http.DetectContentType(img), img)
}

func (h *StoryHandler) getStory(c *gin.Context) {
	sc, err := middleware.GetSessionContext(c)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	id, err := parseID(c)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	story, err := h.stories.GetByID(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	// Чужие истории не раскрываем
	if story.ParentID != sc.ParentID && middleware.GetRole(c) != middleware.RoleReviewer {
		h.handleServiceError(c, models.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, story)
}

func (h *StoryHandler) listStories(c *gin.Context) {
	sc, err := middleware.GetSessionContext(c)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	limit, err := queryInt(c, "limit", 20)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	stories, err := h.stories.ListByChild(c.Request.Context(), sc.ChildID, limit, offset)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	if stories == nil {
		stories = []*models.PersistedStory{}
	}
	c.JSON(http.StatusOK, PaginatedStories{Data: stories, Limit: limit, Offset: offset})
}

func (h *StoryHandler) updateStoryStatus(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleServiceError(c, fmt.Errorf("%w: %v", models.ErrBadRequest, err))
		return
	}
	if !req.Status.IsValid() {
		h.handleServiceError(c, fmt.Errorf("%w: unknown status %q", models.ErrBadRequest, req.Status))
		return
	}
	if err := h.stories.UpdateStatus(c.Request.Context(), id, req.Status); err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.logger.Info("Story status updated", zap.String("story_id", id.String()), zap.String("status", string(req.Status)))
	c.Status(http.StatusNoContent)
}
