package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storybook-server/internal/catalog"
	"storybook-server/internal/handler"
	"storybook-server/internal/middleware"
	"storybook-server/internal/mocks"
	"storybook-server/internal/models"
	"storybook-server/internal/pipeline"
	"storybook-server/internal/prompt"
	"storybook-server/internal/selection"
	"storybook-server/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

const testJWTSecret = "handler-test-secret"

type HandlerSuite struct {
	suite.Suite
	router   *gin.Engine
	manager  *session.Manager
	text     *mocks.MockTextGenerator
	images   *mocks.MockImageGenerator
	stories  *mocks.MockStoryRepository
	owner    models.SessionContext
	token    string
	reviewer string
	stranger string
}

func (s *HandlerSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	t := s.T()

	s.text = mocks.NewMockTextGenerator(t)
	s.images = mocks.NewMockImageGenerator(t)
	s.stories = mocks.NewMockStoryRepository(t)
	objects := mocks.NewMockObjectStorage(t)

	factory := func(sc models.SessionContext) *pipeline.Orchestrator {
		assembler := pipeline.NewAssembler(objects, s.stories, nil, pipeline.AssemblerConfig{Concurrency: 1}, logger)
		return pipeline.NewOrchestrator(sc, selection.NewAggregator(catalog.Default()), prompt.NewBuilder(""),
			s.text, s.images, assembler, nil, pipeline.Options{}, logger)
	}
	s.manager = session.NewManager(factory, session.Config{MaxSessions: 10}, logger)

	s.router = gin.New()
	h := handler.NewStoryHandler(s.manager, s.stories, catalog.Default(), testJWTSecret, logger)
	h.RegisterRoutes(s.router, nil)

	var err error
	s.owner = models.SessionContext{ParentID: "parent-1", ChildID: "child-1"}
	s.token, err = middleware.GenerateTestJWT(s.owner, "", testJWTSecret, time.Hour)
	s.Require().NoError(err)
	s.reviewer, err = middleware.GenerateTestJWT(models.SessionContext{ParentID: "rev", ChildID: "rev"}, middleware.RoleReviewer, testJWTSecret, time.Hour)
	s.Require().NoError(err)
	s.stranger, err = middleware.GenerateTestJWT(models.SessionContext{ParentID: "parent-2", ChildID: "child-2"}, "", testJWTSecret, time.Hour)
	s.Require().NoError(err)
}

func (s *HandlerSuite) TearDownTest() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Require().NoError(s.manager.Shutdown(ctx))
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) createSession() string {
	rec := s.do(http.MethodPost, "/api/v1/sessions", s.token, nil)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var resp handler.SessionResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal(models.StateIdle, resp.State.Kind)
	return resp.ID
}

func (s *HandlerSuite) getSession(id string) handler.SessionResponse {
	rec := s.do(http.MethodGet, "/api/v1/sessions/"+id, s.token, nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var resp handler.SessionResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func (s *HandlerSuite) TestRequiresToken() {
	rec := s.do(http.MethodGet, "/api/v1/catalog", "", nil)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *HandlerSuite) TestCatalog() {
	rec := s.do(http.MethodGet, "/api/v1/catalog", s.token, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var c catalog.Catalog
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &c))
	s.Contains(c.Themes, "Space Explorers")
	s.NotEmpty(c.Genres)
	s.NotEmpty(c.Moods)
}

func (s *HandlerSuite) TestSessionOwnership() {
	id := s.createSession()

	s.Equal(http.StatusForbidden, s.do(http.MethodGet, "/api/v1/sessions/"+id, s.stranger, nil).Code)
	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/api/v1/sessions/"+uuid.NewString(), s.token, nil).Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/api/v1/sessions/not-a-uuid", s.token, nil).Code)

	s.Equal(http.StatusNoContent, s.do(http.MethodDelete, "/api/v1/sessions/"+id, s.token, nil).Code)
	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/api/v1/sessions/"+id, s.token, nil).Code)
}

func (s *HandlerSuite) TestSelectionValidation() {
	id := s.createSession()

	rec := s.do(http.MethodPut, "/api/v1/sessions/"+id+"/selection", s.token, map[string]string{"theme": "Mars Base"})
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPut, "/api/v1/sessions/"+id+"/selection", s.token,
		map[string]string{"theme": "Space Explorers", "genre": "Adventure", "mood": "Happy"})
	s.Require().Equal(http.StatusOK, rec.Code)
	var req models.GenerationRequest
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &req))
	s.Equal("Space Explorers", req.Theme)

	rec = s.do(http.MethodPost, "/api/v1/sessions/"+id+"/characters/toggle", s.token, map[string]string{"name": "no id"})
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestGenerateWithoutCharacters() {
	id := s.createSession()

	rec := s.do(http.MethodPost, "/api/v1/sessions/"+id+"/generate", s.token, nil)
	s.Equal(http.StatusUnprocessableEntity, rec.Code)
	s.Contains(rec.Body.String(), prompt.MissingCharactersMessage)
	s.text.AssertNotCalled(s.T(), "Generate", mock.Anything, mock.Anything)
}

func (s *HandlerSuite) TestGenerateFlow() {
	id := s.createSession()
	s.do(http.MethodPut, "/api/v1/sessions/"+id+"/selection", s.token,
		map[string]string{"theme": "Space Explorers", "genre": "Adventure", "mood": "Happy"})

	rec := s.do(http.MethodPost, "/api/v1/sessions/"+id+"/characters/toggle", s.token,
		models.Character{ID: "c1", Name: "Alex", Age: 8, Gender: "boy"})
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), `"selected":true`)

	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'}
	s.text.On("Generate", mock.Anything, mock.Anything).Return("Alex looked at the stars.", nil).Once()
	s.images.On("Generate", mock.Anything, mock.Anything).Return(jpeg, nil).Once()

	rec = s.do(http.MethodPost, "/api/v1/sessions/"+id+"/generate", s.token, nil)
	s.Require().Equal(http.StatusAccepted, rec.Code, rec.Body.String())

	s.Require().Eventually(func() bool {
		return s.getSession(id).State.Kind == models.StateChunkReady
	}, 2*time.Second, 10*time.Millisecond)

	resp := s.getSession(id)
	s.Require().Len(resp.Draft.Chunks, 1)
	s.Equal("Alex looked at the stars.", resp.Draft.Chunks[0].Text)

	rec = s.do(http.MethodGet, "/api/v1/sessions/"+id+"/chunks/0/image", s.token, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal("image/jpeg", rec.Header().Get("Content-Type"))
	s.Equal(jpeg, rec.Body.Bytes())
	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/api/v1/sessions/"+id+"/chunks/5/image", s.token, nil).Code)

	// Share до FINISH недопустим, в ответе текущее состояние
	rec = s.do(http.MethodPost, "/api/v1/sessions/"+id+"/share", s.token, nil)
	s.Equal(http.StatusConflict, rec.Code)
	var apiErr handler.APIError
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &apiErr))
	s.Equal(handler.ErrCodeInvalidTransition, apiErr.Code)
	s.Require().NotNil(apiErr.State)
	s.Equal(models.StateChunkReady, apiErr.State.Kind)

	rec = s.do(http.MethodPost, "/api/v1/sessions/"+id+"/reset", s.token, map[string]bool{"clear_selection": true})
	s.Require().Equal(http.StatusOK, rec.Code)
	resp = s.getSession(id)
	s.Equal(models.StateIdle, resp.State.Kind)
	s.Empty(resp.Draft.Chunks)
	s.Empty(resp.Selection.Characters)
}

func (s *HandlerSuite) TestFailedStateIsReported() {
	id := s.createSession()
	s.do(http.MethodPost, "/api/v1/sessions/"+id+"/characters/toggle", s.token, models.Character{ID: "c1", Name: "Alex"})

	s.text.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("model overloaded")).Once()
	s.Require().Equal(http.StatusAccepted, s.do(http.MethodPost, "/api/v1/sessions/"+id+"/generate", s.token, nil).Code)

	s.Require().Eventually(func() bool {
		return s.getSession(id).State.Kind == models.StateFailed
	}, 2*time.Second, 10*time.Millisecond)

	state := s.getSession(id).State
	s.Equal(models.StepText, state.FailedStep)
	s.Contains(state.Error, "model overloaded")
}

func (s *HandlerSuite) TestStories() {
	own := &models.PersistedStory{ID: uuid.New(), ParentID: "parent-1", ChildID: "child-1", Title: "Mine", Status: models.StatusPending}
	foreign := &models.PersistedStory{ID: uuid.New(), ParentID: "parent-9", ChildID: "child-9", Title: "Other"}

	s.stories.On("GetByID", mock.Anything, own.ID).Return(own, nil)
	s.stories.On("GetByID", mock.Anything, foreign.ID).Return(foreign, nil)
	s.stories.On("ListByChild", mock.Anything, "child-1", 5, 10).Return([]*models.PersistedStory{own}, nil).Once()

	rec := s.do(http.MethodGet, "/api/v1/stories/"+own.ID.String(), s.token, nil)
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), `"title":"Mine"`)

	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/api/v1/stories/"+foreign.ID.String(), s.token, nil).Code)
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/api/v1/stories/"+foreign.ID.String(), s.reviewer, nil).Code)

	rec = s.do(http.MethodGet, "/api/v1/stories?limit=5&offset=10", s.token, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var page handler.PaginatedStories
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &page))
	s.Len(page.Data, 1)
	s.Equal(5, page.Limit)

	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/api/v1/stories?limit=-1", s.token, nil).Code)
}

func (s *HandlerSuite) TestUpdateStoryStatus() {
	id := uuid.New()
	path := "/api/v1/stories/" + id.String() + "/status"

	s.Equal(http.StatusForbidden, s.do(http.MethodPatch, path, s.token, map[string]string{"status": "approved"}).Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodPatch, path, s.reviewer, map[string]string{"status": "published"}).Code)

	s.stories.On("UpdateStatus", mock.Anything, id, models.StatusApproved).Return(nil).Once()
	s.Equal(http.StatusNoContent, s.do(http.MethodPatch, path, s.reviewer, map[string]string{"status": "approved"}).Code)

	missing := uuid.New()
	s.stories.On("UpdateStatus", mock.Anything, missing, models.StatusRejected).Return(models.ErrNotFound).Once()
	rec := s.do(http.MethodPatch, "/api/v1/stories/"+missing.String()+"/status", s.reviewer, map[string]string{"status": "rejected"})
	s.Equal(http.StatusNotFound, rec.Code)
}
