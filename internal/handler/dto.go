package handler

import (
	"time"

	"storybook-server/internal/models"
	"storybook-server/internal/pipeline"
	"storybook-server/internal/session"
)

// APIError - тело ответа об ошибке.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// State возвращается, когда ошибка связана с состоянием автомата.
	State *StateDTO `json:"state,omitempty"`
}

// StateDTO - состояние автомата для клиента.
type StateDTO struct {
	Kind       models.StateKind `json:"kind"`
	Phase      models.Phase     `json:"phase,omitempty"`
	FailedStep models.Step      `json:"failed_step,omitempty"`
	Error      string           `json:"error,omitempty"`
	Warning    string           `json:"warning,omitempty"`
}

// SessionResponse - срез сессии для опроса клиентом.
type SessionResponse struct {
	ID        string                   `json:"id"`
	CreatedAt time.Time                `json:"created_at"`
	State     StateDTO                 `json:"state"`
	Draft     models.StoryDraft        `json:"draft"`
	Selection models.GenerationRequest `json:"selection"`
	Story     *models.PersistedStory   `json:"story,omitempty"`
}

type selectionRequest struct {
	Theme string `json:"theme"`
	Genre string `json:"genre"`
	Mood  string `json:"mood"`
}

type toggleResponse struct {
	Selected  bool                     `json:"selected"`
	Selection models.GenerationRequest `json:"selection"`
}

type resetRequest struct {
	ClearSelection bool `json:"clear_selection"`
}

type updateStatusRequest struct {
	Status models.StoryStatus `json:"status" binding:"required"`
}

// PaginatedStories - страница историй ребенка.
type PaginatedStories struct {
	Data   []*models.PersistedStory `json:"data"`
	Limit  int                      `json:"limit"`
	Offset int                      `json:"offset"`
}

func toStateDTO(s models.PipelineState) StateDTO {
	return StateDTO{
		Kind:       s.Kind,
		Phase:      s.Phase,
		FailedStep: s.FailedStep,
		Error:      s.CauseMessage(),
		Warning:    s.Warning,
	}
}

func toSessionResponse(s *session.Session, snap pipeline.Snapshot) SessionResponse {
	return SessionResponse{
		ID:        s.ID.String(),
		CreatedAt: s.CreatedAt,
		State:     toStateDTO(snap.State),
		Draft:     snap.Draft,
		Selection: snap.Selection,
		Story:     snap.Story,
	}
}
