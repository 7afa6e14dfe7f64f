package models

import (
	"errors"
	"fmt"
)

// Ошибки пайплайна генерации и хранилища историй.
var (
	// Выбор персонажей не завершен (нет ни одного персонажа).
	ErrSelectionIncomplete = errors.New("selection incomplete: at least one character is required")
	// Текстовая или графическая модель вернула ошибку либо пустой ответ.
	ErrGenerationFailure = errors.New("generation failure")
	// Не удалось загрузить изображение в объектное хранилище.
	ErrUploadFailure = errors.New("upload failure")
	// Не удалось записать историю в хранилище документов.
	ErrPersistenceFailure = errors.New("persistence failure")

	ErrInvalidTransition   = errors.New("transition is not allowed in the current state")
	ErrBusy                = errors.New("another operation is already running for this session")
	ErrEmptyChunk          = errors.New("story chunk text is empty")
	ErrUnknownCatalogValue = errors.New("value is not in the catalog")
	ErrQuotaExceeded       = errors.New("generation quota exceeded")

	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")
)

// PipelineError связывает ошибку с фазой пайплайна, на которой она произошла.
// errors.Is работает как по Kind, так и по исходной причине.
type PipelineError struct {
	Step Step
	Kind error
	Err  error
}

func (e *PipelineError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Step, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Step, e.Kind, e.Err)
}

func (e *PipelineError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewPipelineError создает ошибку шага. Если kind не указан, он выводится из err.
func NewPipelineError(step Step, kind, err error) *PipelineError {
	if kind == nil {
		kind = classify(err)
	}
	return &PipelineError{Step: step, Kind: kind, Err: err}
}

func classify(err error) error {
	for _, kind := range []error{ErrSelectionIncomplete, ErrGenerationFailure, ErrUploadFailure, ErrPersistenceFailure, ErrQuotaExceeded} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return ErrGenerationFailure
}
