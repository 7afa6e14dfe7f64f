// Package selection собирает выбор пользователя в неизменяемый GenerationRequest.
package selection

import (
	"fmt"
	"sync"

	"storybook-server/internal/catalog"
	"storybook-server/internal/models"
)

// Aggregator накапливает события выбора. Потокобезопасен.
type Aggregator struct {
	mu         sync.RWMutex
	catalog    catalog.Catalog
	theme      string
	genre      string
	mood       string
	characters []models.Character
	pets       []models.Pet
}

// NewAggregator создает пустой агрегатор, проверяющий значения по каталогу.
func NewAggregator(c catalog.Catalog) *Aggregator {
	return &Aggregator{catalog: c}
}

func (a *Aggregator) SetTheme(theme string) error {
	if !a.catalog.HasTheme(theme) {
		return fmt.Errorf("theme %q: %w", theme, models.ErrUnknownCatalogValue)
	}
	a.mu.Lock()
	a.theme = theme
	a.mu.Unlock()
	return nil
}

func (a *Aggregator) SetGenre(genre string) error {
	if !a.catalog.HasGenre(genre) {
		return fmt.Errorf("genre %q: %w", genre, models.ErrUnknownCatalogValue)
	}
	a.mu.Lock()
	a.genre = genre
	a.mu.Unlock()
	return nil
}

func (a *Aggregator) SetMood(mood string) error {
	if !a.catalog.HasMood(mood) {
		return fmt.Errorf("mood %q: %w", mood, models.ErrUnknownCatalogValue)
	}
	a.mu.Lock()
	a.mood = mood
	a.mu.Unlock()
	return nil
}

// ToggleCharacter добавляет персонажа в конец списка или убирает его, если он уже выбран.
// Возвращает true, если персонаж теперь выбран.
func (a *Aggregator) ToggleCharacter(c models.Character) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, existing := range a.characters {
		if existing.ID == c.ID {
			a.characters = append(a.characters[:i:i], a.characters[i+1:]...)
			return false
		}
	}
	a.characters = append(a.characters, c)
	return true
}

// TogglePet работает так же, как ToggleCharacter.
func (a *Aggregator) TogglePet(p models.Pet) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, existing := range a.pets {
		if existing.ID == p.ID {
			a.pets = append(a.pets[:i:i], a.pets[i+1:]...)
			return false
		}
	}
	a.pets = append(a.pets, p)
	return true
}

// Complete сообщает, выбран ли хотя бы один персонаж.
func (a *Aggregator) Complete() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.characters) > 0
}

// Snapshot возвращает независимую копию текущего выбора.
func (a *Aggregator) Snapshot() models.GenerationRequest {
	a.mu.RLock()
	defer a.mu.RUnlock()
	req := models.GenerationRequest{
		Theme:      a.theme,
		Genre:      a.genre,
		Mood:       a.mood,
		Characters: a.characters,
		Pets:       a.pets,
	}
	return req.Clone()
}

// Clear сбрасывает весь выбор.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.theme, a.genre, a.mood = "", "", ""
	a.characters = nil
	a.pets = nil
}
