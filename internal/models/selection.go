package models

// Character - ранее созданный пользователем персонаж.
type Character struct {
	ID      string `json:"id" binding:"required"`
	Name    string `json:"name" binding:"required"`
	Age     int    `json:"age"`
	Gender  string `json:"gender"`
	Emotion string `json:"emotion"`
}

// Pet - питомец, которого можно взять в историю.
type Pet struct {
	ID   string `json:"id" binding:"required"`
	Name string `json:"name" binding:"required"`
	Kind string `json:"kind"`
}

// GenerationRequest - неизменяемый снимок выбора пользователя.
// Порядок персонажей и питомцев - порядок их добавления.
type GenerationRequest struct {
	Theme      string      `json:"theme"`
	Genre      string      `json:"genre"`
	Mood       string      `json:"mood"`
	Characters []Character `json:"characters"`
	Pets       []Pet       `json:"pets"`
}

// HasCharacters сообщает, можно ли запускать генерацию по этому запросу.
func (r GenerationRequest) HasCharacters() bool {
	return len(r.Characters) > 0
}

// Clone возвращает глубокую копию запроса.
func (r GenerationRequest) Clone() GenerationRequest {
	out := r
	out.Characters = append([]Character(nil), r.Characters...)
	out.Pets = append([]Pet(nil), r.Pets...)
	return out
}

// SessionContext - идентификаторы родителя и ребенка из токена авторизации.
type SessionContext struct {
	ParentID string `json:"parent_id"`
	ChildID  string `json:"child_id"`
}
