package models

// Phase - активный шаблон текстового промта.
type Phase string

const (
	PhaseFirst  Phase = "FIRST"
	PhaseNext   Phase = "NEXT"
	PhaseFinish Phase = "FINISH"
	PhaseTitle  Phase = "TITLE"
)

// Step - шаг пайплайна, на котором может произойти сбой.
type Step string

const (
	StepText    Step = "text"
	StepImage   Step = "image"
	StepTitle   Step = "title"
	StepSummary Step = "summary"
	StepPersist Step = "persist"
)

// StateKind - состояние конечного автомата генерации.
type StateKind string

const (
	StateIdle            StateKind = "idle"
	StateGeneratingText  StateKind = "generating_text"
	StateGeneratingImage StateKind = "generating_image"
	StateChunkReady      StateKind = "chunk_ready"
	StateGeneratingTitle StateKind = "generating_title"
	StatePersisting      StateKind = "persisting"
	StateDone            StateKind = "done"
	StateFailed          StateKind = "failed"
)

// IsBusy - состояние, в котором выполняется сетевой вызов.
func (k StateKind) IsBusy() bool {
	switch k {
	case StateGeneratingText, StateGeneratingImage, StateGeneratingTitle, StatePersisting:
		return true
	}
	return false
}

// PipelineState - текущее состояние автомата. Cause заполнен только для StateFailed.
type PipelineState struct {
	Kind       StateKind `json:"kind"`
	Phase      Phase     `json:"phase,omitempty"`
	FailedStep Step      `json:"failed_step,omitempty"`
	Cause      error     `json:"-"`
	// Warning - некритичный сбой, например изображение заменено заглушкой.
	Warning string `json:"warning,omitempty"`
}

// CauseMessage возвращает текст причины сбоя для ответа API.
func (s PipelineState) CauseMessage() string {
	if s.Cause == nil {
		return ""
	}
	return s.Cause.Error()
}

// Completion - степень завершенности черновика.
type Completion string

const (
	CompletionNotStarted Completion = "not_started"
	CompletionInProgress Completion = "in_progress"
	CompletionFinished   Completion = "finished"
)

// StoryChunk - абзац текста и иллюстрация к нему.
type StoryChunk struct {
	Text        string `json:"text"`
	Image       []byte `json:"-"`
	ImageURL    string `json:"image_url,omitempty"`
	Placeholder bool   `json:"placeholder,omitempty"`
	IsCover     bool   `json:"is_cover,omitempty"`
	Phase       Phase  `json:"phase"`
}

// HasImage сообщает, есть ли у фрагмента изображение (байты или URL).
func (c StoryChunk) HasImage() bool {
	return len(c.Image) > 0 || c.ImageURL != ""
}

// StoryDraft - накапливаемая в памяти история одной сессии генерации.
type StoryDraft struct {
	Chunks     []StoryChunk `json:"chunks"`
	Text       string       `json:"-"`
	Completion Completion   `json:"completion"`
	Title      string       `json:"title,omitempty"`
	Summary    string       `json:"summary,omitempty"`
}

// NewStoryDraft возвращает пустой черновик.
func NewStoryDraft() *StoryDraft {
	return &StoryDraft{Completion: CompletionNotStarted}
}

// Len - количество принятых фрагментов.
func (d *StoryDraft) Len() int {
	return len(d.Chunks)
}

// Snapshot возвращает копию черновика без байтов изображений.
func (d *StoryDraft) Snapshot() StoryDraft {
	out := *d
	out.Chunks = make([]StoryChunk, len(d.Chunks))
	for i, c := range d.Chunks {
		c.Image = nil
		out.Chunks[i] = c
	}
	return out
}

// Clone возвращает копию черновика с независимым срезом фрагментов.
// Байты изображений не копируются: после генерации они не изменяются.
func (d *StoryDraft) Clone() StoryDraft {
	out := *d
	out.Chunks = append([]StoryChunk(nil), d.Chunks...)
	return out
}
