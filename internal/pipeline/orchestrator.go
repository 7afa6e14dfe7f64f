// Package pipeline ведет одну сессию генерации истории: конечный автомат,
// последовательные вызовы текстовой и графической моделей и публикацию.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"storybook-server/internal/models"
	"storybook-server/internal/prompt"
	"storybook-server/internal/quota"
	"storybook-server/internal/selection"
	"storybook-server/internal/service"

	"go.uber.org/zap"
)

// Action - пользовательское событие, запускающее переход автомата.
type Action string

const (
	ActionGenerate Action = "generate"
	ActionNext     Action = "next"
	ActionFinish   Action = "finish"
	ActionTitle    Action = "title"
	ActionShare    Action = "share"
	ActionRetry    Action = "retry"
)

// ImageFailurePolicy определяет поведение при сбое генерации изображения.
type ImageFailurePolicy string

const (
	// PolicyRetry переводит автомат в Failed(image), текст фрагмента сохраняется для Retry.
	PolicyRetry ImageFailurePolicy = "retry"
	// PolicyPlaceholder принимает фрагмент с изображением-заглушкой.
	PolicyPlaceholder ImageFailurePolicy = "placeholder"
)

// Options - настройки поведения оркестратора.
type Options struct {
	ImageFailurePolicy          ImageFailurePolicy
	RequireSummaryBeforePersist bool
	SummaryTimeout              time.Duration
}

// Snapshot - согласованный срез состояния сессии для API.
type Snapshot struct {
	State     models.PipelineState     `json:"state"`
	Draft     models.StoryDraft        `json:"draft"`
	Selection models.GenerationRequest `json:"selection"`
	Story     *models.PersistedStory   `json:"story,omitempty"`
}

// pendingChunk - текст, для которого еще не получено изображение.
type pendingChunk struct {
	text    string
	phase   models.Phase
	isCover bool
}

type summaryTask struct {
	done   chan struct{}
	cancel context.CancelFunc
	err    error
}

type stepFunc func(ctx context.Context, epoch uint64) error

// Orchestrator - конечный автомат одной сессии генерации.
// Все изменения состояния и черновика выполняются под mu; сетевые вызовы - без блокировки.
type Orchestrator struct {
	sc        models.SessionContext
	selection *selection.Aggregator
	prompts   *prompt.Builder
	text      service.TextGenerator
	images    service.ImageGenerator
	assembler *Assembler
	quota     quota.Limiter
	opts      Options
	logger    *zap.Logger

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu         sync.Mutex
	state      models.PipelineState
	draft      *models.StoryDraft
	request    models.GenerationRequest
	pending    *pendingChunk
	epoch      uint64
	cancel     context.CancelFunc
	retryStep  stepFunc
	retryState models.PipelineState
	summary    *summaryTask
	persisted  *models.PersistedStory
}

// NewOrchestrator создает оркестратор в состоянии Idle.
func NewOrchestrator(
	sc models.SessionContext,
	aggregator *selection.Aggregator,
	prompts *prompt.Builder,
	text service.TextGenerator,
	images service.ImageGenerator,
	assembler *Assembler,
	limiter quota.Limiter,
	opts Options,
	logger *zap.Logger,
) *Orchestrator {
	if limiter == nil {
		limiter = quota.Unlimited{}
	}
	if opts.ImageFailurePolicy == "" {
		opts.ImageFailurePolicy = PolicyRetry
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Orchestrator{
		sc:        sc,
		selection: aggregator,
		prompts:   prompts,
		text:      text,
		images:    images,
		assembler: assembler,
		quota:     limiter,
		opts:      opts,
		logger:    logger.Named("Orchestrator").With(zap.String("child_id", sc.ChildID)),
		ctx:       ctx,
		stop:      stop,
		state:     models.PipelineState{Kind: models.StateIdle},
		draft:     models.NewStoryDraft(),
	}
}

// Selection возвращает агрегатор выбора сессии.
func (o *Orchestrator) Selection() *selection.Aggregator {
	return o.selection
}

// SessionContext возвращает владельца сессии.
func (o *Orchestrator) SessionContext() models.SessionContext {
	return o.sc
}

// Start проверяет допустимость перехода и синхронно переводит автомат в рабочее состояние.
// Возвращаемая функция выполняет сетевую часть перехода и может быть запущена в отдельной горутине.
func (o *Orchestrator) Start(ctx context.Context, action Action) (func() error, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state.Kind.IsBusy() {
		return nil, models.ErrBusy
	}

	var step stepFunc
	var next models.PipelineState
	finished := o.draft.Completion == models.CompletionFinished

	switch action {
	case ActionGenerate:
		if o.state.Kind != models.StateIdle {
			return nil, o.invalid(action)
		}
		req := o.selection.Snapshot()
		if !req.HasCharacters() {
			return nil, fmt.Errorf("%w: %s", models.ErrSelectionIncomplete,
				o.prompts.BuildTextPrompt(req, "", models.PhaseFirst))
		}
		o.request = req
		step = o.textStep(models.PhaseFirst)
		next = models.PipelineState{Kind: models.StateGeneratingText, Phase: models.PhaseFirst}
	case ActionNext, ActionFinish:
		if o.state.Kind != models.StateChunkReady || finished {
			return nil, o.invalid(action)
		}
		phase := models.PhaseNext
		if action == ActionFinish {
			phase = models.PhaseFinish
		}
		step = o.textStep(phase)
		next = models.PipelineState{Kind: models.StateGeneratingText, Phase: phase}
	case ActionTitle:
		if o.state.Kind != models.StateChunkReady || !finished {
			return nil, o.invalid(action)
		}
		step = o.titleStep
		next = models.PipelineState{Kind: models.StateGeneratingTitle, Phase: models.PhaseTitle}
	case ActionShare:
		if o.state.Kind != models.StateChunkReady || !finished {
			return nil, o.invalid(action)
		}
		step = o.shareStep
		next = o.shareEntryStateLocked()
	case ActionRetry:
		if o.state.Kind != models.StateFailed || o.retryStep == nil {
			return nil, o.invalid(action)
		}
		step = o.retryStep
		next = o.retryState
	default:
		return nil, o.invalid(action)
	}

	o.setStateLocked(next)
	epoch := o.epoch
	opCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	o.logger.Info("Transition started", zap.String("action", string(action)), zap.String("state", string(next.Kind)))

	return func() error {
		defer cancel()
		return step(opCtx, epoch)
	}, nil
}

// Generate запускает первую фазу и блокируется до ее завершения.
func (o *Orchestrator) Generate(ctx context.Context) error { return o.do(ctx, ActionGenerate) }

// Next генерирует следующий фрагмент.
func (o *Orchestrator) Next(ctx context.Context) error { return o.do(ctx, ActionNext) }

// Finish генерирует заключительный фрагмент.
func (o *Orchestrator) Finish(ctx context.Context) error { return o.do(ctx, ActionFinish) }

// GenerateTitle генерирует название законченной истории.
func (o *Orchestrator) GenerateTitle(ctx context.Context) error { return o.do(ctx, ActionTitle) }

// Share публикует законченную историю.
func (o *Orchestrator) Share(ctx context.Context) error { return o.do(ctx, ActionShare) }

// Retry повторяет шаг, завершившийся сбоем.
func (o *Orchestrator) Retry(ctx context.Context) error { return o.do(ctx, ActionRetry) }

func (o *Orchestrator) do(ctx context.Context, action Action) error {
	run, err := o.Start(ctx, action)
	if err != nil {
		return err
	}
	return run()
}

// Reset допустим в любом состоянии: отменяет текущую работу, отбрасывает черновик
// и увеличивает эпоху, чтобы поздние результаты были проигнорированы.
func (o *Orchestrator) Reset(clearSelection bool) {
	o.mu.Lock()
	o.epoch++
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	if o.summary != nil {
		o.summary.cancel()
		o.summary = nil
	}
	o.draft = models.NewStoryDraft()
	o.request = models.GenerationRequest{}
	o.pending = nil
	o.retryStep = nil
	o.persisted = nil
	o.setStateLocked(models.PipelineState{Kind: models.StateIdle})
	o.mu.Unlock()

	if clearSelection {
		o.selection.Clear()
	}
	o.logger.Info("Session reset", zap.Bool("selection_cleared", clearSelection))
}

// State возвращает текущее состояние автомата.
func (o *Orchestrator) State() models.PipelineState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Snapshot возвращает состояние, черновик без байтов изображений и текущий выбор.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Snapshot{
		State:     o.state,
		Draft:     o.draft.Snapshot(),
		Selection: o.selection.Snapshot(),
		Story:     o.persisted,
	}
}

// ChunkImage возвращает байты изображения фрагмента, пока история не опубликована.
func (o *Orchestrator) ChunkImage(index int) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if index < 0 || index >= o.draft.Len() || len(o.draft.Chunks[index].Image) == 0 {
		return nil, models.ErrNotFound
	}
	return o.draft.Chunks[index].Image, nil
}

// Close отменяет всю работу сессии и ждет фоновые горутины.
func (o *Orchestrator) Close() {
	o.Reset(false)
	o.stop()
	o.wg.Wait()
}

func (o *Orchestrator) invalid(action Action) error {
	return fmt.Errorf("%w: %s in state %s", models.ErrInvalidTransition, action, o.state.Kind)
}

func (o *Orchestrator) setStateLocked(s models.PipelineState) {
	o.state = s
	transitionsTotal.WithLabelValues(string(s.Kind)).Inc()
}

func (o *Orchestrator) staleLocked(epoch uint64) bool {
	return epoch != o.epoch
}

func (o *Orchestrator) shareEntryStateLocked() models.PipelineState {
	if o.draft.Title == "" {
		return models.PipelineState{Kind: models.StateGeneratingTitle, Phase: models.PhaseTitle}
	}
	return models.PipelineState{Kind: models.StatePersisting}
}

// fail переводит автомат в Failed и запоминает шаг для Retry.
// Результат устаревшей эпохи отбрасывается.
func (o *Orchestrator) fail(epoch uint64, step models.Step, err error, retry stepFunc, retryState models.PipelineState) error {
	perr := models.NewPipelineError(step, nil, err)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.staleLocked(epoch) {
		return context.Canceled
	}
	o.retryStep = retry
	o.retryState = retryState
	o.setStateLocked(models.PipelineState{
		Kind:       models.StateFailed,
		Phase:      retryState.Phase,
		FailedStep: step,
		Cause:      perr,
	})
	failuresTotal.WithLabelValues(string(step)).Inc()
	o.logger.Warn("Pipeline step failed", zap.String("step", string(step)), zap.Error(err))
	return perr
}

// textStep генерирует текст фрагмента и передает его на генерацию изображения.
func (o *Orchestrator) textStep(phase models.Phase) stepFunc {
	var self stepFunc
	self = func(ctx context.Context, epoch uint64) error {
		entry := models.PipelineState{Kind: models.StateGeneratingText, Phase: phase}

		if err := o.quota.Reserve(ctx, o.sc.ChildID); err != nil {
			return o.fail(epoch, models.StepText, err, self, entry)
		}

		o.mu.Lock()
		if o.staleLocked(epoch) {
			o.mu.Unlock()
			return context.Canceled
		}
		textPrompt := o.prompts.BuildTextPrompt(o.request, o.draft.Text, phase)
		isCover := o.draft.Len() == 0
		o.mu.Unlock()

		text, err := o.text.Generate(ctx, textPrompt)
		if err == nil && strings.TrimSpace(text) == "" {
			err = fmt.Errorf("%w: empty text", models.ErrGenerationFailure)
		}
		if err != nil {
			return o.fail(epoch, models.StepText, err, self, entry)
		}

		o.mu.Lock()
		if o.staleLocked(epoch) {
			o.mu.Unlock()
			return context.Canceled
		}
		o.pending = &pendingChunk{text: strings.TrimSpace(text), phase: phase, isCover: isCover}
		o.setStateLocked(models.PipelineState{Kind: models.StateGeneratingImage, Phase: phase})
		o.mu.Unlock()

		return o.imageStep(ctx, epoch)
	}
	return self
}

// imageStep генерирует изображение для ожидающего текста. Фрагмент добавляется в черновик только здесь.
func (o *Orchestrator) imageStep(ctx context.Context, epoch uint64) error {
	o.mu.Lock()
	if o.staleLocked(epoch) || o.pending == nil {
		o.mu.Unlock()
		return context.Canceled
	}
	p := *o.pending
	imagePrompt := o.prompts.BuildImagePrompt(o.request, p.text, p.isCover)
	o.mu.Unlock()

	entry := models.PipelineState{Kind: models.StateGeneratingImage, Phase: p.phase}
	chunk := models.StoryChunk{Text: p.text, IsCover: p.isCover, Phase: p.phase}
	var warning string

	image, err := o.images.Generate(ctx, imagePrompt)
	if err == nil && len(image) == 0 {
		err = fmt.Errorf("%w: empty image", models.ErrGenerationFailure)
	}
	if err != nil {
		if o.opts.ImageFailurePolicy != PolicyPlaceholder || ctx.Err() != nil {
			return o.fail(epoch, models.StepImage, err, o.imageStep, entry)
		}
		placeholderChunksTotal.Inc()
		o.logger.Warn("Image generation failed, using placeholder", zap.String("phase", string(p.phase)), zap.Error(err))
		chunk.Placeholder = true
		warning = "image generation failed, placeholder used: " + err.Error()
	} else {
		chunk.Image = image
	}

	o.mu.Lock()
	if o.staleLocked(epoch) {
		o.mu.Unlock()
		return context.Canceled
	}
	if err := o.assembler.AppendChunk(o.draft, chunk); err != nil {
		o.mu.Unlock()
		return o.fail(epoch, models.StepText, err, o.textStep(p.phase),
			models.PipelineState{Kind: models.StateGeneratingText, Phase: p.phase})
	}
	o.pending = nil
	if p.phase == models.PhaseFinish {
		o.draft.Completion = models.CompletionFinished
		o.startSummaryLocked(epoch)
	}
	o.setStateLocked(models.PipelineState{Kind: models.StateChunkReady, Phase: p.phase, Warning: warning})
	chunks := o.draft.Len()
	o.mu.Unlock()

	o.logger.Info("Chunk accepted", zap.Int("chunks", chunks), zap.String("phase", string(p.phase)))
	return nil
}

// titleStep генерирует название и возвращает автомат в ChunkReady.
func (o *Orchestrator) titleStep(ctx context.Context, epoch uint64) error {
	entry := models.PipelineState{Kind: models.StateGeneratingTitle, Phase: models.PhaseTitle}
	title, err := o.generateTitle(ctx, epoch)
	if err != nil {
		return o.fail(epoch, models.StepTitle, err, o.titleStep, entry)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.staleLocked(epoch) {
		return context.Canceled
	}
	o.draft.Title = title
	o.setStateLocked(models.PipelineState{Kind: models.StateChunkReady, Phase: models.PhaseTitle})
	return nil
}

func (o *Orchestrator) generateTitle(ctx context.Context, epoch uint64) (string, error) {
	if err := o.quota.Reserve(ctx, o.sc.ChildID); err != nil {
		return "", err
	}

	o.mu.Lock()
	if o.staleLocked(epoch) {
		o.mu.Unlock()
		return "", context.Canceled
	}
	titlePrompt := o.prompts.BuildTextPrompt(o.request, o.draft.Text, models.PhaseTitle)
	o.mu.Unlock()

	raw, err := o.text.Generate(ctx, titlePrompt)
	if err != nil {
		return "", err
	}
	title := CleanTitle(raw)
	if title == "" {
		return "", fmt.Errorf("%w: empty title", models.ErrGenerationFailure)
	}
	return title, nil
}

// shareStep дожидается названия и пересказа, затем загружает изображения и сохраняет историю.
func (o *Orchestrator) shareStep(ctx context.Context, epoch uint64) error {
	o.mu.Lock()
	if o.staleLocked(epoch) {
		o.mu.Unlock()
		return context.Canceled
	}
	needTitle := o.draft.Title == ""
	o.mu.Unlock()

	if needTitle {
		title, err := o.generateTitle(ctx, epoch)
		if err != nil {
			return o.fail(epoch, models.StepTitle, err, o.shareStep,
				models.PipelineState{Kind: models.StateGeneratingTitle, Phase: models.PhaseTitle})
		}
		o.mu.Lock()
		if o.staleLocked(epoch) {
			o.mu.Unlock()
			return context.Canceled
		}
		o.draft.Title = title
		o.setStateLocked(models.PipelineState{Kind: models.StatePersisting})
		o.mu.Unlock()
	}

	persisting := models.PipelineState{Kind: models.StatePersisting}
	if o.opts.RequireSummaryBeforePersist {
		if err := o.awaitSummary(ctx, epoch); err != nil {
			return o.fail(epoch, models.StepSummary, err, o.shareStep, persisting)
		}
	}

	o.mu.Lock()
	if o.staleLocked(epoch) {
		o.mu.Unlock()
		return context.Canceled
	}
	draft := o.draft.Clone()
	meta := models.StoryMeta{
		Title:   draft.Title,
		Genre:   o.request.Genre,
		Theme:   o.request.Theme,
		Mood:    o.request.Mood,
		Summary: draft.Summary,
	}
	o.mu.Unlock()

	story, err := o.assembler.UploadAndFinalize(ctx, draft, o.sc, meta)

	o.mu.Lock()
	if o.staleLocked(epoch) {
		o.mu.Unlock()
		return context.Canceled
	}
	o.cacheUploadsLocked(story)
	o.mu.Unlock()

	if err != nil {
		return o.fail(epoch, models.StepPersist, err, o.shareStep, persisting)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.staleLocked(epoch) {
		return context.Canceled
	}
	o.persisted = story
	o.setStateLocked(models.PipelineState{Kind: models.StateDone})
	o.logger.Info("Story shared", zap.String("story_id", story.ID.String()))
	return nil
}

// cacheUploadsLocked запоминает URL успешно загруженных изображений, чтобы повторный Share их не загружал.
func (o *Orchestrator) cacheUploadsLocked(story *models.PersistedStory) {
	if story == nil {
		return
	}
	for i := range o.draft.Chunks {
		if i >= len(story.Pages) {
			break
		}
		c := &o.draft.Chunks[i]
		url := story.Pages[i].ImageURL
		if c.Placeholder || c.ImageURL != "" || url == "" || url == models.UploadErrorURL {
			continue
		}
		c.ImageURL = url
	}
}

// startSummaryLocked запускает генерацию пересказа после принятия заключительного фрагмента.
func (o *Orchestrator) startSummaryLocked(epoch uint64) {
	if o.summary != nil {
		o.summary.cancel()
	}
	ctx := o.ctx
	var cancel context.CancelFunc
	if o.opts.SummaryTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, o.opts.SummaryTimeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	task := &summaryTask{done: make(chan struct{}), cancel: cancel}
	o.summary = task
	summaryPrompt := o.prompts.BuildSummaryPrompt(o.draft.Text)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		defer close(task.done)

		text, err := o.text.Generate(ctx, summaryPrompt)
		text = strings.TrimSpace(text)
		if err == nil && text == "" {
			err = fmt.Errorf("%w: empty summary", models.ErrGenerationFailure)
		}

		o.mu.Lock()
		defer o.mu.Unlock()
		task.err = err
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				o.logger.Warn("Summary generation failed", zap.Error(err))
			}
			return
		}
		if !o.staleLocked(epoch) {
			o.draft.Summary = text
		}
	}()
}

// awaitSummary дожидается фоновой генерации пересказа; если ее нет или она не удалась,
// пересказ генерируется синхронно.
func (o *Orchestrator) awaitSummary(ctx context.Context, epoch uint64) error {
	o.mu.Lock()
	task := o.summary
	have := o.draft.Summary != ""
	o.mu.Unlock()
	if have {
		return nil
	}

	if task != nil {
		select {
		case <-task.done:
		case <-ctx.Done():
			return ctx.Err()
		}
		o.mu.Lock()
		have = o.draft.Summary != ""
		o.mu.Unlock()
		if have {
			return nil
		}
	}

	o.mu.Lock()
	if o.staleLocked(epoch) {
		o.mu.Unlock()
		return context.Canceled
	}
	summaryPrompt := o.prompts.BuildSummaryPrompt(o.draft.Text)
	o.mu.Unlock()

	callCtx := ctx
	if o.opts.SummaryTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.opts.SummaryTimeout)
		defer cancel()
	}
	text, err := o.text.Generate(callCtx, summaryPrompt)
	if err != nil {
		return err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("%w: empty summary", models.ErrGenerationFailure)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.staleLocked(epoch) {
		return context.Canceled
	}
	o.draft.Summary = text
	return nil
}
