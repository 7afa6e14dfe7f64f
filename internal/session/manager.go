// Package session хранит сессии генерации и выполняет переходы их автоматов в фоне.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"storybook-server/internal/models"
	"storybook-server/internal/pipeline"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// ErrTooManySessions - достигнут лимит одновременных сессий.
var ErrTooManySessions = errors.New("превышено максимальное количество активных сессий")

var (
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storybook_sessions_active",
		Help: "Number of live generation sessions.",
	})
	transitionRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storybook_session_transitions_total",
		Help: "Background transitions by action and outcome.",
	}, []string{"action", "outcome"})
)

// Factory создает оркестратор для нового владельца.
type Factory func(sc models.SessionContext) *pipeline.Orchestrator

// Config - лимиты менеджера сессий.
type Config struct {
	MaxSessions     int
	TTL             time.Duration
	CleanupInterval time.Duration
}

// Session - одна сессия генерации, принадлежащая паре родитель/ребенок.
type Session struct {
	ID           uuid.UUID
	Owner        models.SessionContext
	Orchestrator *pipeline.Orchestrator
	CreatedAt    time.Time

	lastActive atomic.Int64
}

// LastActive - время последнего обращения к сессии.
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

func (s *Session) touch(now time.Time) {
	s.lastActive.Store(now.UnixNano())
}

// Manager управляет сессиями и фоновыми переходами.
type Manager struct {
	factory Factory
	cfg     Config
	logger  *zap.Logger
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager создает менеджер. Очистка устаревших сессий запускается через StartCleanup.
func NewManager(factory Factory, cfg Config, logger *zap.Logger) *Manager {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 1000
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		factory:  factory,
		cfg:      cfg,
		logger:   logger.Named("SessionManager"),
		now:      time.Now,
		sessions: make(map[uuid.UUID]*Session),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Create открывает новую сессию для владельца.
func (m *Manager) Create(sc models.SessionContext) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx.Err() != nil {
		return nil, fmt.Errorf("менеджер сессий остановлен: %w", m.ctx.Err())
	}
	if len(m.sessions) >= m.cfg.MaxSessions {
		return nil, ErrTooManySessions
	}

	now := m.now()
	s := &Session{
		ID:           uuid.New(),
		Owner:        sc,
		Orchestrator: m.factory(sc),
		CreatedAt:    now,
	}
	s.touch(now)
	m.sessions[s.ID] = s
	activeSessions.Inc()

	m.logger.Info("Session created",
		zap.String("session_id", s.ID.String()),
		zap.String("parent_id", sc.ParentID),
		zap.String("child_id", sc.ChildID))
	return s, nil
}

// Get возвращает сессию, если она принадлежит владельцу.
func (m *Manager) Get(id uuid.UUID, sc models.SessionContext) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("сессия %s: %w", id, models.ErrNotFound)
	}
	if s.Owner != sc {
		return nil, fmt.Errorf("сессия %s: %w", id, models.ErrForbidden)
	}
	s.touch(m.now())
	return s, nil
}

// Delete закрывает сессию и отменяет ее работу.
func (m *Manager) Delete(id uuid.UUID, sc models.SessionContext) error {
	if _, err := m.Get(id, sc); err != nil {
		return err
	}
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		activeSessions.Dec()
	}
	m.mu.Unlock()
	if ok {
		s.Orchestrator.Close()
		m.logger.Info("Session deleted", zap.String("session_id", id.String()))
	}
	return nil
}

// Dispatch синхронно проверяет переход и выполняет его сетевую часть в отдельной горутине.
// Ошибки перехода (ErrBusy, ErrInvalidTransition, ErrSelectionIncomplete) возвращаются сразу;
// результат выполнения виден через состояние автомата.
func (m *Manager) Dispatch(id uuid.UUID, sc models.SessionContext, action pipeline.Action) error {
	s, err := m.Get(id, sc)
	if err != nil {
		return err
	}

	run, err := s.Orchestrator.Start(m.ctx, action)
	if err != nil {
		return err
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		logFields := []zap.Field{
			zap.String("session_id", id.String()),
			zap.String("action", string(action)),
		}
		if err := run(); err != nil {
			if errors.Is(err, context.Canceled) {
				transitionRunsTotal.WithLabelValues(string(action), "canceled").Inc()
				m.logger.Info("Transition canceled", logFields...)
				return
			}
			transitionRunsTotal.WithLabelValues(string(action), "failed").Inc()
			m.logger.Warn("Transition failed", append(logFields, zap.Error(err))...)
			return
		}
		transitionRunsTotal.WithLabelValues(string(action), "ok").Inc()
		m.logger.Info("Transition completed", logFields...)
	}()
	return nil
}

// Reset сбрасывает автомат сессии в Idle.
func (m *Manager) Reset(id uuid.UUID, sc models.SessionContext, clearSelection bool) error {
	s, err := m.Get(id, sc)
	if err != nil {
		return err
	}
	s.Orchestrator.Reset(clearSelection)
	return nil
}

// Count - число открытых сессий.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CleanupExpired закрывает сессии, к которым не обращались дольше TTL.
// Сессии с выполняющимся переходом не трогаются.
func (m *Manager) CleanupExpired() int {
	if m.cfg.TTL <= 0 {
		return 0
	}
	now := m.now()

	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if now.Sub(s.LastActive()) <= m.cfg.TTL || s.Orchestrator.State().Kind.IsBusy() {
			continue
		}
		delete(m.sessions, id)
		activeSessions.Dec()
		expired = append(expired, s)
	}
	m.mu.Unlock()

	for _, s := range expired {
		s.Orchestrator.Close()
	}
	if len(expired) > 0 {
		m.logger.Info("Expired sessions removed", zap.Int("count", len(expired)))
	}
	return len(expired)
}

// StartCleanup периодически удаляет устаревшие сессии до остановки менеджера.
func (m *Manager) StartCleanup() {
	interval := m.cfg.CleanupInterval
	if interval <= 0 || m.cfg.TTL <= 0 {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.CleanupExpired()
			case <-m.ctx.Done():
				return
			}
		}
	}()
}

// Shutdown отменяет всю работу, закрывает сессии и ждет фоновые горутины не дольше ctx.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.cancel()

	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		sessions = append(sessions, s)
		delete(m.sessions, id)
		activeSessions.Dec()
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.Orchestrator.Close()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("Session manager stopped", zap.Int("closed_sessions", len(sessions)))
		return nil
	case <-ctx.Done():
		return errors.New("таймаут при ожидании завершения сессий")
	}
}
