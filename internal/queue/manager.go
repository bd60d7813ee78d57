package queue

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/AbduElrahman2001/BALHA/internal/models"
	"github.com/AbduElrahman2001/BALHA/internal/store"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Tracker is the caller-side "my turn" pointer. The manager refreshes it after
// every write that may have renumbered the tracked turn.
type Tracker interface {
	TrackedTurnID() (int64, bool)
	Refresh(ctx context.Context, turn models.Turn) error
}

// Recorder receives queue activity for metrics.
type Recorder interface {
	RecordRegistered(serviceType string)
	RecordCompleted()
	RecordCancelled()
	SetWaiting(count int)
}

type Options struct {
	// RenumberOnCancel compacts the waiting set as soon as a turn is
	// cancelled. When false the gap stays until the next completion.
	RenumberOnCancel bool
	Clock            func() time.Time
	Logger           *logrus.Logger
	Recorder         Recorder
}

type RegisterInput struct {
	CustomerName string
	MobileNumber string
	ServiceType  string
}

type Stats struct {
	Total     int `json:"total"`
	Waiting   int `json:"waiting"`
	Completed int `json:"completed"`
	Cancelled int `json:"cancelled"`
}

// Manager owns the turn collection of one device. All operations are
// serialized and write through to the store before returning.
type Manager struct {
	mu    sync.Mutex
	store store.TurnStore

	turns           []models.Turn
	byID            map[int64]int
	waitingByMobile map[string]int64
	lastID          int64

	renumberOnCancel bool
	clock            func() time.Time
	logger           *logrus.Logger
	recorder         Recorder
	trackers         []Tracker
}

func Open(ctx context.Context, st store.TurnStore, options Options) (*Manager, error) {
	turns, err := st.LoadTurns(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load turns")
	}
	clock := options.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	logger := options.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	recorder := options.Recorder
	if recorder == nil {
		recorder = noopRecorder{}
	}

	m := &Manager{
		store:            st,
		turns:            turns,
		renumberOnCancel: options.RenumberOnCancel,
		clock:            clock,
		logger:           logger,
		recorder:         recorder,
	}
	m.reindex()
	m.recorder.SetWaiting(len(m.waitingByMobile))
	return m, nil
}

func (m *Manager) AddTracker(tracker Tracker) {
	m.mu.Lock()
	m.trackers = append(m.trackers, tracker)
	m.mu.Unlock()
}

func (m *Manager) RemoveTracker(tracker Tracker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range m.trackers {
		if t == tracker {
			m.trackers = append(m.trackers[:i], m.trackers[i+1:]...)
			return
		}
	}
}

func (m *Manager) Register(ctx context.Context, input RegisterInput) (models.Turn, error) {
	input.CustomerName = strings.TrimSpace(input.CustomerName)
	input.MobileNumber = strings.TrimSpace(input.MobileNumber)
	input.ServiceType = strings.TrimSpace(input.ServiceType)
	if input.CustomerName == "" || input.MobileNumber == "" || input.ServiceType == "" {
		return models.Turn{}, ErrInvalidInput
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.waitingByMobile[input.MobileNumber]; ok {
		return models.Turn{}, ErrDuplicateActiveTurn
	}

	now := m.clock()
	turn := models.Turn{
		ID:           m.nextID(now),
		CustomerName: input.CustomerName,
		MobileNumber: input.MobileNumber,
		ServiceType:  input.ServiceType,
		Status:       models.StatusWaiting,
		TurnNumber:   m.nextTurnNumber(),
		CreatedAt:    now,
	}

	previous := m.snapshot()
	m.turns = append(m.turns, turn)
	m.reindex()
	if err := m.persist(ctx, previous); err != nil {
		return models.Turn{}, err
	}

	m.recorder.RecordRegistered(turn.ServiceType)
	m.recorder.SetWaiting(len(m.waitingByMobile))
	m.logger.WithFields(logrus.Fields{
		"turn_id":     turn.ID,
		"turn_number": turn.TurnNumber,
		"service":     turn.ServiceType,
	}).Info("turn registered")
	return turn, nil
}

func (m *Manager) Complete(ctx context.Context, id int64) (models.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.byID[id]
	if !ok {
		return models.Turn{}, ErrNotFound
	}
	current := m.turns[idx]
	if current.Status == models.StatusCompleted {
		return current, nil
	}
	if !ValidTransition("complete", current.Status) {
		return models.Turn{}, ErrInvalidState
	}

	previous := m.snapshot()
	now := m.clock()
	m.turns[idx].Status = models.StatusCompleted
	m.turns[idx].CompletedAt = &now
	m.renumber()
	m.reindex()
	if err := m.persist(ctx, previous); err != nil {
		return models.Turn{}, err
	}

	m.recorder.RecordCompleted()
	m.recorder.SetWaiting(len(m.waitingByMobile))
	m.logger.WithFields(logrus.Fields{
		"turn_id":     id,
		"turn_number": current.TurnNumber,
	}).Info("turn completed")
	m.refreshTrackers(ctx)
	return m.turns[idx], nil
}

func (m *Manager) Cancel(ctx context.Context, id int64) (models.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.byID[id]
	if !ok {
		return models.Turn{}, ErrNotFound
	}
	if !ValidTransition("cancel", m.turns[idx].Status) {
		return models.Turn{}, ErrInvalidState
	}

	previous := m.snapshot()
	now := m.clock()
	m.turns[idx].Status = models.StatusCancelled
	m.turns[idx].CancelledAt = &now
	if m.renumberOnCancel {
		m.renumber()
	}
	m.reindex()
	if err := m.persist(ctx, previous); err != nil {
		return models.Turn{}, err
	}

	m.recorder.RecordCancelled()
	m.recorder.SetWaiting(len(m.waitingByMobile))
	m.logger.WithField("turn_id", id).Info("turn cancelled")
	m.refreshTrackers(ctx)
	return m.turns[idx], nil
}

// Renumber compacts the waiting set to 1..N in creation order and persists it.
func (m *Manager) Renumber(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	previous := m.snapshot()
	m.renumber()
	if err := m.persist(ctx, previous); err != nil {
		return err
	}
	m.refreshTrackers(ctx)
	return nil
}

func (m *Manager) Status(id int64) (models.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.byID[id]
	if !ok {
		return models.Turn{}, ErrNotFound
	}
	return m.turns[idx], nil
}

func (m *Manager) FindActiveByMobile(mobile string) (models.Turn, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.waitingByMobile[strings.TrimSpace(mobile)]
	if !ok {
		return models.Turn{}, false
	}
	return m.turns[m.byID[id]], true
}

// ListWaiting returns waiting turns ordered by turn number.
func (m *Manager) ListWaiting() []models.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()

	waiting := make([]models.Turn, 0, len(m.waitingByMobile))
	for _, turn := range m.turns {
		if turn.IsWaiting() {
			waiting = append(waiting, turn)
		}
	}
	sort.SliceStable(waiting, func(i, j int) bool {
		return waiting[i].TurnNumber < waiting[j].TurnNumber
	})
	return waiting
}

// History returns every turn ever registered, in creation order.
func (m *Manager) History() []models.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot()
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := Stats{Total: len(m.turns)}
	for _, turn := range m.turns {
		switch turn.Status {
		case models.StatusWaiting:
			stats.Waiting++
		case models.StatusCompleted:
			stats.Completed++
		case models.StatusCancelled:
			stats.Cancelled++
		}
	}
	return stats
}

// renumber assigns 1..N to waiting turns by created_at. The collection is kept
// in creation order, so the stable sort keeps FIFO order on equal timestamps.
func (m *Manager) renumber() {
	var waiting []int
	for idx := range m.turns {
		if m.turns[idx].IsWaiting() {
			waiting = append(waiting, idx)
		}
	}
	sort.SliceStable(waiting, func(i, j int) bool {
		return m.turns[waiting[i]].CreatedAt.Before(m.turns[waiting[j]].CreatedAt)
	})
	for pos, idx := range waiting {
		m.turns[idx].TurnNumber = pos + 1
	}
}

func (m *Manager) nextTurnNumber() int {
	highest := 0
	for _, turn := range m.turns {
		if turn.IsWaiting() && turn.TurnNumber > highest {
			highest = turn.TurnNumber
		}
	}
	return highest + 1
}

// nextID is timestamp based but never goes backwards.
func (m *Manager) nextID(now time.Time) int64 {
	id := now.UnixMilli()
	if id <= m.lastID {
		id = m.lastID + 1
	}
	return id
}

func (m *Manager) reindex() {
	m.byID = make(map[int64]int, len(m.turns))
	m.waitingByMobile = make(map[string]int64)
	m.lastID = 0
	for idx, turn := range m.turns {
		m.byID[turn.ID] = idx
		if turn.ID > m.lastID {
			m.lastID = turn.ID
		}
		if turn.IsWaiting() {
			m.waitingByMobile[turn.MobileNumber] = turn.ID
		}
	}
}

func (m *Manager) snapshot() []models.Turn {
	out := make([]models.Turn, len(m.turns))
	copy(out, m.turns)
	return out
}

// persist writes the collection through. On failure the in-memory state is
// restored to previous so memory and store never diverge.
func (m *Manager) persist(ctx context.Context, previous []models.Turn) error {
	if err := m.store.SaveTurns(ctx, m.snapshot()); err != nil {
		m.turns = previous
		m.reindex()
		m.logger.WithError(err).Error("persist turns")
		return &persistError{err: err}
	}
	return nil
}

func (m *Manager) refreshTrackers(ctx context.Context) {
	for _, tracker := range m.trackers {
		id, ok := tracker.TrackedTurnID()
		if !ok {
			continue
		}
		idx, found := m.byID[id]
		if !found {
			continue
		}
		if err := tracker.Refresh(ctx, m.turns[idx]); err != nil {
			m.logger.WithError(err).WithField("turn_id", id).Warn("refresh customer turn")
		}
	}
}

type persistError struct {
	err error
}

func (e *persistError) Error() string {
	return ErrPersistence.Error() + ": " + e.err.Error()
}

func (e *persistError) Unwrap() error {
	return e.err
}

func (e *persistError) Is(target error) bool {
	return target == ErrPersistence
}

type noopRecorder struct{}

func (noopRecorder) RecordRegistered(string) {}
func (noopRecorder) RecordCompleted()        {}
func (noopRecorder) RecordCancelled()        {}
func (noopRecorder) SetWaiting(int)          {}
