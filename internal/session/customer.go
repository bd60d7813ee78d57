package session

import (
	"context"
	"sync"

	"github.com/AbduElrahman2001/BALHA/internal/models"
	"github.com/AbduElrahman2001/BALHA/internal/queue"
	"github.com/AbduElrahman2001/BALHA/internal/store"

	"github.com/pkg/errors"
)

var (
	ErrNoTurn         = errors.New("no turn tracked for this session")
	ErrTurnInProgress = errors.New("session already holds a waiting turn")
)

// Queue is the part of queue.Manager a session drives.
type Queue interface {
	Register(ctx context.Context, input queue.RegisterInput) (models.Turn, error)
	Cancel(ctx context.Context, id int64) (models.Turn, error)
	Status(id int64) (models.Turn, error)
	FindActiveByMobile(mobile string) (models.Turn, bool)
	AddTracker(tracker queue.Tracker)
	RemoveTracker(tracker queue.Tracker)
}

// Customer is the device's "my current turn" pointer. It keeps a cached
// snapshot of the turn and persists it under currentCustomerTurn.
type Customer struct {
	// take serializes Take so two registrations cannot both pass the
	// one-waiting-turn check.
	take sync.Mutex

	mu      sync.Mutex
	store   store.CustomerStore
	manager Queue
	turn    *models.Turn
	// version changes on every pointer write. Readers that consult the
	// manager without holding mu use it to detect a concurrent Refresh.
	version uint64
}

// OpenCustomer loads the saved pointer and registers it with the manager so
// renumbering refreshes the cached copy.
func OpenCustomer(ctx context.Context, st store.CustomerStore, manager Queue) (*Customer, error) {
	c := &Customer{store: st, manager: manager}
	turn, found, err := st.LoadCustomerTurn(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load customer turn")
	}
	if found {
		c.turn = &turn
	}
	manager.AddTracker(c)
	return c, nil
}

func (c *Customer) TrackedTurnID() (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.turn == nil {
		return 0, false
	}
	return c.turn.ID, true
}

func (c *Customer) Refresh(ctx context.Context, turn models.Turn) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.turn == nil || c.turn.ID != turn.ID {
		return nil
	}
	return c.set(ctx, turn)
}

func (c *Customer) Current() (models.Turn, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.turn == nil {
		return models.Turn{}, false
	}
	return *c.turn, true
}

// Take registers a new turn and points the session at it. While the session
// still tracks a waiting turn it returns that turn with ErrTurnInProgress.
func (c *Customer) Take(ctx context.Context, input queue.RegisterInput) (models.Turn, error) {
	c.take.Lock()
	defer c.take.Unlock()

	current, ok, err := c.Restore(ctx)
	if err != nil {
		return models.Turn{}, err
	}
	if ok {
		return current, ErrTurnInProgress
	}

	turn, err := c.manager.Register(ctx, input)
	if err != nil {
		return models.Turn{}, err
	}
	if err := c.Track(ctx, turn); err != nil {
		return turn, err
	}
	return turn, nil
}

func (c *Customer) Track(ctx context.Context, turn models.Turn) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.set(ctx, turn)
}

// Restore drops a saved pointer whose turn is gone or no longer waiting.
func (c *Customer) Restore(ctx context.Context) (models.Turn, bool, error) {
	for {
		id, version, ok := c.tracked()
		if !ok {
			return models.Turn{}, false, nil
		}
		turn, err := c.manager.Status(id)
		if err != nil && !errors.Is(err, queue.ErrNotFound) {
			return models.Turn{}, false, err
		}

		c.mu.Lock()
		if c.version != version {
			c.mu.Unlock()
			continue
		}
		if err != nil || !turn.IsWaiting() {
			err = c.clear(ctx)
			c.mu.Unlock()
			return models.Turn{}, false, err
		}
		err = c.set(ctx, turn)
		c.mu.Unlock()
		return turn, true, err
	}
}

// RestoreByMobile re-points the session at the waiting turn of mobile. The
// caller must also present the turn id, so knowing a phone number alone is
// not enough to take over someone else's turn.
func (c *Customer) RestoreByMobile(ctx context.Context, mobile string, turnID int64) (models.Turn, bool, error) {
	turn, ok := c.manager.FindActiveByMobile(mobile)
	if !ok || turnID == 0 || turn.ID != turnID {
		return models.Turn{}, false, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return turn, true, c.set(ctx, turn)
}

// Check returns the latest snapshot of the tracked turn. A completed or
// cancelled turn is returned once and the pointer is cleared.
func (c *Customer) Check(ctx context.Context) (models.Turn, error) {
	for {
		id, version, ok := c.tracked()
		if !ok {
			return models.Turn{}, ErrNoTurn
		}
		turn, err := c.manager.Status(id)

		c.mu.Lock()
		if c.version != version {
			c.mu.Unlock()
			continue
		}
		turn, err = c.settle(ctx, turn, err)
		c.mu.Unlock()
		return turn, err
	}
}

// settle applies a status lookup to the pointer. c.mu must be held.
func (c *Customer) settle(ctx context.Context, turn models.Turn, lookupErr error) (models.Turn, error) {
	if lookupErr != nil {
		if errors.Is(lookupErr, queue.ErrNotFound) {
			if err := c.clear(ctx); err != nil {
				return models.Turn{}, err
			}
		}
		return models.Turn{}, lookupErr
	}
	if !turn.IsWaiting() {
		return turn, c.clear(ctx)
	}
	return turn, c.set(ctx, turn)
}

func (c *Customer) tracked() (int64, uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.turn == nil {
		return 0, c.version, false
	}
	return c.turn.ID, c.version, true
}

// Cancel cancels the tracked turn and clears the pointer.
func (c *Customer) Cancel(ctx context.Context) (models.Turn, error) {
	id, ok := c.TrackedTurnID()
	if !ok {
		return models.Turn{}, ErrNoTurn
	}
	turn, err := c.manager.Cancel(ctx, id)
	if err != nil {
		return models.Turn{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return turn, c.clear(ctx)
}

func (c *Customer) set(ctx context.Context, turn models.Turn) error {
	if err := c.store.SaveCustomerTurn(ctx, turn); err != nil {
		return errors.Wrap(err, "save customer turn")
	}
	c.turn = &turn
	c.version++
	return nil
}

func (c *Customer) clear(ctx context.Context) error {
	if err := c.store.ClearCustomerTurn(ctx); err != nil {
		return errors.Wrap(err, "clear customer turn")
	}
	c.turn = nil
	c.version++
	return nil
}
