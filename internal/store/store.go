package store

import (
	"context"
	"encoding/json"

	"github.com/AbduElrahman2001/BALHA/internal/models"

	"github.com/pkg/errors"
)

const (
	KeyTurns               = "turns"
	KeyCurrentCustomerTurn = "currentCustomerTurn"
	KeyUsers               = "users"
	KeyCurrentUser         = "currentUser"
)

// Backend is a device-local key-value store. Values are opaque JSON documents.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

type TurnStore interface {
	LoadTurns(ctx context.Context) ([]models.Turn, error)
	SaveTurns(ctx context.Context, turns []models.Turn) error
}

type CustomerStore interface {
	LoadCustomerTurn(ctx context.Context) (models.Turn, bool, error)
	SaveCustomerTurn(ctx context.Context, turn models.Turn) error
	ClearCustomerTurn(ctx context.Context) error
}

type UserStore interface {
	LoadUsers(ctx context.Context) (map[string]models.User, error)
	SaveUsers(ctx context.Context, users map[string]models.User) error
	LoadCurrentUser(ctx context.Context) (models.Session, bool, error)
	SaveCurrentUser(ctx context.Context, session models.Session) error
	ClearCurrentUser(ctx context.Context) error
}

// Store maps the logical device schema onto a Backend.
type Store struct {
	backend Backend
}

func New(backend Backend) *Store {
	return &Store{backend: backend}
}

func (s *Store) LoadTurns(ctx context.Context) ([]models.Turn, error) {
	var turns []models.Turn
	if _, err := s.load(ctx, KeyTurns, &turns); err != nil {
		return nil, err
	}
	return turns, nil
}

func (s *Store) SaveTurns(ctx context.Context, turns []models.Turn) error {
	if turns == nil {
		turns = []models.Turn{}
	}
	return s.save(ctx, KeyTurns, turns)
}

func (s *Store) LoadCustomerTurn(ctx context.Context) (models.Turn, bool, error) {
	var turn models.Turn
	found, err := s.load(ctx, KeyCurrentCustomerTurn, &turn)
	if err != nil {
		return models.Turn{}, false, err
	}
	return turn, found, nil
}

func (s *Store) SaveCustomerTurn(ctx context.Context, turn models.Turn) error {
	return s.save(ctx, KeyCurrentCustomerTurn, turn)
}

func (s *Store) ClearCustomerTurn(ctx context.Context) error {
	return errors.Wrapf(s.backend.Delete(ctx, KeyCurrentCustomerTurn), "delete %s", KeyCurrentCustomerTurn)
}

func (s *Store) LoadUsers(ctx context.Context) (map[string]models.User, error) {
	users := map[string]models.User{}
	if _, err := s.load(ctx, KeyUsers, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) SaveUsers(ctx context.Context, users map[string]models.User) error {
	return s.save(ctx, KeyUsers, users)
}

func (s *Store) LoadCurrentUser(ctx context.Context) (models.Session, bool, error) {
	var session models.Session
	found, err := s.load(ctx, KeyCurrentUser, &session)
	if err != nil {
		return models.Session{}, false, err
	}
	return session, found, nil
}

func (s *Store) SaveCurrentUser(ctx context.Context, session models.Session) error {
	return s.save(ctx, KeyCurrentUser, session)
}

func (s *Store) ClearCurrentUser(ctx context.Context) error {
	return errors.Wrapf(s.backend.Delete(ctx, KeyCurrentUser), "delete %s", KeyCurrentUser)
}

func (s *Store) load(ctx context.Context, key string, target interface{}) (bool, error) {
	raw, found, err := s.backend.Get(ctx, key)
	if err != nil {
		return false, errors.Wrapf(err, "get %s", key)
	}
	if !found || len(raw) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return false, errors.Wrapf(err, "decode %s", key)
	}
	return true, nil
}

func (s *Store) save(ctx context.Context, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "encode %s", key)
	}
	return errors.Wrapf(s.backend.Set(ctx, key, raw), "set %s", key)
}
