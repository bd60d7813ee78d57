package queue

import "github.com/pkg/errors"

var (
	ErrDuplicateActiveTurn = errors.New("customer already has a waiting turn")
	ErrNotFound            = errors.New("turn not found")
	ErrInvalidState        = errors.New("invalid turn state")
	ErrInvalidInput        = errors.New("invalid turn input")
	ErrPersistence         = errors.New("turn store write failed")
)
