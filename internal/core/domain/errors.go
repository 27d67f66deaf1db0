package domain

import "errors"

var (
	ErrValidation  = errors.New("validation failed")
	ErrEmptyCart   = errors.New("cart is empty")
	ErrNotFound    = errors.New("not found")
	ErrPersistence = errors.New("persistence failure")
)
