package repository

import "errors"

// Sentinel errors shared by all repository methods.
var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)
