package session

import "errors"

var (
	ErrNotFound      = errors.New("play not found")
	ErrInvalidPlayID = errors.New("play id is required")
)
