package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidURL      = errors.New("invalid url")
	ErrInvalidInterval = errors.New("invalid interval")
	ErrBusy            = errors.New("check already in progress")
)
