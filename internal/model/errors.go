package model

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidOperation  = errors.New("invalid sync operation")
	ErrRateLimited       = errors.New("sync queue rate limited")
	ErrRemoteUnavailable = errors.New("remote unavailable")
	ErrRemoteRejected    = errors.New("remote rejected")
	ErrNotFound          = errors.New("not found")
	ErrNoFamily          = errors.New("no active family")
	ErrInvalidInput      = errors.New("invalid input")
)

// ErrAlreadyExists is a rejection caused by a duplicate primary key.
var ErrAlreadyExists = fmt.Errorf("%w: record already exists", ErrRemoteRejected)
