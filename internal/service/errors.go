package service

import "errors"

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrNotFound       = errors.New("not found")
	ErrBadCredential  = errors.New("credential check failed")
	ErrUnknownAction  = errors.New("unknown bulk action")
)
