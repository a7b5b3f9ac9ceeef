package domain

import "errors"

var (
	ErrKeyNotFound    = errors.New("activation key not found")
	ErrKeyLocked      = errors.New("activation key locked")
	ErrKeyExpired     = errors.New("activation key expired")
	ErrDeviceConflict = errors.New("key bound to another device")
	ErrKickedOut      = errors.New("session invalidated")
)
