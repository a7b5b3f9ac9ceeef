package domain

import "time"

// KeyState is the derived status of a key. It is never stored; it is
// recomputed from the record on every request.
type KeyState string

const (
	StateUnused      KeyState = "unused"
	StateUsed        KeyState = "used"
	StateLocked      KeyState = "locked"
	StateForceLocked KeyState = "forced-locked"
	StateExpired     KeyState = "expired"
)

// Classify derives the display/decision state of a key at the given
// instant. Precedence: locked > expired > activated > unused. A locked
// key that is also expired reports as locked. A system lock (non-nil
// ForceLockReason) classifies as forced-locked.
func Classify(k *ActivationKey, now time.Time) KeyState {
	if k.IsLocked {
		if k.ForceLockReason != nil {
			return StateForceLocked
		}
		return StateLocked
	}
	if k.ExpiresAt != nil && k.ExpiresAt.Before(now) {
		return StateExpired
	}
	if k.IsActivated {
		return StateUsed
	}
	return StateUnused
}

// IsExpired reports whether the key's absolute expiry has passed.
// A nil ExpiresAt means the key never expires.
func (k *ActivationKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && k.ExpiresAt.Before(now)
}
