package partstore

import (
	"errors"
	"fmt"

	"github.com/okvist/partstore/store"
)

// Sentinel errors. Operations return typed errors that match these via
// errors.Is, so callers can branch without depending on the concrete types.
var (
	// ErrInvalidKey signals malformed or empty identifier segments.
	ErrInvalidKey = errors.New("partstore: invalid key")

	// ErrInvalidRange signals inconsistent range bounds.
	ErrInvalidRange = errors.New("partstore: invalid range")

	// ErrInvalidCommand signals an update or filter command referencing
	// unknown or reserved attributes, or contradicting itself.
	ErrInvalidCommand = errors.New("partstore: invalid command")

	// ErrConditionFailed signals a version or existence precondition
	// mismatch on update. Never retried internally; a legitimate
	// concurrent-modification signal.
	ErrConditionFailed = errors.New("partstore: condition check failed")

	// ErrDecode signals stored attributes that do not fit the record shape.
	ErrDecode = errors.New("partstore: decode failed")

	// ErrUnavailable signals a transport-level failure from the store.
	ErrUnavailable = errors.New("partstore: store unavailable")
)

// KeyError reports an identifier list that cannot form a valid key.
type KeyError struct {
	Reason   string
	Segments []string
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("invalid key segments %v: %s", e.Segments, e.Reason)
}

func (e *KeyError) Is(target error) bool { return target == ErrInvalidKey }

// RangeError reports inconsistent range bounds.
type RangeError struct {
	Reason string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("invalid range: %s", e.Reason)
}

func (e *RangeError) Is(target error) bool { return target == ErrInvalidRange }

// CommandError reports an invalid update or filter command.
type CommandError struct {
	Attribute string
	Reason    string
}

func (e *CommandError) Error() string {
	if e.Attribute != "" {
		return fmt.Sprintf("invalid command attribute %q: %s", e.Attribute, e.Reason)
	}
	return fmt.Sprintf("invalid command: %s", e.Reason)
}

func (e *CommandError) Is(target error) bool { return target == ErrInvalidCommand }

// ConditionFailedError reports a failed update precondition for a key.
type ConditionFailedError struct {
	Key store.Key
	Err error
}

func (e *ConditionFailedError) Error() string {
	return fmt.Sprintf("existence or version condition failed for %s / %s", e.Key.Partition, e.Key.Sort)
}

func (e *ConditionFailedError) Is(target error) bool { return target == ErrConditionFailed }

func (e *ConditionFailedError) Unwrap() error { return e.Err }

// DecodeError reports a stored record that failed to decode.
type DecodeError struct {
	Key store.Key
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding record %s / %s: %v", e.Key.Partition, e.Key.Sort, e.Err)
}

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

func (e *DecodeError) Unwrap() error { return e.Err }

// translateStoreErr maps store-level failures onto the repository taxonomy,
// preserving the original chain. Condition failures are handled at call
// sites where the key is known.
func translateStoreErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrUnavailable) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}
