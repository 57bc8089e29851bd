package browser

import (
	"errors"
	"fmt"
	"strings"
)

// staleMarkers are fragments of driver errors that mean the node we hold no
// longer exists in the document.
var staleMarkers = []string{
	"no node with given id",
	"could not find node",
	"node with given id does not belong to the document",
	"does not belong to the document",
	"cannot find context with specified id",
	"object reference not found",
	"could not find object with given id",
	"node is detached from document",
	"execution context was destroyed",
}

// IsStaleMessage reports whether a raw driver error message describes a
// detached node.
func IsStaleMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, m := range staleMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// WrapDriverError annotates err with op and maps detached-node failures onto
// ErrStaleElement. Context errors pass through unchanged so callers can
// still match them.
func WrapDriverError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStaleElement) {
		return err
	}
	if IsStaleMessage(err.Error()) {
		return fmt.Errorf("%s: %w: %v", op, ErrStaleElement, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
