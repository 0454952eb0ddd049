package board

import (
	"errors"
	"fmt"
	"strings"
)

// UnmatchedPolicy decides what Load does with a card whose status names no configured column.
type UnmatchedPolicy string

const (
	// UnmatchedDrop leaves such cards off the board.
	UnmatchedDrop UnmatchedPolicy = "drop"
	// UnmatchedBucket collects them in the UnmatchedColumn.
	UnmatchedBucket UnmatchedPolicy = "bucket"
	// UnmatchedError fails the load.
	UnmatchedError UnmatchedPolicy = "error"
)

// UnmatchedColumn is the reserved column used by UnmatchedBucket. Cards may leave it but
// never be moved into it.
const UnmatchedColumn = "_unmatched"

// ParseUnmatchedPolicy accepts drop, bucket or error; empty means drop.
func ParseUnmatchedPolicy(raw string) (UnmatchedPolicy, error) {
	switch p := UnmatchedPolicy(strings.ToLower(strings.TrimSpace(raw))); p {
	case "":
		return UnmatchedDrop, nil
	case UnmatchedDrop, UnmatchedBucket, UnmatchedError:
		return p, nil
	default:
		return "", fmt.Errorf("unknown unmatched status policy %q", raw)
	}
}

// Options configures a Manager.
type Options struct {
	// Columns lists the column identifiers in display order.
	Columns           []string
	OnUnmatchedStatus UnmatchedPolicy
	// RenumberOnMove rewrites the destination column's positions to 0..n-1 on every move so
	// the stored order matches the local one.
	RenumberOnMove bool
}

// Validate rejects empty, duplicate or reserved column identifiers.
func (o Options) Validate() error {
	if len(o.Columns) == 0 {
		return errors.New("board needs at least one column")
	}
	seen := make(map[string]struct{}, len(o.Columns))
	for _, col := range o.Columns {
		if strings.TrimSpace(col) == "" {
			return errors.New("board column must not be empty")
		}
		if col == UnmatchedColumn {
			return fmt.Errorf("board column %q is reserved", col)
		}
		if _, dup := seen[col]; dup {
			return fmt.Errorf("board column %q listed twice", col)
		}
		seen[col] = struct{}{}
	}
	if _, err := ParseUnmatchedPolicy(string(o.OnUnmatchedStatus)); err != nil {
		return err
	}
	return nil
}

// HasColumn reports whether col is a configured column.
func (o Options) HasColumn(col string) bool {
	for _, c := range o.Columns {
		if c == col {
			return true
		}
	}
	return false
}
