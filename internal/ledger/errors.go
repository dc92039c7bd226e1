package ledger

import "errors"

var (
	// ErrNotFound is returned when a session token has no live session row.
	ErrNotFound = errors.New("sync session not found")
	// ErrDuplicateSession is returned when creating a session whose token
	// or category already has a live session.
	ErrDuplicateSession = errors.New("duplicate sync session")
	// ErrOrphanSession is returned when a part write references a token
	// with no live session. It indicates ledger corruption.
	ErrOrphanSession = errors.New("orphaned sync session reference")
)
