package store

import (
	"context"
	"time"
)

// Deadline tells a long-running operation when to stop.
type Deadline interface {
	TimeRunningOut() bool
}

// DeadlineFunc adapts a function to Deadline.
type DeadlineFunc func() bool

// TimeRunningOut implements Deadline.
func (f DeadlineFunc) TimeRunningOut() bool { return f() }

// NoDeadline never runs out.
var NoDeadline Deadline = DeadlineFunc(func() bool { return false })

// ContextDeadline runs out when ctx is done or when less than margin remains
// before its deadline. A context without a deadline only runs out when done.
func ContextDeadline(ctx context.Context, margin time.Duration) Deadline {
	return DeadlineFunc(func() bool {
		if ctx.Err() != nil {
			return true
		}
		d, ok := ctx.Deadline()
		return ok && time.Until(d) < margin
	})
}
