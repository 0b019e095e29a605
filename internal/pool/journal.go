package pool

import (
	"context"
	"log/slog"
)

// journal records undo steps for the effects of one operation so a failed
// interaction leaves no partial state behind.
type journal struct {
	ctx    context.Context
	logger *slog.Logger
	undo   []func(ctx context.Context) error
}

func (j *journal) record(fn func(ctx context.Context) error) {
	j.undo = append(j.undo, fn)
}

// revert runs the recorded steps newest first. Undo failures are logged and
// do not stop the remaining steps.
func (j *journal) revert() {
	for i := len(j.undo) - 1; i >= 0; i-- {
		if err := j.undo[i](j.ctx); err != nil {
			j.logger.ErrorContext(j.ctx, "pool rollback step failed", slog.Any("error", err))
		}
	}
	j.undo = nil
}
