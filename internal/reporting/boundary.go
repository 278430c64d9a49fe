package reporting

import (
	"context"
	"fmt"
	"runtime/debug"

	pkgerrors "github.com/angelmondragon/ajshoes-client/pkg/errors"
	"github.com/angelmondragon/ajshoes-client/pkg/logger"
)

// Boundary is the top-level catch-all around a unit of work.
type Boundary struct {
	reporter *Reporter
	logg     *logger.Logger
}

func NewBoundary(reporter *Reporter, logg *logger.Logger) *Boundary {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Boundary{reporter: reporter, logg: logg}
}

// Run calls fn. A panic is recovered, reported and turned into a generic
// CodeInternal error. Errors without a known code are reported too; typed
// errors are returned untouched for the caller to display.
func (b *Boundary) Run(ctx context.Context, name string, fn func(context.Context) error) (err error) {
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		stack := string(debug.Stack())
		msg := fmt.Sprint(rec)
		b.logg.Error(b.logg.WithField(ctx, "boundary", name), "recovered panic: "+msg, nil)
		b.reporter.Report(ctx, Report{
			Level:   "error",
			Message: msg,
			Stack:   stack,
			Path:    name,
			Meta:    map[string]any{"panic": true},
		})
		err = pkgerrors.New(pkgerrors.CodeInternal, "something went wrong").
			WithDetails(map[string]any{"boundary": name})
	}()

	err = fn(ctx)
	if err != nil && pkgerrors.As(err) == nil {
		b.reporter.ReportError(ctx, err, name)
	}
	return err
}
