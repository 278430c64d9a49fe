// Package reporting forwards unexpected client failures to the backend's
// frontend log sink and provides the catch-all boundary used by commands.
package reporting

import (
	"context"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/angelmondragon/ajshoes-client/pkg/errors"
	"github.com/angelmondragon/ajshoes-client/pkg/logger"
	"github.com/angelmondragon/ajshoes-client/pkg/shopapi"
)

const (
	defaultWindow = 15 * time.Second
	sendTimeout   = 5 * time.Second
	stackKeyLen   = 80
)

// Sink receives frontend log entries.
type Sink interface {
	ReportFrontendLog(ctx context.Context, entry shopapi.FrontendLog) error
}

type Report struct {
	Level   string
	Message string
	Stack   string
	Path    string
	Meta    map[string]any
}

type ServiceParams struct {
	Sink   Sink
	Logger *logger.Logger
	// Window suppresses identical reports; zero means 15s.
	Window time.Duration
	// Disabled turns Report into a no-op.
	Disabled bool
}

// Reporter is best effort: delivery failures are logged and otherwise
// ignored.
type Reporter struct {
	sink     Sink
	logg     *logger.Logger
	window   time.Duration
	disabled bool
	now      func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time
	wg   sync.WaitGroup
}

func NewReporter(params ServiceParams) (*Reporter, error) {
	if params.Sink == nil && !params.Disabled {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "report sink is required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	window := params.Window
	if window <= 0 {
		window = defaultWindow
	}
	return &Reporter{
		sink:     params.Sink,
		logg:     logg,
		window:   window,
		disabled: params.Disabled,
		now:      time.Now,
		seen:     make(map[string]time.Time),
	}, nil
}

// Report sends r in the background and reports whether it was dispatched.
// Reports about the log endpoint itself and repeats inside the window are
// dropped.
func (r *Reporter) Report(ctx context.Context, rep Report) bool {
	if r == nil || r.disabled {
		return false
	}
	if strings.Contains(rep.Message, shopapi.FrontendLogPath) {
		return false
	}
	if rep.Level == "" {
		rep.Level = "error"
	}
	if !r.admit(dedupKey(rep)) {
		return false
	}

	entry := shopapi.FrontendLog{
		Level:   rep.Level,
		Message: rep.Message,
		Stack:   rep.Stack,
		Path:    rep.Path,
		TS:      r.now().UTC(),
		Meta:    rep.Meta,
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		if err := r.sink.ReportFrontendLog(sendCtx, entry); err != nil {
			r.logg.Warn(sendCtx, "frontend log not delivered: "+err.Error())
		}
	}()
	return true
}

// ReportError reports err with its code and chain.
func (r *Reporter) ReportError(ctx context.Context, err error, path string) bool {
	if err == nil {
		return false
	}
	dump := pkgerrors.Dump(err)
	meta := map[string]any{"code": string(dump.Code)}
	if dump.HTTPStatus != 0 {
		meta["http_status"] = dump.HTTPStatus
	}
	if len(dump.Chain) > 0 {
		meta["chain"] = dump.Chain
	}
	return r.Report(ctx, Report{Level: "error", Message: err.Error(), Path: path, Meta: meta})
}

// Flush waits for in-flight reports or ctx.
func (r *Reporter) Flush(ctx context.Context) {
	if r == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (r *Reporter) admit(key string) bool {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, at := range r.seen {
		if now.Sub(at) >= r.window {
			delete(r.seen, k)
		}
	}
	if at, ok := r.seen[key]; ok && now.Sub(at) < r.window {
		return false
	}
	r.seen[key] = now
	return true
}

func dedupKey(rep Report) string {
	stack := rep.Stack
	if len(stack) > stackKeyLen {
		stack = stack[:stackKeyLen]
	}
	return rep.Level + ":" + rep.Message + ":" + stack
}
