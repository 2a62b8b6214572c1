package provision

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	cerrors "github.com/Aman-CERP/corpusctl/internal/errors"
	"github.com/Aman-CERP/corpusctl/internal/search"
)

const (
	// DefaultPollInterval is the pause between status fetches.
	DefaultPollInterval = 5 * time.Second

	// DefaultMaxFetchFailures is how many consecutive transient fetch errors
	// abort polling.
	DefaultMaxFetchFailures = 5
)

// StatusFetcher returns the current status of an indexer.
type StatusFetcher interface {
	IndexerStatus(ctx context.Context, name string) (search.IndexerStatus, error)
}

// PollerOptions configures a Poller.
type PollerOptions struct {
	Interval         time.Duration
	MaxFetchFailures int
	Logger           *slog.Logger
	// OnPoll is called after every successful status fetch.
	OnPoll func(name string, st search.IndexerStatus, polls int)
}

// Poller waits for indexer runs to reach a terminal status.
type Poller struct {
	fetch       StatusFetcher
	interval    time.Duration
	maxFailures int
	logger      *slog.Logger
	onPoll      func(string, search.IndexerStatus, int)
}

// NewPoller creates a poller.
func NewPoller(fetch StatusFetcher, opts PollerOptions) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultPollInterval
	}
	if opts.MaxFetchFailures <= 0 {
		opts.MaxFetchFailures = DefaultMaxFetchFailures
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Poller{
		fetch:       fetch,
		interval:    opts.Interval,
		maxFailures: opts.MaxFetchFailures,
		logger:      opts.Logger,
		onPoll:      opts.OnPoll,
	}
}

// Await polls name until its status is terminal and returns that status.
// Only ctx bounds the wait. Retryable fetch errors are tolerated until
// MaxFetchFailures happen in a row; any other fetch error aborts.
func (p *Poller) Await(ctx context.Context, name string) (JobResult, error) {
	return p.AwaitAfter(ctx, name, time.Time{})
}

// AwaitAfter is Await for a run started after since. Until the service
// reports an execution that started after since, the status it returns
// describes an older run and is treated as not started. A zero since
// accepts any execution.
func (p *Poller) AwaitAfter(ctx context.Context, name string, since time.Time) (JobResult, error) {
	res := JobResult{Indexer: name}
	// The breaker never half-opens during one wait.
	cb := cerrors.NewCircuitBreaker("indexer-status:"+name,
		cerrors.WithMaxFailures(p.maxFailures),
		cerrors.WithResetTimeout(24*time.Hour),
		cerrors.WithFailureFilter(cerrors.IsRetryable))

	for {
		res.Polls++
		st, err := cerrors.CircuitExecute(cb, func() (search.IndexerStatus, error) {
			return p.fetch.IndexerStatus(ctx, name)
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			if !cerrors.IsRetryable(err) {
				return res, err
			}
			if cb.State() == cerrors.StateOpen {
				return res, cerrors.New(cerrors.ErrCodeServiceUnavailable,
					fmt.Sprintf("indexer status unavailable after %d consecutive failures", cb.Failures()), err).
					WithDetail("indexer", name)
			}
			p.logger.Warn("indexer_status_fetch_failed",
				append([]any{slog.String("indexer", name), slog.Int("poll", res.Polls)}, cerrors.LogAttrs(err)...)...)
			if err := p.sleep(ctx); err != nil {
				return res, err
			}
			continue
		}

		if stale(st, since) {
			st.Status = search.JobNotStarted
		}
		res.Status = st.Status
		res.Detail = st
		if p.onPoll != nil {
			p.onPoll(name, st, res.Polls)
		}

		switch st.Status {
		case search.JobNotStarted, search.JobRunning:
			p.logger.Debug("indexer_pending",
				slog.String("indexer", name),
				slog.String("status", st.Status.String()),
				slog.Int("poll", res.Polls))
			if err := p.sleep(ctx); err != nil {
				return res, err
			}
		case search.JobSuccess:
			p.logger.Info("indexer_succeeded",
				slog.String("indexer", name),
				slog.Int("items_processed", st.ItemsProcessed),
				slog.Int("polls", res.Polls))
			return res, nil
		case search.JobTransientFailure:
			p.logger.Warn("indexer_transient_failure",
				slog.String("indexer", name),
				slog.String("error", st.ErrorMessage),
				slog.Int("items_failed", st.ItemsFailed),
				slog.Int("polls", res.Polls))
			return res, nil
		case search.JobFailed:
			p.logger.Error("indexer_failed",
				slog.String("indexer", name),
				slog.String("service_status", st.ServiceStatus),
				slog.String("last_result", st.LastResult),
				slog.String("error", st.ErrorMessage))
			return res, nil
		default:
			return res, cerrors.New(cerrors.ErrCodeUnexpectedResponse,
				fmt.Sprintf("unrecognized job status %d", int(st.Status)), nil)
		}
	}
}

// stale reports whether st still describes an execution that started at or
// before since. An indexer-level error is never stale: it is not tied to an
// execution and would otherwise be polled forever.
func stale(st search.IndexerStatus, since time.Time) bool {
	if since.IsZero() || st.ServiceStatus == search.ServiceStatusError {
		return false
	}
	return !st.StartTime.After(since)
}

func (p *Poller) sleep(ctx context.Context) error {
	timer := time.NewTimer(p.interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
