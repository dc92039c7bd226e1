package syncrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/hyperengineering/exposure/internal/engine"
	"github.com/hyperengineering/exposure/internal/fetch"
	"github.com/hyperengineering/exposure/internal/index"
	"github.com/hyperengineering/exposure/internal/ledger"
	"github.com/hyperengineering/exposure/internal/types"
)

// Consumer receives the normalized exposure result of a completed run before
// the session is deleted. A nil Consumer is a no-op.
type Consumer func(ctx context.Context, result *types.ExposureResult)

// Options tunes a single orchestrator instance.
type Options struct {
	// RecentHours bounds the daily batch window.
	RecentHours int

	// FullBatchDays is the age beyond which the wide full batch is chosen
	// over the narrow one.
	FullBatchDays int

	// MaxDownloads caps concurrent batch file downloads.
	MaxDownloads int

	// Matching is passed through to the engine with each submission.
	Matching types.EngineConfig
}

// Orchestrator drives one category synchronization run end to end: health
// gate, index fetch, session resolution, resumable downloads, key submission
// and result retrieval. Runs are idempotent; a crashed run resumes from the
// ledger on the next trigger.
type Orchestrator struct {
	ledger   ledger.Ledger
	source   fetch.Source
	engine   engine.Client
	status   *Registry
	consumer Consumer
	opts     Options
	logger   *slog.Logger

	// runs coalesces concurrent triggers for the same category.
	runs singleflight.Group

	now func() time.Time
}

// New creates an orchestrator. The registry may be shared with the status
// API; consumer may be nil.
func New(lg ledger.Ledger, src fetch.Source, eng engine.Client, status *Registry, consumer Consumer, opts Options, logger *slog.Logger) *Orchestrator {
	if opts.RecentHours <= 0 {
		opts.RecentHours = 24
	}
	if opts.FullBatchDays <= 0 {
		opts.FullBatchDays = 7
	}
	if opts.MaxDownloads <= 0 {
		opts.MaxDownloads = 4
	}
	return &Orchestrator{
		ledger:   lg,
		source:   src,
		engine:   eng,
		status:   status,
		consumer: consumer,
		opts:     opts,
		logger:   logger.With("component", "sync_orchestrator"),
		now:      time.Now,
	}
}

// Run executes one synchronization run for the category. Concurrent calls
// for the same category share a single run and its outcome. A nil result
// with a nil error means the run completed as a deliberate no-op.
func (o *Orchestrator) Run(ctx context.Context, category types.Category) (*types.ExposureResult, error) {
	v, err, _ := o.runs.Do(string(category), func() (interface{}, error) {
		return o.run(ctx, category)
	})
	if err != nil {
		return nil, err
	}
	res, _ := v.(*types.ExposureResult)
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, category types.Category) (*types.ExposureResult, error) {
	log := o.logger.With("category", string(category))

	health, err := o.engine.ServiceHealth(ctx)
	if err != nil {
		return nil, o.fail(category, fmt.Errorf("engine health check: %w", err))
	}
	if !health.Usable() {
		return nil, o.fail(category, &engine.UnavailableError{Health: health})
	}

	idx, err := o.source.FetchIndex(ctx)
	if err != nil {
		return nil, o.fail(category, err)
	}
	o.status.SetState(category, StateIndexFetched, "")

	token, resumed, err := o.resolveSession(ctx, category)
	if err != nil {
		return nil, o.fail(category, err)
	}
	log = log.With("token", token)
	if resumed {
		log.Info("resuming interrupted run", "action", "resume_session")
	}

	sel, err := o.selectBatches(ctx, idx)
	if err != nil {
		return nil, o.fail(category, err)
	}

	missing, err := o.ledger.MissingParts(ctx, token, sel)
	if err != nil {
		return nil, o.failSession(ctx, category, token, err)
	}

	if !missing.Empty() {
		o.status.SetState(category, StateDownloading, token)
		if err := o.download(ctx, token, missing); err != nil {
			return nil, o.failSession(ctx, category, token, err)
		}
	}
	o.status.SetState(category, StateReadyToSubmit, token)

	agg, err := o.ledger.LoadSession(ctx, token)
	if err != nil {
		return nil, o.failSession(ctx, category, token, err)
	}

	if err := o.engine.ProvideDiagnosisKeys(ctx, agg.AllPaths(), o.opts.Matching, token); err != nil {
		return o.handleSubmitError(ctx, category, token, err, log)
	}
	o.status.SetState(category, StateSubmitted, token)

	summary, err := o.engine.Summary(ctx, token)
	if err != nil {
		return nil, o.fail(category, fmt.Errorf("exposure summary: %w", err))
	}
	details, err := o.engine.Details(ctx, token)
	if err != nil {
		return nil, o.fail(category, fmt.Errorf("exposure details: %w", err))
	}

	result := &types.ExposureResult{
		Token:      token,
		Category:   category,
		Summary:    *summary,
		Details:    details,
		FinishedAt: o.now().UTC(),
	}
	if o.consumer != nil {
		o.consumer(ctx, result)
	}

	if err := o.close(ctx, token); err != nil {
		return nil, o.fail(category, err)
	}
	o.status.SetResult(category, result)
	log.Info("run completed",
		"action", "run_complete",
		"matched_keys", summary.MatchedKeyCount,
		"max_risk", summary.MaximumRiskScore)
	return result, nil
}

// resolveSession returns the live session token for the category, creating a
// fresh one when none exists. The returned flag reports whether an existing
// session was resumed.
func (o *Orchestrator) resolveSession(ctx context.Context, category types.Category) (string, bool, error) {
	sess, err := o.ledger.SessionForCategory(ctx, category)
	switch {
	case err == nil:
		return sess.Token, true, nil
	case errors.Is(err, ledger.ErrNotFound):
	default:
		return "", false, err
	}

	token := ulid.Make().String()
	if err := o.ledger.CreateSession(ctx, token, category); err != nil {
		if errors.Is(err, ledger.ErrDuplicateSession) {
			// Lost a race with another trigger; adopt its session.
			sess, lookupErr := o.ledger.SessionForCategory(ctx, category)
			if lookupErr != nil {
				return "", false, err
			}
			return sess.Token, true, nil
		}
		return "", false, err
	}
	return token, false, nil
}

// selectBatches picks exactly one full batch plus the recent daily window.
// The wide full batch is used when no full sync completed within the
// configured horizon, the narrow one otherwise.
func (o *Orchestrator) selectBatches(ctx context.Context, idx *types.BatchIndex) (types.BatchSelection, error) {
	now := o.now()
	full := idx.Full7
	last, err := o.ledger.LastFullSync(ctx)
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		full = idx.Full14
	case err != nil:
		return types.BatchSelection{}, err
	case now.Sub(last) > time.Duration(o.opts.FullBatchDays)*24*time.Hour:
		full = idx.Full14
	}
	return types.BatchSelection{
		Full:  full,
		Daily: index.CollectRecentDaily(idx, now, o.opts.RecentHours),
	}, nil
}

// download fetches every missing batch concurrently. Files within a batch
// download sequentially and are recorded in one transaction only after the
// whole batch has landed, so an interrupted run never marks a batch complete
// with files still missing.
func (o *Orchestrator) download(ctx context.Context, token string, missing types.MissingParts) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.MaxDownloads)
	fetchBatch := func(kind types.BatchKind, d types.BatchDescriptor) {
		g.Go(func() error {
			locals := make([]string, 0, len(d.FilePaths))
			for _, remote := range d.FilePaths {
				local, err := o.source.DownloadFile(gctx, remote)
				if err != nil {
					return err
				}
				locals = append(locals, local)
			}
			// Record on the parent context: a sibling failure cancels
			// gctx but must not lose a fully downloaded batch.
			return o.ledger.RecordBatch(ctx, token, kind, d.Interval, locals)
		})
	}
	for _, d := range missing.Full {
		fetchBatch(types.BatchKindFull, d)
	}
	for _, d := range missing.Daily {
		fetchBatch(types.BatchKindDaily, d)
	}
	return g.Wait()
}

// handleSubmitError maps engine submission failures onto session outcomes.
func (o *Orchestrator) handleSubmitError(ctx context.Context, category types.Category, token string, err error, log *slog.Logger) (*types.ExposureResult, error) {
	switch {
	case errors.Is(err, engine.ErrUserDeclined):
		// The user refused consent: discard the run without raising an
		// error so the next trigger starts from scratch.
		log.Info("submission declined by user", "action", "run_declined")
		if delErr := o.ledger.DeleteSession(ctx, token); delErr != nil {
			return nil, o.fail(category, delErr)
		}
		o.status.SetState(category, StateClosed, "")
		return nil, nil
	case errors.Is(err, engine.ErrResolutionRequired):
		// The session stays intact; the run retries after the pending
		// user interaction is resolved.
		log.Info("submission awaiting user resolution", "action", "run_paused")
		return nil, o.fail(category, err)
	default:
		return nil, o.fail(category, fmt.Errorf("submit diagnosis keys: %w", err))
	}
}

// close finalizes a successful run: the session and its parts are removed
// and the full sync watermark advances.
func (o *Orchestrator) close(ctx context.Context, token string) error {
	if err := o.ledger.DeleteSession(ctx, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if err := o.ledger.SetLastFullSync(ctx, o.now().UTC()); err != nil {
		return fmt.Errorf("record full sync: %w", err)
	}
	return nil
}

// fail records the error for the status API and returns it. The session, if
// any, is left in place so the next trigger resumes it.
func (o *Orchestrator) fail(category types.Category, err error) error {
	o.status.SetError(category, err)
	o.logger.Error("run failed", "category", string(category), "error", err)
	return err
}

// failSession is fail plus orphan recovery: a session whose parts lost
// their parent row cannot make progress, so it is purged and the category
// starts fresh on the next trigger.
func (o *Orchestrator) failSession(ctx context.Context, category types.Category, token string, err error) error {
	if errors.Is(err, ledger.ErrOrphanSession) || errors.Is(err, ledger.ErrNotFound) {
		if n, purgeErr := o.ledger.PurgeOrphans(ctx); purgeErr == nil && n > 0 {
			o.logger.Warn("purged orphaned parts", "category", string(category), "count", n)
		}
		if delErr := o.ledger.DeleteSession(ctx, token); delErr != nil {
			o.logger.Error("orphan session cleanup failed", "token", token, "error", delErr)
		}
	}
	return o.fail(category, err)
}

// Retryable reports whether an error is transient and the run should simply
// be re-triggered, as opposed to needing user action or investigation.
func Retryable(err error) bool {
	var dl *fetch.DownloadError
	if errors.As(err, &dl) {
		return true
	}
	return errors.Is(err, fetch.ErrIndexFetch) || errors.Is(err, context.DeadlineExceeded)
}
