// Package provision creates, awaits and tears down search resource chains.
//
// A document chain is an index, a blob data source, a skillset that chunks
// and embeds content into knowledge-store projections, and an indexer. A
// chunk chain indexes those projections: index, data source and indexer.
// Creation is strictly sequential; teardown runs in reverse and tolerates
// missing resources.
package provision

import (
	"context"
	"log/slog"
	"time"

	cerrors "github.com/Aman-CERP/corpusctl/internal/errors"
	"github.com/Aman-CERP/corpusctl/internal/naming"
	"github.com/Aman-CERP/corpusctl/internal/schema"
	"github.com/Aman-CERP/corpusctl/internal/search"
)

// DefaultSettleTimeout bounds the retries of steps that reference a resource
// the service may not expose yet.
const DefaultSettleTimeout = 2 * time.Minute

// Options is the per-call configuration of an Orchestrator.
type Options struct {
	// StorageConnectionString and Container locate the source documents.
	StorageConnectionString string
	Container               string

	// KnowledgeStoreConnectionString is where projections are written to and
	// read back from by the chunk chain.
	KnowledgeStoreConnectionString string

	EmbeddingEndpoint string
	EmbeddingHeaders  map[string]string
	Dimensions        int

	// CognitiveServicesKey enables image enrichment when set.
	CognitiveServicesKey string

	PollInterval     time.Duration
	MaxFetchFailures int

	// Settle controls backoff for reference-not-found errors. SettleTimeout
	// bounds the total time spent retrying one step.
	Settle        cerrors.RetryConfig
	SettleTimeout time.Duration

	Observer Observer
	// OnPoll is passed to the poller.
	OnPoll func(name string, st search.IndexerStatus, polls int)
	Logger *slog.Logger
}

// DefaultSettleRetry returns the backoff used while a new data source propagates.
func DefaultSettleRetry() cerrors.RetryConfig {
	return cerrors.RetryConfig{
		MaxRetries:   8,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     15 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Orchestrator provisions resource chains against one service.
// It holds no state between calls.
type Orchestrator struct {
	svc        Service
	containers ContainerStore
	opts       Options
	poller     *Poller
	logger     *slog.Logger
	now        func() time.Time
}

// New creates an orchestrator. containers may be nil, in which case teardown
// leaves knowledge-store containers in place.
func New(svc Service, containers ContainerStore, opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Dimensions <= 0 {
		opts.Dimensions = schema.DefaultDimensions
	}
	if opts.Settle.MaxRetries == 0 && opts.Settle.InitialDelay == 0 {
		opts.Settle = DefaultSettleRetry()
	}
	if opts.SettleTimeout <= 0 {
		opts.SettleTimeout = DefaultSettleTimeout
	}
	return &Orchestrator{
		svc:        svc,
		containers: containers,
		opts:       opts,
		poller: NewPoller(svc, PollerOptions{
			Interval:         opts.PollInterval,
			MaxFetchFailures: opts.MaxFetchFailures,
			Logger:           opts.Logger,
			OnPoll:           opts.OnPoll,
		}),
		logger: opts.Logger,
		now:    time.Now,
	}
}

// Poller returns the poller used to await indexer runs.
func (o *Orchestrator) Poller() *Poller {
	return o.poller
}

// plan is the full set of definitions for one chain, built before any call.
type plan struct {
	names      naming.Names
	index      schema.Index
	dataSource schema.DataSource
	skillset   *schema.Skillset
	indexer    schema.Indexer
}

// ChainNames resolves the names of the chain for prefix and variant. prefix is
// always the document prefix; the chunk chain is named under it.
func ChainNames(prefix string, variant schema.Variant) (naming.Names, error) {
	switch variant {
	case schema.VariantDocument:
		return naming.Derive(prefix)
	case schema.VariantChunk:
		return naming.DeriveChunk(prefix)
	default:
		return naming.Names{}, cerrors.New(cerrors.ErrCodeInvalidVariant, "invalid variant: "+string(variant), nil)
	}
}

func (o *Orchestrator) plan(prefix string, variant schema.Variant) (plan, error) {
	names, err := ChainNames(prefix, variant)
	if err != nil {
		return plan{}, err
	}
	s, err := schema.SchemaFor(variant, o.opts.Dimensions)
	if err != nil {
		return plan{}, err
	}
	p := plan{names: names}
	if p.index, err = schema.BuildIndex(names.Index, s); err != nil {
		return plan{}, err
	}

	switch variant {
	case schema.VariantDocument:
		p.dataSource, err = schema.BuildDataSource(names.DataSource, o.opts.StorageConnectionString, o.opts.Container)
		if err != nil {
			return plan{}, err
		}
		var ss schema.Skillset
		ss, err = schema.BuildSkillset(schema.SkillsetOptions{
			Name:                           names.Skillset,
			EmbeddingEndpoint:              o.opts.EmbeddingEndpoint,
			EmbeddingHeaders:               o.opts.EmbeddingHeaders,
			KnowledgeStoreConnectionString: o.opts.KnowledgeStoreConnectionString,
			Container:                      names.Container,
			ImageContainer:                 names.ImageContainer,
			CognitiveServicesKey:           o.opts.CognitiveServicesKey,
		})
		if err != nil {
			return plan{}, err
		}
		p.skillset = &ss
		p.indexer, err = schema.BuildIndexer(schema.IndexerOptions{
			Name:       names.Indexer,
			DataSource: names.DataSource,
			Index:      names.Index,
			Skillset:   names.Skillset,
			Variant:    variant,
			Images:     ss.CognitiveServices != nil,
		})
	case schema.VariantChunk:
		// The chunk chain reads what the document skillset projected.
		projected, rerr := naming.Resolve(prefix, naming.RoleContainer)
		if rerr != nil {
			return plan{}, rerr
		}
		p.dataSource, err = schema.BuildDataSource(names.DataSource, o.opts.KnowledgeStoreConnectionString, projected)
		if err != nil {
			return plan{}, err
		}
		p.indexer, err = schema.BuildIndexer(schema.IndexerOptions{
			Name:       names.Indexer,
			DataSource: names.DataSource,
			Index:      names.Index,
			Variant:    variant,
		})
	}
	if err != nil {
		return plan{}, err
	}
	return p, nil
}

// run tracks one CreateResources call.
type run struct {
	o       *Orchestrator
	prefix  string
	variant schema.Variant
	state   State
}

func (r *run) to(next State, err error) {
	prev := r.state
	r.state = next
	r.o.logger.Debug("provision_transition",
		slog.String("prefix", r.prefix),
		slog.String("variant", string(r.variant)),
		slog.String("from", string(prev)),
		slog.String("to", string(next)))
	if r.o.opts.Observer != nil {
		r.o.opts.Observer(Transition{
			Prefix: r.prefix, Variant: r.variant,
			From: prev, To: next, Err: err, At: r.o.now(),
		})
	}
}

func (r *run) fail(stage Stage, err error) error {
	r.to(StateFailed, err)
	r.o.logger.Error("provision_failed",
		append([]any{
			slog.String("prefix", r.prefix),
			slog.String("variant", string(r.variant)),
			slog.String("stage", string(stage)),
		}, cerrors.LogAttrs(err)...)...)
	return &ProvisioningError{Stage: stage, Prefix: r.prefix, Cause: err}
}

// CreateResources provisions one chain and waits for its first indexer run.
//
// Every definition is built before the first remote call, so configuration
// errors touch nothing. Once the indexer exists the manifest is returned
// whatever the polling outcome; a polling error comes back as a
// ProvisioningError at StagePolling alongside the manifest. Nothing is rolled
// back on failure.
func (o *Orchestrator) CreateResources(ctx context.Context, prefix string, variant schema.Variant) (Result, error) {
	r := &run{o: o, prefix: prefix, variant: variant, state: StateUnstarted}

	p, err := o.plan(prefix, variant)
	if err != nil {
		return Result{}, r.fail(StageValidate, err)
	}

	o.logger.Info("provision_started",
		slog.String("prefix", prefix),
		slog.String("variant", string(variant)),
		slog.String("index", p.names.Index))

	if err := o.svc.CreateIndex(ctx, p.index); err != nil {
		return Result{}, r.fail(StageIndex, err)
	}
	r.to(StateIndexCreated, nil)

	if err := o.svc.CreateDataSource(ctx, p.dataSource); err != nil {
		return Result{}, r.fail(StageDataSource, err)
	}
	r.to(StateDataSourceCreated, nil)

	manifest := Manifest{
		Prefix:     prefix,
		Variant:    variant,
		Index:      p.names.Index,
		DataSource: p.names.DataSource,
		Indexer:    p.names.Indexer,
	}

	if p.skillset != nil {
		ss := *p.skillset
		if err := o.settle(ctx, StageSkillset, func(ctx context.Context) error {
			return o.svc.CreateSkillset(ctx, ss)
		}); err != nil {
			return Result{}, r.fail(StageSkillset, err)
		}
		r.to(StateSkillsetCreated, nil)
		manifest.Skillset = p.names.Skillset
		manifest.Container = p.names.Container
		if ss.CognitiveServices != nil {
			manifest.ImageContainer = p.names.ImageContainer
		}
	}

	if err := o.settle(ctx, StageIndexer, func(ctx context.Context) error {
		return o.svc.CreateIndexer(ctx, p.indexer)
	}); err != nil {
		return Result{}, r.fail(StageIndexer, err)
	}
	r.to(StateIndexerCreated, nil)
	manifest.CreatedAt = o.now().UTC()

	r.to(StatePolling, nil)
	job, err := o.poller.Await(ctx, p.names.Indexer)
	if err != nil {
		return Result{Manifest: manifest, Job: job}, r.fail(StagePolling, err)
	}
	r.to(StateDone, nil)

	o.logger.Info("provision_completed",
		slog.String("prefix", prefix),
		slog.String("variant", string(variant)),
		slog.String("job_status", job.Status.String()),
		slog.Int("polls", job.Polls))
	return Result{Manifest: manifest, Job: job}, nil
}

// settle runs a dependent create, retrying while the service reports that a
// referenced resource does not exist yet.
func (o *Orchestrator) settle(ctx context.Context, stage Stage, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, o.opts.SettleTimeout)
	defer cancel()

	attempt := 0
	return cerrors.RetryIf(ctx, o.opts.Settle, func(err error) bool {
		if !cerrors.HasCode(err, cerrors.ErrCodeReferenceNotFound) {
			return false
		}
		o.logger.Debug("provision_settling",
			slog.String("stage", string(stage)),
			slog.Int("attempt", attempt))
		return true
	}, func() error {
		attempt++
		return fn(ctx)
	})
}

// Rerun starts a new run of an existing chain's indexer and waits for it.
// Nothing is created; a missing indexer is a ResourceNotFound error.
func (o *Orchestrator) Rerun(ctx context.Context, prefix string, variant schema.Variant) (JobResult, error) {
	r := &run{o: o, prefix: prefix, variant: variant, state: StateIndexerCreated}

	names, err := ChainNames(prefix, variant)
	if err != nil {
		return JobResult{}, r.fail(StageValidate, err)
	}
	// The status right after the run request can still show the previous
	// execution, so remember when that one started.
	prev, err := o.svc.IndexerStatus(ctx, names.Indexer)
	if err != nil {
		return JobResult{}, r.fail(StageRun, err)
	}
	if err := o.svc.RunIndexer(ctx, names.Indexer); err != nil {
		return JobResult{}, r.fail(StageRun, err)
	}
	o.logger.Info("indexer_rerun",
		slog.String("prefix", prefix),
		slog.String("indexer", names.Indexer),
		slog.Time("previous_start", prev.StartTime))

	r.to(StatePolling, nil)
	job, err := o.poller.AwaitAfter(ctx, names.Indexer, prev.StartTime)
	if err != nil {
		return job, r.fail(StagePolling, err)
	}
	r.to(StateDone, nil)
	return job, nil
}
