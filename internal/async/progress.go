// Package async runs provisioning work in the background and tracks the
// progress of every resource chain it touches.
package async

import (
	"sync"
	"time"

	"github.com/Aman-CERP/corpusctl/internal/provision"
	"github.com/Aman-CERP/corpusctl/internal/schema"
	"github.com/Aman-CERP/corpusctl/internal/search"
)

// ChainProgress is an immutable snapshot of one chain.
type ChainProgress struct {
	Prefix         string          `json:"prefix"`
	Variant        schema.Variant  `json:"variant"`
	State          provision.State `json:"state"`
	Polls          int             `json:"polls"`
	JobStatus      string          `json:"job_status,omitempty"`
	ItemsProcessed int             `json:"items_processed"`
	ItemsFailed    int             `json:"items_failed"`
	Error          string          `json:"error,omitempty"`
	Started        time.Time       `json:"started"`
	Updated        time.Time       `json:"updated"`
}

// Elapsed is the time between the first and latest update.
func (c ChainProgress) Elapsed() time.Duration {
	return c.Updated.Sub(c.Started)
}

type chainKey struct {
	prefix  string
	variant schema.Variant
}

// Tracker collects transitions and polls from concurrent runs.
type Tracker struct {
	mu        sync.RWMutex
	chains    map[chainKey]*ChainProgress
	order     []chainKey
	byIndexer map[string]chainKey
	listeners []func(ChainProgress)
	now       func() time.Time
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		chains:    make(map[chainKey]*ChainProgress),
		byIndexer: make(map[string]chainKey),
		now:       time.Now,
	}
}

// Subscribe registers fn to receive every update. fn runs with the tracker
// unlocked, on the goroutine that produced the update.
func (t *Tracker) Subscribe(fn func(ChainProgress)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, fn)
}

// Observe records a transition. It has the provision.Observer signature.
func (t *Tracker) Observe(tr provision.Transition) {
	k := chainKey{tr.Prefix, tr.Variant}

	t.mu.Lock()
	c := t.chainLocked(k, tr.At)
	c.State = tr.To
	c.Updated = t.stamp(tr.At)
	if tr.Err != nil {
		c.Error = tr.Err.Error()
	}
	if names, err := provision.ChainNames(tr.Prefix, tr.Variant); err == nil {
		t.byIndexer[names.Indexer] = k
	}
	snap, listeners := *c, t.listeners
	t.mu.Unlock()

	notify(listeners, snap)
}

// Poll records a status fetch. It has the provision.Options.OnPoll signature.
func (t *Tracker) Poll(indexer string, st search.IndexerStatus, polls int) {
	t.mu.Lock()
	k, ok := t.byIndexer[indexer]
	if !ok {
		t.mu.Unlock()
		return
	}
	c := t.chains[k]
	c.Polls = polls
	c.JobStatus = st.Status.String()
	c.ItemsProcessed = st.ItemsProcessed
	c.ItemsFailed = st.ItemsFailed
	c.Updated = t.now()
	snap, listeners := *c, t.listeners
	t.mu.Unlock()

	notify(listeners, snap)
}

// Fail records an error that happened outside the orchestrator, such as a
// lock conflict, against a chain.
func (t *Tracker) Fail(prefix string, variant schema.Variant, err error) {
	k := chainKey{prefix, variant}

	t.mu.Lock()
	c := t.chainLocked(k, time.Time{})
	c.State = provision.StateFailed
	c.Error = err.Error()
	c.Updated = t.now()
	snap, listeners := *c, t.listeners
	t.mu.Unlock()

	notify(listeners, snap)
}

// Snapshot returns every chain in first-seen order.
func (t *Tracker) Snapshot() []ChainProgress {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]ChainProgress, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, *t.chains[k])
	}
	return out
}

// Get returns the progress of one chain.
func (t *Tracker) Get(prefix string, variant schema.Variant) (ChainProgress, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.chains[chainKey{prefix, variant}]
	if !ok {
		return ChainProgress{}, false
	}
	return *c, true
}

// Counts returns how many chains are done, failed and still in flight.
func (t *Tracker) Counts() (done, failed, active int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, c := range t.chains {
		switch c.State {
		case provision.StateDone:
			done++
		case provision.StateFailed:
			failed++
		default:
			active++
		}
	}
	return done, failed, active
}

func (t *Tracker) chainLocked(k chainKey, at time.Time) *ChainProgress {
	c, ok := t.chains[k]
	if !ok {
		start := t.stamp(at)
		c = &ChainProgress{Prefix: k.prefix, Variant: k.variant, State: provision.StateUnstarted, Started: start, Updated: start}
		t.chains[k] = c
		t.order = append(t.order, k)
	}
	return c
}

func (t *Tracker) stamp(at time.Time) time.Time {
	if at.IsZero() {
		return t.now()
	}
	return at
}

func notify(listeners []func(ChainProgress), c ChainProgress) {
	for _, fn := range listeners {
		fn(c)
	}
}
