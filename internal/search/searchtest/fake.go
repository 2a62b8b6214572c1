// Package searchtest provides an in-memory search service for tests.
package searchtest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	cerrors "github.com/Aman-CERP/corpusctl/internal/errors"
	"github.com/Aman-CERP/corpusctl/internal/schema"
	"github.com/Aman-CERP/corpusctl/internal/search"
)

// Op names a fake operation for error injection and call accounting.
type Op string

const (
	OpCreateIndex      Op = "create_index"
	OpCreateDataSource Op = "create_datasource"
	OpCreateSkillset   Op = "create_skillset"
	OpCreateIndexer    Op = "create_indexer"
	OpRunIndexer       Op = "run_indexer"
	OpDelete           Op = "delete"
	OpExists           Op = "exists"
	OpStatus           Op = "status"
	OpList             Op = "list"
	OpDeleteContainer  Op = "delete_container"
)

// Call is one recorded invocation.
type Call struct {
	Op   Op
	Kind search.Kind
	Name string
}

// Service is an in-memory stand-in for the search service. Creates fail with
// a conflict when the resource exists, and with a reference-not-found error
// when a referenced resource is missing or not yet visible.
type Service struct {
	mu sync.Mutex

	resources map[search.Kind]map[string]any
	// lag counts remaining invisible lookups per data source name.
	lag map[string]int

	failures map[Op][]error
	statuses map[string][]search.IndexerStatus
	polls    map[string]int
	calls    []Call

	// SettleLag makes a newly created data source invisible to the next N
	// dependent creates that reference it.
	SettleLag int
}

// NewService creates an empty fake service.
func NewService() *Service {
	return &Service{
		resources: make(map[search.Kind]map[string]any),
		lag:       make(map[string]int),
		failures:  make(map[Op][]error),
		statuses:  make(map[string][]search.IndexerStatus),
		polls:     make(map[string]int),
	}
}

// FailNext makes the next calls of op return errs, one per call, in order.
func (s *Service) FailNext(op Op, errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = append(s.failures[op], errs...)
}

// ScriptStatus sets the statuses returned by successive polls of indexer.
// The last entry repeats once the script is exhausted.
func (s *Service) ScriptStatus(indexer string, statuses ...search.JobStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]search.IndexerStatus, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, search.IndexerStatus{Status: st, LastResult: st.String()})
	}
	s.statuses[indexer] = out
}

// ScriptIndexerStatus sets full status snapshots for successive polls of
// indexer, for tests that need start times or item counts. The last entry
// repeats once the script is exhausted.
func (s *Service) ScriptIndexerStatus(indexer string, statuses ...search.IndexerStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[indexer] = append([]search.IndexerStatus(nil), statuses...)
}

// ScriptServiceStatus scripts successive polls of indexer from the raw values
// the service reports: the indexer status and each poll's lastResult status.
// The job status is derived with search.ParseJobStatus.
func (s *Service) ScriptServiceStatus(indexer, serviceStatus string, lastResults ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]search.IndexerStatus, 0, len(lastResults))
	for _, lr := range lastResults {
		out = append(out, search.IndexerStatus{
			Status:        search.ParseJobStatus(serviceStatus, lr),
			ServiceStatus: serviceStatus,
			LastResult:    lr,
		})
	}
	s.statuses[indexer] = out
}

// Polls returns how many status fetches indexer has received.
func (s *Service) Polls(indexer string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls[indexer]
}

// Calls returns every recorded call in order.
func (s *Service) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Has reports whether a resource exists.
func (s *Service) Has(kind search.Kind, name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.resources[kind][name]
	return ok
}

// Get returns the stored definition of a resource.
func (s *Service) Get(kind search.Kind, name string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.resources[kind][name]
	return v, ok
}

// Names lists the resources of kind, sorted.
func (s *Service) Names(kind search.Kind) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.namesLocked(kind)
}

// Count returns the total number of resources across kinds.
func (s *Service) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.resources {
		n += len(m)
	}
	return n
}

// Put stores a resource directly, bypassing checks.
func (s *Service) Put(kind search.Kind, name string, def any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(kind, name, def)
}

func (s *Service) CreateIndex(_ context.Context, ix schema.Index) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(OpCreateIndex, search.KindIndex, ix.Name); err != nil {
		return err
	}
	if err := schema.ValidateIndex(ix); err != nil {
		return cerrors.New(cerrors.ErrCodeRequestRejected, "index rejected", err)
	}
	return s.createLocked(search.KindIndex, ix.Name, ix)
}

func (s *Service) CreateDataSource(_ context.Context, ds schema.DataSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(OpCreateDataSource, search.KindDataSource, ds.Name); err != nil {
		return err
	}
	if err := s.createLocked(search.KindDataSource, ds.Name, ds); err != nil {
		return err
	}
	if s.SettleLag > 0 {
		s.lag[ds.Name] = s.SettleLag
	}
	return nil
}

func (s *Service) CreateSkillset(_ context.Context, ss schema.Skillset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(OpCreateSkillset, search.KindSkillset, ss.Name); err != nil {
		return err
	}
	return s.createLocked(search.KindSkillset, ss.Name, ss)
}

func (s *Service) CreateIndexer(_ context.Context, ix schema.Indexer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(OpCreateIndexer, search.KindIndexer, ix.Name); err != nil {
		return err
	}
	if err := s.requireLocked(search.KindDataSource, ix.DataSourceName); err != nil {
		return err
	}
	if err := s.requireLocked(search.KindIndex, ix.TargetIndexName); err != nil {
		return err
	}
	if ix.SkillsetName != "" {
		if err := s.requireLocked(search.KindSkillset, ix.SkillsetName); err != nil {
			return err
		}
	}
	if err := s.createLocked(search.KindIndexer, ix.Name, ix); err != nil {
		return err
	}
	if _, ok := s.statuses[ix.Name]; !ok {
		s.statuses[ix.Name] = []search.IndexerStatus{{Status: search.JobSuccess, ServiceStatus: "running", LastResult: "success"}}
	}
	return nil
}

func (s *Service) RunIndexer(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(OpRunIndexer, search.KindIndexer, name); err != nil {
		return err
	}
	if _, ok := s.resources[search.KindIndexer][name]; !ok {
		return cerrors.NotFoundError(fmt.Sprintf("indexer %q not found", name), nil)
	}
	s.polls[name] = 0
	return nil
}

func (s *Service) Delete(_ context.Context, kind search.Kind, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(OpDelete, kind, name); err != nil {
		return err
	}
	if _, ok := s.resources[kind][name]; !ok {
		return cerrors.NotFoundError(fmt.Sprintf("%s %q not found", kind.Singular(), name), nil)
	}
	delete(s.resources[kind], name)
	if kind == search.KindIndexer {
		delete(s.statuses, name)
		delete(s.polls, name)
	}
	return nil
}

func (s *Service) Exists(_ context.Context, kind search.Kind, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(OpExists, kind, name); err != nil {
		return false, err
	}
	_, ok := s.resources[kind][name]
	return ok, nil
}

func (s *Service) List(_ context.Context, kind search.Kind) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(OpList, kind, ""); err != nil {
		return nil, err
	}
	return s.namesLocked(kind), nil
}

func (s *Service) IndexerStatus(_ context.Context, name string) (search.IndexerStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls[name]++
	if err := s.begin(OpStatus, search.KindIndexer, name); err != nil {
		return search.IndexerStatus{}, err
	}
	if _, ok := s.resources[search.KindIndexer][name]; !ok {
		return search.IndexerStatus{}, cerrors.NotFoundError(fmt.Sprintf("indexer %q not found", name), nil)
	}
	script := s.statuses[name]
	if len(script) == 0 {
		return search.IndexerStatus{Status: search.JobNotStarted}, nil
	}
	st := script[0]
	if len(script) > 1 {
		s.statuses[name] = script[1:]
	}
	return st, nil
}

// begin records the call and pops an injected failure, if any. Caller holds mu.
func (s *Service) begin(op Op, kind search.Kind, name string) error {
	s.calls = append(s.calls, Call{Op: op, Kind: kind, Name: name})
	if q := s.failures[op]; len(q) > 0 {
		s.failures[op] = q[1:]
		return q[0]
	}
	return nil
}

func (s *Service) createLocked(kind search.Kind, name string, def any) error {
	if _, ok := s.resources[kind][name]; ok {
		return cerrors.ConflictError(fmt.Sprintf("%s %q already exists", kind.Singular(), name), nil)
	}
	s.putLocked(kind, name, def)
	return nil
}

func (s *Service) putLocked(kind search.Kind, name string, def any) {
	if s.resources[kind] == nil {
		s.resources[kind] = make(map[string]any)
	}
	s.resources[kind][name] = def
}

func (s *Service) requireLocked(kind search.Kind, name string) error {
	_, ok := s.resources[kind][name]
	if ok && kind == search.KindDataSource && s.lag[name] > 0 {
		s.lag[name]--
		ok = false
	}
	if !ok {
		return cerrors.New(cerrors.ErrCodeReferenceNotFound,
			fmt.Sprintf("%s %q does not exist", kind.Singular(), name), nil)
	}
	return nil
}

func (s *Service) namesLocked(kind search.Kind) []string {
	names := make([]string, 0, len(s.resources[kind]))
	for n := range s.resources[kind] {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Containers is an in-memory blob container store.
type Containers struct {
	mu       sync.Mutex
	names    map[string]bool
	failures []error
	deleted  []string
}

// NewContainers creates a store holding the given containers.
func NewContainers(names ...string) *Containers {
	c := &Containers{names: make(map[string]bool)}
	for _, n := range names {
		c.names[n] = true
	}
	return c
}

// Add creates a container.
func (c *Containers) Add(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names[name] = true
}

// Has reports whether a container exists.
func (c *Containers) Has(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.names[name]
}

// FailNext makes the next deletes return errs in order.
func (c *Containers) FailNext(errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = append(c.failures, errs...)
}

// Deleted lists the containers delete was called for, in order.
func (c *Containers) Deleted() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.deleted...)
}

// DeleteContainer removes a container. A missing container is a not-found error.
func (c *Containers) DeleteContainer(_ context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, name)
	if len(c.failures) > 0 {
		err := c.failures[0]
		c.failures = c.failures[1:]
		return err
	}
	if !c.names[name] {
		return cerrors.NotFoundError(fmt.Sprintf("container %q not found", name), nil)
	}
	delete(c.names, name)
	return nil
}

// Exists reports whether a container exists.
func (c *Containers) Exists(_ context.Context, name string) (bool, error) {
	return c.Has(name), nil
}
