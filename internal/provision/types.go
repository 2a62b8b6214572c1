package provision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Aman-CERP/corpusctl/internal/naming"
	"github.com/Aman-CERP/corpusctl/internal/schema"
	"github.com/Aman-CERP/corpusctl/internal/search"
)

// Service is the subset of the search service the orchestrator drives.
// *search.Client implements it.
type Service interface {
	CreateIndex(ctx context.Context, ix schema.Index) error
	CreateDataSource(ctx context.Context, ds schema.DataSource) error
	CreateSkillset(ctx context.Context, ss schema.Skillset) error
	CreateIndexer(ctx context.Context, ix schema.Indexer) error
	RunIndexer(ctx context.Context, name string) error
	IndexerStatus(ctx context.Context, name string) (search.IndexerStatus, error)
	Delete(ctx context.Context, kind search.Kind, name string) error
	Exists(ctx context.Context, kind search.Kind, name string) (bool, error)
}

// ContainerStore deletes knowledge-store blob containers.
type ContainerStore interface {
	DeleteContainer(ctx context.Context, name string) error
	Exists(ctx context.Context, name string) (bool, error)
}

// Stage names the step of a provisioning run.
type Stage string

const (
	StageValidate   Stage = "validate"
	StageIndex      Stage = "index"
	StageDataSource Stage = "datasource"
	StageSkillset   Stage = "skillset"
	StageIndexer    Stage = "indexer"
	StageRun        Stage = "run"
	StagePolling    Stage = "polling"
)

// State is the position of a resource chain in its provisioning lifecycle.
type State string

const (
	StateUnstarted         State = "unstarted"
	StateIndexCreated      State = "index_created"
	StateDataSourceCreated State = "datasource_created"
	StateSkillsetCreated   State = "skillset_created"
	StateIndexerCreated    State = "indexer_created"
	StatePolling           State = "polling"
	StateDone              State = "done"
	StateFailed            State = "failed"
)

// Transition is reported to an Observer on every state change.
type Transition struct {
	Prefix  string
	Variant schema.Variant
	From    State
	To      State
	// Err is set when To is StateFailed.
	Err error
	At  time.Time
}

// Observer receives state transitions. It is called synchronously.
type Observer func(Transition)

// Manifest records the names of one provisioned resource chain.
type Manifest struct {
	Prefix     string         `json:"prefix"`
	Variant    schema.Variant `json:"variant"`
	Index      string         `json:"index"`
	DataSource string         `json:"datasource"`
	// Skillset is empty for the chunk chain.
	Skillset string `json:"skillset,omitempty"`
	Indexer  string `json:"indexer"`
	// Container and ImageContainer are the knowledge-store containers the
	// document chain projects into. Empty for the chunk chain.
	Container      string    `json:"container,omitempty"`
	ImageContainer string    `json:"image_container,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Roles maps each resource role to its name. Roles with no resource are omitted.
func (m Manifest) Roles() map[naming.Role]string {
	out := map[naming.Role]string{
		naming.RoleIndex:      m.Index,
		naming.RoleDataSource: m.DataSource,
		naming.RoleIndexer:    m.Indexer,
	}
	if m.Skillset != "" {
		out[naming.RoleSkillset] = m.Skillset
	}
	if m.Container != "" {
		out[naming.RoleContainer] = m.Container
	}
	if m.ImageContainer != "" {
		out[naming.RoleImageContainer] = m.ImageContainer
	}
	return out
}

// JobResult is the terminal outcome of an indexer run. A non-success status
// is data, not an error.
type JobResult struct {
	Indexer string
	Status  search.JobStatus
	Detail  search.IndexerStatus
	// Polls counts status fetches, including failed ones.
	Polls int
}

// Succeeded reports whether the job completed successfully.
func (j JobResult) Succeeded() bool {
	return j.Status == search.JobSuccess
}

// Result is returned by CreateResources.
type Result struct {
	Manifest Manifest
	Job      JobResult
}

// ProvisioningError identifies the step a creation run failed at.
type ProvisioningError struct {
	Stage  Stage
	Prefix string
	Cause  error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provisioning %q failed at %s: %v", e.Prefix, e.Stage, e.Cause)
}

func (e *ProvisioningError) Unwrap() error {
	return e.Cause
}

// TeardownError is one resource that could not be deleted.
type TeardownError struct {
	Role     naming.Role
	Resource string
	Cause    error
}

func (e *TeardownError) Error() string {
	return fmt.Sprintf("delete %s %q: %v", e.Role, e.Resource, e.Cause)
}

func (e *TeardownError) Unwrap() error {
	return e.Cause
}

// TeardownErrors extracts every TeardownError from an error returned by
// DeleteResources or DeleteCorpus.
func TeardownErrors(err error) []*TeardownError {
	if err == nil {
		return nil
	}
	var te *TeardownError
	if u, ok := err.(interface{ Unwrap() []error }); ok {
		var out []*TeardownError
		for _, e := range u.Unwrap() {
			out = append(out, TeardownErrors(e)...)
		}
		return out
	}
	if errors.As(err, &te) {
		return []*TeardownError{te}
	}
	return nil
}

var _ Service = (*search.Client)(nil)
