// Package naming derives every remote resource name from a caller-supplied prefix.
//
// Creation, status and teardown all resolve names through this package so the
// conventions cannot drift between code paths.
package naming

import (
	"strings"

	cerrors "github.com/Aman-CERP/corpusctl/internal/errors"
)

// Role identifies the kind of resource a name belongs to.
type Role string

const (
	RoleIndex          Role = "index"
	RoleDataSource     Role = "datasource"
	RoleSkillset       Role = "skillset"
	RoleIndexer        Role = "indexer"
	RoleContainer      Role = "container"
	RoleImageContainer Role = "imagecontainer"
)

// Roles lists every role in resolution order.
var Roles = []Role{RoleIndex, RoleDataSource, RoleSkillset, RoleIndexer, RoleContainer, RoleImageContainer}

// chunkSuffix scopes chunk-chain resources under the document prefix.
const chunkSuffix = "-chunk"

// containerSuffix is appended before separators are stripped.
const containerSuffix = "ChunkIndex"

// separators are removed from blob container names.
var separators = strings.NewReplacer("-", "", "_", "", ".", "")

// ValidatePrefix rejects prefixes that are empty or that end in the suffix
// reserved for chunk chains. Without that rule "x" (chunk) and "x-chunk"
// (document) would own the same resources.
func ValidatePrefix(prefix string) error {
	if strings.TrimSpace(prefix) == "" {
		return cerrors.New(cerrors.ErrCodeInvalidPrefix, "prefix must not be empty", nil).
			WithSuggestion("Pass a short identifier such as 'contoso-hr'")
	}
	if strings.HasSuffix(strings.ToLower(prefix), chunkSuffix) {
		return cerrors.New(cerrors.ErrCodeInvalidPrefix,
			"prefix must not end in "+chunkSuffix+": "+prefix, nil).
			WithDetail("prefix", prefix).
			WithSuggestion("The " + chunkSuffix + " suffix is reserved for chunk chains; use --variant chunk with the document prefix")
	}
	return nil
}

// Resolve returns the name of role for prefix.
// Search resources are named {prefix}-{role}. Blob containers only allow lowercase
// alphanumerics, so the container name strips separators and lowercases.
func Resolve(prefix string, role Role) (string, error) {
	if err := ValidatePrefix(prefix); err != nil {
		return "", err
	}
	return resolve(prefix, role)
}

func resolve(prefix string, role Role) (string, error) {
	switch role {
	case RoleIndex, RoleDataSource, RoleSkillset, RoleIndexer:
		return prefix + "-" + string(role), nil
	case RoleContainer:
		return containerName(prefix), nil
	case RoleImageContainer:
		return containerName(prefix) + "images", nil
	default:
		return "", cerrors.ValidationError("unknown resource role: "+string(role), nil)
	}
}

func containerName(prefix string) string {
	return strings.ToLower(separators.Replace(prefix + containerSuffix))
}

// ChunkPrefix returns the prefix the chunk chain resolves its names against.
func ChunkPrefix(prefix string) string {
	return prefix + chunkSuffix
}

// Names holds every resolved name of one resource chain.
type Names struct {
	Prefix         string
	Index          string
	DataSource     string
	Skillset       string
	Indexer        string
	Container      string
	ImageContainer string
}

// Derive resolves all names of the document chain for prefix.
func Derive(prefix string) (Names, error) {
	if err := ValidatePrefix(prefix); err != nil {
		return Names{}, err
	}
	return derive(prefix)
}

// DeriveChunk resolves all names of the chunk chain built over prefix's
// document chain. prefix is the document prefix, not ChunkPrefix(prefix).
func DeriveChunk(prefix string) (Names, error) {
	if err := ValidatePrefix(prefix); err != nil {
		return Names{}, err
	}
	return derive(ChunkPrefix(prefix))
}

func derive(prefix string) (Names, error) {
	n := Names{Prefix: prefix}
	targets := map[Role]*string{
		RoleIndex:          &n.Index,
		RoleDataSource:     &n.DataSource,
		RoleSkillset:       &n.Skillset,
		RoleIndexer:        &n.Indexer,
		RoleContainer:      &n.Container,
		RoleImageContainer: &n.ImageContainer,
	}
	for _, role := range Roles {
		name, err := resolve(prefix, role)
		if err != nil {
			return Names{}, err
		}
		*targets[role] = name
	}
	return n, nil
}
