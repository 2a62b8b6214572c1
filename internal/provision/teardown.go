package provision

import (
	"context"
	"errors"
	"log/slog"

	cerrors "github.com/Aman-CERP/corpusctl/internal/errors"
	"github.com/Aman-CERP/corpusctl/internal/naming"
	"github.com/Aman-CERP/corpusctl/internal/schema"
	"github.com/Aman-CERP/corpusctl/internal/search"
)

type target struct {
	role naming.Role
	kind search.Kind
	name string
}

// teardownOrder lists a chain's resources, dependents first.
func teardownOrder(names naming.Names, variant schema.Variant) []target {
	out := []target{
		{naming.RoleIndexer, search.KindIndexer, names.Indexer},
		{naming.RoleDataSource, search.KindDataSource, names.DataSource},
		{naming.RoleIndex, search.KindIndex, names.Index},
	}
	if variant == schema.VariantDocument {
		out = append(out,
			target{role: naming.RoleSkillset, kind: search.KindSkillset, name: names.Skillset},
			target{role: naming.RoleContainer, name: names.Container},
			target{role: naming.RoleImageContainer, name: names.ImageContainer},
		)
	}
	return out
}

// DeleteResources deletes every resource of the chain for prefix: indexer,
// data source, index, then for documents the skillset and the knowledge-store
// containers. A missing resource counts as deleted. Every resource is
// attempted; failures are joined TeardownErrors.
func (o *Orchestrator) DeleteResources(ctx context.Context, prefix string, variant schema.Variant) error {
	names, err := ChainNames(prefix, variant)
	if err != nil {
		return err
	}

	var errs []error
	deleted, absent := 0, 0
	for _, t := range teardownOrder(names, variant) {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		var derr error
		if t.kind == "" {
			if o.containers == nil {
				o.logger.Warn("teardown_container_skipped",
					slog.String("prefix", prefix),
					slog.String("container", t.name))
				continue
			}
			derr = o.containers.DeleteContainer(ctx, t.name)
		} else {
			derr = o.svc.Delete(ctx, t.kind, t.name)
		}

		switch {
		case derr == nil:
			deleted++
			o.logger.Info("resource_deleted",
				slog.String("prefix", prefix),
				slog.String("role", string(t.role)),
				slog.String("name", t.name))
		case cerrors.IsNotFound(derr):
			absent++
			o.logger.Debug("resource_absent",
				slog.String("role", string(t.role)),
				slog.String("name", t.name))
		default:
			o.logger.Error("resource_delete_failed",
				append([]any{slog.String("role", string(t.role)), slog.String("name", t.name)},
					cerrors.LogAttrs(derr)...)...)
			errs = append(errs, &TeardownError{Role: t.role, Resource: t.name, Cause: derr})
		}
	}

	o.logger.Info("teardown_completed",
		slog.String("prefix", prefix),
		slog.String("variant", string(variant)),
		slog.Int("deleted", deleted),
		slog.Int("absent", absent),
		slog.Int("failed", len(errs)))
	return errors.Join(errs...)
}

// ResourceState is the existence of one resource of a chain.
type ResourceState struct {
	Role   naming.Role
	Name   string
	Exists bool
	Err    error
}

// Inspect reports which resources of a chain exist. Lookup failures are
// recorded per resource.
func (o *Orchestrator) Inspect(ctx context.Context, prefix string, variant schema.Variant) ([]ResourceState, error) {
	names, err := ChainNames(prefix, variant)
	if err != nil {
		return nil, err
	}
	order := teardownOrder(names, variant)
	out := make([]ResourceState, 0, len(order))
	// Report in creation order.
	for i := len(order) - 1; i >= 0; i-- {
		t := order[i]
		rs := ResourceState{Role: t.role, Name: t.name}
		switch {
		case t.kind != "":
			rs.Exists, rs.Err = o.svc.Exists(ctx, t.kind, t.name)
		case o.containers != nil:
			rs.Exists, rs.Err = o.containers.Exists(ctx, t.name)
		default:
			continue
		}
		out = append(out, rs)
	}
	return out, nil
}
