// Package provision creates collections and their declared indexes at boot
// and tracks which collections are ready for use.
package provision

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iyobo/jollof-data-arangodb/internal/domain"
	"github.com/iyobo/jollof-data-arangodb/internal/metrics"
)

// Outcome is the result class of a single provisioning step.
type Outcome int

const (
	OutcomeCreated Outcome = iota
	OutcomeAlreadyExists
	OutcomeSkipped
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeAlreadyExists:
		return "already_exists"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// IndexOutcome is what happened to one IndexSpec.
type IndexOutcome struct {
	Spec    domain.IndexSpec
	Outcome Outcome
	Err     error
}

// Classify maps a backend result onto an Outcome. A duplicate is tolerated,
// anything else non-nil is a failure.
func Classify(created bool, err error) Outcome {
	switch {
	case err == nil && created:
		return OutcomeCreated
	case err == nil, errors.Is(err, domain.ErrAlreadyExists):
		return OutcomeAlreadyExists
	default:
		return OutcomeFailed
	}
}

// EnsureIndexes attempts every spec exactly once, concurrently up to workers
// at a time. A failing spec does not cancel the others. Outcomes are returned
// and logged in declaration order.
func EnsureIndexes(
	ctx context.Context,
	backend domain.IndexBackend,
	logger *zap.Logger,
	collection string,
	specs []domain.IndexSpec,
	workers int,
) []IndexOutcome {
	outcomes := make([]IndexOutcome, len(specs))

	// Plain Group: no shared context, so one failure never cancels siblings.
	var g errgroup.Group
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, spec := range specs {
		i, spec := i, spec
		g.Go(func() error {
			outcomes[i] = ensureIndex(ctx, backend, collection, spec)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		fields := []zap.Field{
			zap.String("collection", collection),
			zap.String("kind", o.Spec.Kind.String()),
			zap.Strings("fields", o.Spec.Fields),
		}
		switch o.Outcome {
		case OutcomeFailed:
			logger.Error("index creation failed", append(fields, zap.Error(o.Err))...)
		case OutcomeSkipped:
			logger.Debug("index skipped", append(fields, zap.String("subtype", o.Spec.Subtype))...)
		default:
			logger.Debug("index ensured", append(fields, zap.Stringer("outcome", o.Outcome))...)
		}
		metrics.ObserveIndex(o.Spec.Kind.String(), o.Outcome.String())
	}

	return outcomes
}

func ensureIndex(ctx context.Context, b domain.IndexBackend, collection string, spec domain.IndexSpec) (out IndexOutcome) {
	out.Spec = spec
	defer func() {
		if r := recover(); r != nil {
			out.Outcome = OutcomeFailed
			out.Err = fmt.Errorf("panic while creating index: %v", r)
		}
	}()

	var (
		created bool
		err     error
	)

	switch spec.Kind {
	case domain.IndexGeo:
		if !spec.IsGeoPoint() {
			out.Outcome = OutcomeSkipped
			return out
		}
		created, err = b.EnsureGeoIndex(ctx, collection, spec.Fields, spec.Opts)
	case domain.IndexList:
		created, err = b.EnsureSkipListIndex(ctx, collection, spec.Fields, spec.Opts)
	case domain.IndexPersistent:
		created, err = b.EnsurePersistentIndex(ctx, collection, spec.Fields, spec.Opts)
	case domain.IndexHash:
		created, err = b.EnsureHashIndex(ctx, collection, spec.Fields, spec.Opts)
	case domain.IndexFullText:
		field, ok := spec.FullTextField()
		if !ok {
			out.Outcome = OutcomeSkipped
			return out
		}
		created, err = b.EnsureFullTextIndex(ctx, collection, field, spec.Opts)
	default:
		out.Outcome = OutcomeSkipped
		return out
	}

	out.Outcome = Classify(created, err)
	if out.Outcome == OutcomeFailed {
		out.Err = err
	}
	return out
}
