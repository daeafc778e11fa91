package repositories

import (
	"context"

	"github.com/hanko-field/configurator/internal/domain"
)

// RepositoryError wraps persistence failures with the categories services branch on.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// PricebookRepository stores immutable pricebook versions and a pointer to
// the version currently used for pricing.
type PricebookRepository interface {
	// Current returns the active snapshot.
	Current(ctx context.Context) (domain.PricebookSnapshot, error)
	// Get returns a specific version.
	Get(ctx context.Context, version string) (domain.PricebookSnapshot, error)
	// Create stores a new version; an existing version is a conflict.
	Create(ctx context.Context, snapshot domain.PricebookSnapshot) error
	// Activate points Current at an existing version.
	Activate(ctx context.Context, version string) error
	// ListVersions returns stored versions, newest first.
	ListVersions(ctx context.Context, limit int) ([]string, error)
}

// HealthRepository reports dependency status for readiness probes.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.HealthReport, error)
}
