// Package contract resolves the header contract a bulk file must satisfy
// before its rows may be ingested.
package contract

import (
	"context"
	"errors"

	"github.com/formstream/backend/internal/models"
	"github.com/formstream/backend/internal/normalize"
)

// ErrDefinitionNotFound is returned when no contract exists for a document id.
var ErrDefinitionNotFound = errors.New("document definition not found")

// Resolver looks up document definitions and their canonical header sets.
type Resolver interface {
	// Definition returns the full stored definition.
	Definition(ctx context.Context, documentID string) (*models.DocumentDefinition, error)
	// Headers returns the canonical (trimmed, lowercased) header list for the
	// document, in contract field order.
	Headers(ctx context.Context, documentID string) ([]string, error)
}

// canonicalHeaders is shared by both resolver implementations.
func canonicalHeaders(def *models.DocumentDefinition) []string {
	return normalize.Headers(def.HeaderLabels())
}
