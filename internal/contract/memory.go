package contract

import (
	"context"
	"fmt"
	"sync"

	"github.com/formstream/backend/internal/models"
)

// MemoryResolver is an in-memory Resolver used in tests and local development.
type MemoryResolver struct {
	mu   sync.RWMutex
	defs map[string]*models.DocumentDefinition
}

func NewMemoryResolver() *MemoryResolver {
	return &MemoryResolver{defs: make(map[string]*models.DocumentDefinition)}
}

// Put stores or replaces a definition.
func (r *MemoryResolver) Put(def *models.DocumentDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[def.ID] = def
}

func (r *MemoryResolver) Definition(ctx context.Context, documentID string) (*models.DocumentDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[documentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDefinitionNotFound, documentID)
	}
	return def, nil
}

func (r *MemoryResolver) Headers(ctx context.Context, documentID string) ([]string, error) {
	def, err := r.Definition(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return canonicalHeaders(def), nil
}

var _ Resolver = (*MemoryResolver)(nil)
