package contract

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/formstream/backend/internal/models"
)

// DefinitionsCollection is the Mongo collection holding document definitions.
const DefinitionsCollection = "document_definitions"

// MongoResolver reads document definitions from MongoDB.
type MongoResolver struct {
	col *mongo.Collection
}

func NewMongoResolver(db *mongo.Database) *MongoResolver {
	return &MongoResolver{col: db.Collection(DefinitionsCollection)}
}

func (r *MongoResolver) Definition(ctx context.Context, documentID string) (*models.DocumentDefinition, error) {
	var def models.DocumentDefinition
	err := r.col.FindOne(ctx, bson.M{"_id": documentID}).Decode(&def)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", ErrDefinitionNotFound, documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading definition %s: %w", documentID, err)
	}
	return &def, nil
}

func (r *MongoResolver) Headers(ctx context.Context, documentID string) ([]string, error) {
	def, err := r.Definition(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return canonicalHeaders(def), nil
}

var _ Resolver = (*MongoResolver)(nil)
