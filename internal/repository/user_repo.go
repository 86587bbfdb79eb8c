package repository

import (
	"context"
	"errors"

	"nesugoshipanic/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UserRepo handles MongoDB operations for per-user documents.
type UserRepo interface {
	// Get returns nil, nil when the user is unknown.
	Get(ctx context.Context, lineUserID string) (*model.User, error)
	// Merge upserts the given fields onto the user document, leaving all
	// other fields intact. Callers must not pass empty values they do not
	// mean to store; notably the email is merge-only.
	Merge(ctx context.Context, lineUserID string, fields bson.M) error
}

type userRepo struct {
	collection *mongo.Collection
}

// NewUserRepo creates a new user repository on the users collection.
func NewUserRepo(db *mongo.Database) UserRepo {
	return &userRepo{
		collection: db.Collection("users"),
	}
}

func (r *userRepo) Get(ctx context.Context, lineUserID string) (*model.User, error) {
	var user model.User
	err := withRetry(ctx, func(ctx context.Context) error {
		return r.collection.FindOne(ctx, bson.M{"_id": lineUserID}).Decode(&user)
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) Merge(ctx context.Context, lineUserID string, fields bson.M) error {
	return withRetry(ctx, func(ctx context.Context) error {
		_, err := r.collection.UpdateByID(ctx, lineUserID,
			bson.M{"$set": fields},
			options.Update().SetUpsert(true))
		return err
	})
}
