package repository

import (
	"context"
	"errors"
	"time"

	"nesugoshipanic/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SessionRepo handles MongoDB operations for game-session documents.
type SessionRepo interface {
	// Get returns nil, nil when the ID is unknown.
	Get(ctx context.Context, gameID string) (*model.Session, error)
	// Create inserts a new session; the _id is the game ID, so this doubles
	// as the atomic reserve step of ID allocation. Returns ErrDuplicateID
	// when the ID is already taken.
	Create(ctx context.Context, session *model.Session) error
	// Update applies a partial $set to an existing session.
	Update(ctx context.Context, gameID string, fields bson.M) error
	// FindRootByOwner returns the user's stage-1 session, or nil, nil.
	FindRootByOwner(ctx context.Context, lineUserID string) (*model.Session, error)
	// TopCompleted returns root sessions with stage 3 completed, best total
	// first, at most limit rows.
	TopCompleted(ctx context.Context, limit int) ([]*model.Session, error)
}

type sessionRepo struct {
	collection *mongo.Collection
}

// NewSessionRepo creates a new session repository on the gameIds collection.
func NewSessionRepo(db *mongo.Database) SessionRepo {
	return &sessionRepo{
		collection: db.Collection("gameIds"),
	}
}

func (r *sessionRepo) Get(ctx context.Context, gameID string) (*model.Session, error) {
	var session model.Session
	err := withRetry(ctx, func(ctx context.Context) error {
		return r.collection.FindOne(ctx, bson.M{"_id": gameID}).Decode(&session)
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) Create(ctx context.Context, session *model.Session) error {
	now := time.Now()
	session.CreatedAt = now
	session.UpdatedAt = now

	err := withRetry(ctx, func(ctx context.Context) error {
		_, err := r.collection.InsertOne(ctx, session)
		return err
	})
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateID
	}
	return err
}

func (r *sessionRepo) Update(ctx context.Context, gameID string, fields bson.M) error {
	set := bson.M{"updatedAt": time.Now()}
	for k, v := range fields {
		set[k] = v
	}

	var res *mongo.UpdateResult
	err := withRetry(ctx, func(ctx context.Context) error {
		var err error
		res, err = r.collection.UpdateByID(ctx, gameID, bson.M{"$set": set})
		return err
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNoDocument
	}
	return nil
}

func (r *sessionRepo) FindRootByOwner(ctx context.Context, lineUserID string) (*model.Session, error) {
	var session model.Session
	err := withRetry(ctx, func(ctx context.Context) error {
		return r.collection.FindOne(ctx, bson.M{
			"lineUserId": lineUserID,
			"stage":      1,
		}).Decode(&session)
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) TopCompleted(ctx context.Context, limit int) ([]*model.Session, error) {
	// totalScore exists only on root records, so derived stage-3 documents
	// never show up here even though their stage3Completed flag is true.
	filter := bson.M{
		"stage3Completed": true,
		"totalScore":      bson.M{"$exists": true},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "totalScore", Value: -1}}).
		SetLimit(int64(limit))

	var sessions []*model.Session
	err := withRetry(ctx, func(ctx context.Context) error {
		cursor, err := r.collection.Find(ctx, filter, opts)
		if err != nil {
			return err
		}
		defer cursor.Close(ctx)
		sessions = sessions[:0]
		return cursor.All(ctx, &sessions)
	})
	if err != nil {
		return nil, err
	}
	return sessions, nil
}
