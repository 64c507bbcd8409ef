package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"brainstorm/internal/model"
)

const listOpenLimit = 100

// SessionRepo is the durable store for session records. Writes that
// depend on the current state of the record are conditional and report
// whether they applied.
type SessionRepo interface {
	Create(ctx context.Context, session *model.Session) error
	GetByID(ctx context.Context, id string) (*model.Session, error)
	GetByCode(ctx context.Context, code string) (*model.Session, error)
	ListOpen(ctx context.Context) ([]*model.Session, error)

	// AddParticipant appends userID unless the session is completed, already
	// holds userID, or has max participants.
	AddParticipant(ctx context.Context, id string, userID primitive.ObjectID, max int) (bool, error)
	// RemoveParticipant pulls userID unless the session is completed. A
	// non-nil action is appended to the history in the same write.
	RemoveParticipant(ctx context.Context, id string, userID primitive.ObjectID, action *model.Action) (bool, error)
	// TransitionStatus sets status to `to` only if it is currently one of
	// from.
	TransitionStatus(ctx context.Context, id string, from []model.SessionStatus, to model.SessionStatus, action *model.Action) (bool, error)

	AppendIdea(ctx context.Context, id string, idea model.Idea) error
	AppendAIResult(ctx context.Context, id string, result model.AIResult) error

	EnsureIndexes(ctx context.Context) error
}

type sessionRepo struct {
	collection *mongo.Collection
}

func NewSessionRepo(db *mongo.Database) SessionRepo {
	return &sessionRepo{
		collection: db.Collection("sessions"),
	}
}

func (r *sessionRepo) Create(ctx context.Context, session *model.Session) error {
	now := time.Now().UTC()
	if session.ID.IsZero() {
		session.ID = primitive.NewObjectID()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	_, err := r.collection.InsertOne(ctx, session)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *sessionRepo) GetByID(ctx context.Context, id string) (*model.Session, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

func (r *sessionRepo) GetByCode(ctx context.Context, code string) (*model.Session, error) {
	return r.findOne(ctx, bson.M{"roomCode": code})
}

func (r *sessionRepo) findOne(ctx context.Context, filter bson.M) (*model.Session, error) {
	var session model.Session
	err := r.collection.FindOne(ctx, filter).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &session, nil
}

func (r *sessionRepo) ListOpen(ctx context.Context) ([]*model.Session, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(listOpenLimit)

	cursor, err := r.collection.Find(ctx, bson.M{"status": bson.M{"$ne": model.SessionCompleted}}, opts)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer cursor.Close(ctx)

	sessions := []*model.Session{}
	if err = cursor.All(ctx, &sessions); err != nil {
		return nil, fmt.Errorf("decode sessions: %w", err)
	}
	return sessions, nil
}

func (r *sessionRepo) AddParticipant(ctx context.Context, id string, userID primitive.ObjectID, max int) (bool, error) {
	oid, err := parseID(id)
	if err != nil {
		return false, err
	}
	filter := bson.M{
		"_id":          oid,
		"status":       bson.M{"$ne": model.SessionCompleted},
		"participants": bson.M{"$ne": userID},
		// array index max-1 exists iff the array already holds max entries
		fmt.Sprintf("participants.%d", max-1): bson.M{"$exists": false},
	}
	update := bson.M{
		"$push": bson.M{"participants": userID},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	}
	return r.updateOne(ctx, filter, update)
}

func (r *sessionRepo) RemoveParticipant(ctx context.Context, id string, userID primitive.ObjectID, action *model.Action) (bool, error) {
	oid, err := parseID(id)
	if err != nil {
		return false, err
	}
	filter := bson.M{
		"_id":          oid,
		"status":       bson.M{"$ne": model.SessionCompleted},
		"participants": userID,
	}
	update := bson.M{
		"$pull": bson.M{"participants": userID},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	}
	if action != nil {
		update["$push"] = bson.M{"history": action}
	}
	return r.updateOne(ctx, filter, update)
}

func (r *sessionRepo) TransitionStatus(ctx context.Context, id string, from []model.SessionStatus, to model.SessionStatus, action *model.Action) (bool, error) {
	oid, err := parseID(id)
	if err != nil {
		return false, err
	}
	filter := bson.M{
		"_id":    oid,
		"status": bson.M{"$in": from},
	}
	update := bson.M{
		"$set": bson.M{"status": to, "updatedAt": time.Now().UTC()},
	}
	if action != nil {
		update["$push"] = bson.M{"history": action}
	}
	return r.updateOne(ctx, filter, update)
}

func (r *sessionRepo) AppendIdea(ctx context.Context, id string, idea model.Idea) error {
	return r.push(ctx, id, "ideas", idea)
}

func (r *sessionRepo) AppendAIResult(ctx context.Context, id string, result model.AIResult) error {
	return r.push(ctx, id, "aiResults", result)
}

// push appends value to field of a session that is not completed
func (r *sessionRepo) push(ctx context.Context, id, field string, value interface{}) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}
	filter := bson.M{
		"_id":    oid,
		"status": bson.M{"$ne": model.SessionCompleted},
	}
	update := bson.M{
		"$push": bson.M{field: value},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	}
	ok, err := r.updateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	return nil
}

func (r *sessionRepo) updateOne(ctx context.Context, filter, update bson.M) (bool, error) {
	res, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("update session: %w", err)
	}
	return res.MatchedCount == 1, nil
}

func (r *sessionRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "roomCode", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}},
		},
	})
	if err != nil {
		return fmt.Errorf("create session indexes: %w", err)
	}
	return nil
}
