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

type UserRepo interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// GetMany returns the users found for ids, in the order of ids
	GetMany(ctx context.Context, ids []primitive.ObjectID) ([]*model.User, error)

	IncrementIdeas(ctx context.Context, id primitive.ObjectID, n int) error
	IncrementCreated(ctx context.Context, id primitive.ObjectID) error
	// RecordParticipation adds sessionID to the joined list of each user in
	// ids and bumps their joined counter, once per session.
	RecordParticipation(ctx context.Context, sessionID primitive.ObjectID, ids []primitive.ObjectID) (int64, error)

	Leaderboard(ctx context.Context, metric model.LeaderboardMetric, skip, limit int) ([]model.LeaderboardEntry, error)
	EnsureIndexes(ctx context.Context) error
}

type userRepo struct {
	collection *mongo.Collection
}

func NewUserRepo(db *mongo.Database) UserRepo {
	return &userRepo{
		collection: db.Collection("users"),
	}
}

func (r *userRepo) Create(ctx context.Context, user *model.User) error {
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	if user.SessionsJoined == nil {
		user.SessionsJoined = []primitive.ObjectID{}
	}

	_, err := r.collection.InsertOne(ctx, user)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *userRepo) findOne(ctx context.Context, filter bson.M) (*model.User, error) {
	var user model.User
	err := r.collection.FindOne(ctx, filter).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

func (r *userRepo) GetMany(ctx context.Context, ids []primitive.ObjectID) ([]*model.User, error) {
	if len(ids) == 0 {
		return []*model.User{}, nil
	}
	cursor, err := r.collection.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	defer cursor.Close(ctx)

	var found []*model.User
	if err = cursor.All(ctx, &found); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}

	byID := make(map[primitive.ObjectID]*model.User, len(found))
	for _, u := range found {
		byID[u.ID] = u
	}
	users := make([]*model.User, 0, len(found))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			users = append(users, u)
		}
	}
	return users, nil
}

func (r *userRepo) IncrementIdeas(ctx context.Context, id primitive.ObjectID, n int) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$inc": bson.M{"metrics.ideasContributed": n}},
	)
	if err != nil {
		return fmt.Errorf("increment ideas: %w", err)
	}
	return nil
}

func (r *userRepo) IncrementCreated(ctx context.Context, id primitive.ObjectID) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$inc": bson.M{"metrics.sessionsCreated": 1}},
	)
	if err != nil {
		return fmt.Errorf("increment created: %w", err)
	}
	return nil
}

func (r *userRepo) RecordParticipation(ctx context.Context, sessionID primitive.ObjectID, ids []primitive.ObjectID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.collection.UpdateMany(ctx,
		bson.M{
			"_id":            bson.M{"$in": ids},
			"sessionsJoined": bson.M{"$ne": sessionID},
		},
		bson.M{
			"$addToSet": bson.M{"sessionsJoined": sessionID},
			"$inc":      bson.M{"metrics.sessionsJoined": 1},
		},
	)
	if err != nil {
		return 0, fmt.Errorf("record participation: %w", err)
	}
	return res.ModifiedCount, nil
}

type leaderboardRow struct {
	ID    primitive.ObjectID `bson:"_id"`
	Nick  string             `bson:"nick"`
	Name  string             `bson:"name"`
	Value int                `bson:"value"`
}

func (r *userRepo) Leaderboard(ctx context.Context, metric model.LeaderboardMetric, skip, limit int) ([]model.LeaderboardEntry, error) {
	field := metric.Field()
	pipeline := mongo.Pipeline{
		// ties in member-descending order, as ZREVRANGE returns them
		{{Key: "$sort", Value: bson.D{{Key: field, Value: -1}, {Key: "_id", Value: -1}}}},
		{{Key: "$skip", Value: skip}},
		{{Key: "$limit", Value: limit}},
		{{Key: "$project", Value: bson.D{
			{Key: "nick", Value: 1},
			{Key: "name", Value: 1},
			{Key: "value", Value: "$" + field},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate leaderboard: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []leaderboardRow
	if err = cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode leaderboard: %w", err)
	}

	entries := make([]model.LeaderboardEntry, 0, len(rows))
	for i, row := range rows {
		nick := row.Nick
		if nick == "" {
			nick = row.Name
		}
		entries = append(entries, model.LeaderboardEntry{
			UserID: row.ID.Hex(),
			Nick:   nick,
			Value:  row.Value,
			Rank:   skip + i + 1,
		})
	}
	return entries, nil
}

func (r *userRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	return nil
}
