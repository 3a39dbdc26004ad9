package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// Collection names.
const (
	usersCollection = "users"
	chatsCollection = "chats"
)

// MongoBackend stores users and chats in two MongoDB collections.
type MongoBackend struct {
	client *mongo.Client
	users  *mongo.Collection
	chats  *mongo.Collection
}

// DialMongo connects, pings the primary and makes sure the lookup indexes
// exist.
func DialMongo(ctx context.Context, uri, database string) (*MongoBackend, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is empty")
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	db := client.Database(database)
	m := &MongoBackend{
		client: client,
		users:  db.Collection(usersCollection),
		chats:  db.Collection(chatsCollection),
	}
	if err := m.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return m, nil
}

// indexModels lists the indexes DialMongo creates. users.email and
// chats.id are the upsert keys, so both are unique: two concurrent first
// saves for the same key can then never leave two documents behind.
func indexModels() (users, chats []mongo.IndexModel) {
	users = []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
	}
	chats = []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "timestamp", Value: -1}}},
	}
	return users, chats
}

func (m *MongoBackend) ensureIndexes(ctx context.Context) error {
	users, chats := indexModels()
	if _, err := m.users.Indexes().CreateMany(ctx, users); err != nil {
		return fmt.Errorf("creating users index: %w", err)
	}
	if _, err := m.chats.Indexes().CreateMany(ctx, chats); err != nil {
		return fmt.Errorf("creating chats indexes: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Query documents
// ---------------------------------------------------------------------------

// userUpsert returns the filter and $set update for a user save. The
// stored email is always the key itself, so the document written on the
// first save is the one the filter matches on the next.
func userUpsert(email string, user UserRecord) (filter, update bson.D) {
	fields := bson.M{}
	for k, v := range user {
		if k == "_id" {
			continue
		}
		fields[k] = v
	}
	fields["email"] = email

	return bson.D{{Key: "email", Value: email}},
		bson.D{{Key: "$set", Value: fields}}
}

func chatByID(chatID string) bson.D {
	return bson.D{{Key: "id", Value: chatID}}
}

// ownedChat matches a chat only when both id and owner agree.
func ownedChat(chatID, userID string) bson.D {
	return bson.D{{Key: "id", Value: chatID}, {Key: "userId", Value: userID}}
}

func chatsOwnedBy(userID string) bson.D {
	return bson.D{{Key: "userId", Value: userID}}
}

var (
	summaryProjection = bson.D{
		{Key: "_id", Value: 0},
		{Key: "id", Value: 1},
		{Key: "title", Value: 1},
		{Key: "timestamp", Value: 1},
	}
	newestFirst     = bson.D{{Key: "timestamp", Value: -1}}
	withoutObjectID = bson.D{{Key: "_id", Value: 0}}
)

// ---------------------------------------------------------------------------
// Backend implementation
// ---------------------------------------------------------------------------

// UpsertUser sets the record's fields on the document with this email.
func (m *MongoBackend) UpsertUser(ctx context.Context, email string, user UserRecord) (*UpsertResult, error) {
	filter, update := userUpsert(email, user)
	res, err := m.users.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return nil, err
	}
	return fromUpdateResult(res), nil
}

// UpsertChat replaces the whole chat document matched by id.
func (m *MongoBackend) UpsertChat(ctx context.Context, chat *Chat) (*UpsertResult, error) {
	res, err := m.chats.ReplaceOne(ctx, chatByID(chat.ID), chat, options.Replace().SetUpsert(true))
	if err != nil {
		return nil, err
	}
	return fromUpdateResult(res), nil
}

// ListChats returns the user's summaries, newest first.
func (m *MongoBackend) ListChats(ctx context.Context, userID string) ([]ChatSummary, error) {
	cur, err := m.chats.Find(ctx, chatsOwnedBy(userID),
		options.Find().SetProjection(summaryProjection).SetSort(newestFirst),
	)
	if err != nil {
		return nil, err
	}

	history := []ChatSummary{}
	if err := cur.All(ctx, &history); err != nil {
		return nil, err
	}
	return history, nil
}

// FindChat matches on both id and owner.
func (m *MongoBackend) FindChat(ctx context.Context, chatID, userID string) (*Chat, error) {
	var chat Chat
	err := m.chats.FindOne(ctx, ownedChat(chatID, userID),
		options.FindOne().SetProjection(withoutObjectID),
	).Decode(&chat)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

// Ping implements Backend.
func (m *MongoBackend) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

// Close implements Backend.
func (m *MongoBackend) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func fromUpdateResult(res *mongo.UpdateResult) *UpsertResult {
	return &UpsertResult{
		Acknowledged:  res.Acknowledged,
		MatchedCount:  res.MatchedCount,
		ModifiedCount: res.ModifiedCount,
		UpsertedCount: res.UpsertedCount,
		UpsertedID:    res.UpsertedID,
	}
}
