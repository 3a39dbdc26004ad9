package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// RedisBackend keeps each chat as a JSON string and indexes a user's chats
// in a sorted set scored by timestamp:
//
//	chat:<id>              JSON Chat
//	user:<userId>:chats    ZSET member=<id> score=<timestamp>
//	users:<email>          HASH field -> JSON-encoded value
type RedisBackend struct {
	rdb *redis.Client
}

// NewRedisBackend wraps an existing client.
func NewRedisBackend(rdb *redis.Client) *RedisBackend {
	return &RedisBackend{rdb: rdb}
}

// DialRedis connects and pings.
func DialRedis(ctx context.Context, opts *redis.Options) (*RedisBackend, error) {
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisBackend(rdb), nil
}

func chatKey(id string) string          { return "chat:" + id }
func userChatsKey(userID string) string { return "user:" + userID + ":chats" }
func userKey(email string) string       { return "users:" + email }

// UpsertUser merges the record's fields into the user's hash.
//
// HGETALL and HSET are queued in the same MULTI/EXEC, so the snapshot used
// for the matched/modified counts is exactly the state the write replaced:
// no other client can slip a write in between.
func (r *RedisBackend) UpsertUser(ctx context.Context, email string, user UserRecord) (*UpsertResult, error) {
	key := userKey(email)

	fields := make(map[string]any, len(user))
	encoded := make(map[string]string, len(user))
	for name, value := range user {
		b, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encoding user field %q: %w", name, err)
		}
		fields[name] = string(b)
		encoded[name] = string(b)
	}

	var before *redis.MapStringStringCmd
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		before = pipe.HGetAll(ctx, key)
		pipe.HSet(ctx, key, fields)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("writing user: %w", err)
	}

	existing := before.Val()
	if len(existing) == 0 {
		return &UpsertResult{Acknowledged: true, UpsertedCount: 1, UpsertedID: email}, nil
	}
	res := &UpsertResult{Acknowledged: true, MatchedCount: 1}
	for name, value := range encoded {
		if old, ok := existing[name]; !ok || old != value {
			res.ModifiedCount = 1
			break
		}
	}
	return res, nil
}

// UpsertChat replaces the chat document and re-indexes it under its
// (possibly new) owner in one MULTI/EXEC.
func (r *RedisBackend) UpsertChat(ctx context.Context, chat *Chat) (*UpsertResult, error) {
	doc, err := json.Marshal(chat)
	if err != nil {
		return nil, fmt.Errorf("encoding chat: %w", err)
	}

	prev, err := r.loadChat(ctx, chat.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, chatKey(chat.ID), doc, 0)
		if prev != nil && prev.UserID != chat.UserID {
			pipe.ZRem(ctx, userChatsKey(prev.UserID), chat.ID)
		}
		pipe.ZAdd(ctx, userChatsKey(chat.UserID), redis.Z{
			Score:  float64(chat.Timestamp),
			Member: chat.ID,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("writing chat: %w", err)
	}

	if prev == nil {
		return &UpsertResult{Acknowledged: true, UpsertedCount: 1, UpsertedID: chat.ID}, nil
	}
	res := &UpsertResult{Acknowledged: true, MatchedCount: 1}
	if prevDoc, _ := json.Marshal(prev); !bytes.Equal(prevDoc, doc) {
		res.ModifiedCount = 1
	}
	return res, nil
}

// ListChats returns the user's summaries sorted by timestamp, newest first.
func (r *RedisBackend) ListChats(ctx context.Context, userID string) ([]ChatSummary, error) {
	ids, err := r.rdb.ZRevRange(ctx, userChatsKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading chat index: %w", err)
	}
	if len(ids) == 0 {
		return []ChatSummary{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = chatKey(id)
	}
	docs, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("reading chats: %w", err)
	}

	history := make([]ChatSummary, 0, len(docs))
	for _, raw := range docs {
		s, ok := raw.(string)
		if !ok {
			continue // index entry outlived its document
		}
		var chat Chat
		if err := json.Unmarshal([]byte(s), &chat); err != nil {
			return nil, fmt.Errorf("decoding chat: %w", err)
		}
		if chat.UserID != userID {
			continue
		}
		history = append(history, chat.Summary())
	}

	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Timestamp > history[j].Timestamp
	})
	return history, nil
}

// FindChat returns the chat if both id and owner match.
func (r *RedisBackend) FindChat(ctx context.Context, chatID, userID string) (*Chat, error) {
	chat, err := r.loadChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat.UserID != userID {
		return nil, ErrNotFound
	}
	return chat, nil
}

func (r *RedisBackend) loadChat(ctx context.Context, chatID string) (*Chat, error) {
	raw, err := r.rdb.Get(ctx, chatKey(chatID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading chat: %w", err)
	}

	var chat Chat
	if err := json.Unmarshal(raw, &chat); err != nil {
		return nil, fmt.Errorf("decoding chat: %w", err)
	}
	return &chat, nil
}

// Ping implements Backend.
func (r *RedisBackend) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Close implements Backend.
func (r *RedisBackend) Close(context.Context) error {
	return r.rdb.Close()
}
