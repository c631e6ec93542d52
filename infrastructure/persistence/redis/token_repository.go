// Package redis keeps tokens in redis. Each token is a hash under
// tokens:id:<id>, indexed by a digest of its value and by owner and kind.
package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/mentorclub/auth-service/application/port/outbound"
	"github.com/mentorclub/auth-service/domain/entity"
)

const (
	keyPrefix = "tokens:"

	// DefaultRetention keeps expired tokens around long enough for the
	// validator to report them as expired and purge them itself.
	DefaultRetention = time.Hour
)

// Replies of saveScript.
const (
	saveDuplicate = 0
	saveCreated   = 1
	saveExisting  = 2
)

// saveScript claims the value index and writes the token hash atomically.
// An existing hash only gets an unset device_id filled in. The owner index
// lives at least as long as its longest lived member.
var saveScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  local bound = redis.call("HGET", KEYS[1], "device_id")
  if ARGV[5] ~= "" and (not bound or bound == "") then
    redis.call("HSET", KEYS[1], "device_id", ARGV[5])
  end
  return 2
end
local owner = redis.call("GET", KEYS[2])
if owner and owner ~= ARGV[1] then
  return 0
end
redis.call("SET", KEYS[2], ARGV[1], "PX", ARGV[8])
redis.call("HSET", KEYS[1],
  "id", ARGV[1],
  "value", ARGV[2],
  "kind", ARGV[3],
  "owner_id", ARGV[4],
  "device_id", ARGV[5],
  "expires_at", ARGV[6],
  "created_at", ARGV[7])
redis.call("PEXPIRE", KEYS[1], ARGV[8])
redis.call("SADD", KEYS[3], ARGV[1])
if redis.call("PTTL", KEYS[3]) < tonumber(ARGV[8]) then
  redis.call("PEXPIRE", KEYS[3], ARGV[8])
end
return 1
`)

type tokenRepository struct {
	client    *redis.Client
	retention time.Duration
	now       func() time.Time
}

// NewTokenRepository returns a redis backed store. Keys outlive the token
// expiry by retention; a non-positive retention selects DefaultRetention.
func NewTokenRepository(client *redis.Client, retention time.Duration) outbound.TokenRepository {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &tokenRepository{client: client, retention: retention, now: time.Now}
}

func idKey(id string) string {
	return keyPrefix + "id:" + id
}

func valueKey(value string) string {
	sum := sha256.Sum256([]byte(value))
	return keyPrefix + "value:" + hex.EncodeToString(sum[:])
}

func ownerKey(kind entity.TokenKind, ownerID string) string {
	return keyPrefix + "owner:" + ownerID + ":" + string(kind)
}

func (r *tokenRepository) Save(ctx context.Context, token *entity.Token) (*entity.Token, error) {
	if token.ID == "" {
		token.ID = ulid.Make().String()
	}

	ttl := token.ExpiresAt.Sub(r.now()) + r.retention
	if ttl < r.retention {
		ttl = r.retention
	}

	device := ""
	if token.DeviceID != nil {
		device = token.DeviceID.String()
	}

	keys := []string{idKey(token.ID), valueKey(token.Value), ownerKey(token.Kind, token.OwnerID)}
	reply, err := saveScript.Run(ctx, r.client, keys,
		token.ID,
		token.Value,
		string(token.Kind),
		token.OwnerID,
		device,
		token.ExpiresAt.UTC().Format(time.RFC3339Nano),
		token.CreatedAt.UTC().Format(time.RFC3339Nano),
		ttl.Milliseconds(),
	).Int()
	if err != nil {
		return nil, fmt.Errorf("failed to save token: %w", err)
	}
	switch reply {
	case saveDuplicate:
		return nil, fmt.Errorf("failed to save token: %w", outbound.ErrTokenAlreadyExists)
	case saveExisting:
		fields, err := r.client.HGetAll(ctx, keys[0]).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to save token: %w", err)
		}
		if len(fields) == 0 {
			return nil, fmt.Errorf("failed to save token: %w", outbound.ErrTokenNotFound)
		}
		return decodeToken(fields)
	case saveCreated:
		return token, nil
	}
	return nil, fmt.Errorf("failed to save token: unexpected reply %d", reply)
}

func (r *tokenRepository) FindByValue(ctx context.Context, kind entity.TokenKind, value string) (*entity.Token, error) {
	id, err := r.client.Get(ctx, valueKey(value)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, outbound.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to find token: %w", err)
	}

	fields, err := r.client.HGetAll(ctx, idKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to find token: %w", err)
	}
	if len(fields) == 0 {
		return nil, outbound.ErrTokenNotFound
	}

	token, err := decodeToken(fields)
	if err != nil {
		return nil, err
	}
	if token.Kind != kind || token.Value != value {
		return nil, outbound.ErrTokenNotFound
	}
	return token, nil
}

func (r *tokenRepository) FindByValueAndDevice(ctx context.Context, kind entity.TokenKind, value string, deviceID uuid.UUID) (*entity.Token, error) {
	token, err := r.FindByValue(ctx, kind, value)
	if err != nil {
		return nil, err
	}
	if !token.BoundTo(deviceID) {
		return nil, outbound.ErrTokenNotFound
	}
	return token, nil
}

func (r *tokenRepository) FindAllForOwner(ctx context.Context, kind entity.TokenKind, ownerID string) ([]*entity.Token, error) {
	return r.listOwner(ctx, kind, ownerID, func(*entity.Token) bool { return true })
}

func (r *tokenRepository) FindAllForOwnerAndDevice(ctx context.Context, kind entity.TokenKind, ownerID string, deviceID uuid.UUID) ([]*entity.Token, error) {
	return r.listOwner(ctx, kind, ownerID, func(t *entity.Token) bool { return t.BoundTo(deviceID) })
}

// listOwner loads every token referenced by the owner index. Ids whose hash
// has already expired are dropped from the index on the way.
func (r *tokenRepository) listOwner(ctx context.Context, kind entity.TokenKind, ownerID string, keep func(*entity.Token) bool) ([]*entity.Token, error) {
	set := ownerKey(kind, ownerID)
	ids, err := r.client.SMembers(ctx, set).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds, err := r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, id := range ids {
			p.HGetAll(ctx, idKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}

	var (
		tokens []*entity.Token
		stale  []interface{}
	)
	for i, cmd := range cmds {
		fields := cmd.(*redis.StringStringMapCmd).Val()
		if len(fields) == 0 {
			stale = append(stale, ids[i])
			continue
		}
		token, err := decodeToken(fields)
		if err != nil {
			return nil, err
		}
		if keep(token) {
			tokens = append(tokens, token)
		}
	}

	if len(stale) > 0 {
		// Best effort; a leftover id is skipped again on the next read.
		_ = r.client.SRem(ctx, set, stale...).Err()
	}

	sort.Slice(tokens, func(i, j int) bool {
		if tokens[i].CreatedAt.Equal(tokens[j].CreatedAt) {
			return tokens[i].ID < tokens[j].ID
		}
		return tokens[i].CreatedAt.Before(tokens[j].CreatedAt)
	})
	return tokens, nil
}

func (r *tokenRepository) Delete(ctx context.Context, token *entity.Token) error {
	if _, err := r.remove(ctx, token); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

func (r *tokenRepository) Consume(ctx context.Context, token *entity.Token) error {
	removed, err := r.remove(ctx, token)
	if err != nil {
		return fmt.Errorf("failed to consume token: %w", err)
	}
	if !removed {
		return outbound.ErrTokenNotFound
	}
	return nil
}

// remove deletes the token hash and its index entries in one MULTI block and
// reports whether the hash still existed. Concurrent removals are serialized
// by redis, so only one of them sees the hash.
func (r *tokenRepository) remove(ctx context.Context, token *entity.Token) (bool, error) {
	value := token.Value
	if value == "" {
		stored, err := r.client.HGet(ctx, idKey(token.ID), "value").Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return false, err
		}
		value = stored
	}

	var del *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		del = p.Del(ctx, idKey(token.ID))
		if value != "" {
			p.Del(ctx, valueKey(value))
		}
		if token.OwnerID != "" {
			p.SRem(ctx, ownerKey(token.Kind, token.OwnerID), token.ID)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return del.Val() > 0, nil
}

func (r *tokenRepository) DeleteAllForOwner(ctx context.Context, ownerID string) error {
	for _, kind := range entity.TokenKinds {
		tokens, err := r.FindAllForOwner(ctx, kind, ownerID)
		if err != nil {
			return fmt.Errorf("failed to delete owner tokens: %w", err)
		}

		_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
			for _, t := range tokens {
				p.Del(ctx, idKey(t.ID), valueKey(t.Value))
			}
			p.Del(ctx, ownerKey(kind, ownerID))
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to delete owner tokens: %w", err)
		}
	}
	return nil
}

func decodeToken(fields map[string]string) (*entity.Token, error) {
	token := &entity.Token{
		ID:      fields["id"],
		Value:   fields["value"],
		Kind:    entity.TokenKind(fields["kind"]),
		OwnerID: fields["owner_id"],
	}

	var err error
	if token.ExpiresAt, err = time.Parse(time.RFC3339Nano, fields["expires_at"]); err != nil {
		return nil, fmt.Errorf("corrupt token %s: %w", token.ID, err)
	}
	if token.CreatedAt, err = time.Parse(time.RFC3339Nano, fields["created_at"]); err != nil {
		return nil, fmt.Errorf("corrupt token %s: %w", token.ID, err)
	}
	if d := fields["device_id"]; d != "" {
		id, err := uuid.Parse(d)
		if err != nil {
			return nil, fmt.Errorf("corrupt token %s: %w", token.ID, err)
		}
		token.DeviceID = &id
	}
	return token, nil
}
