package presence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Keys share the {presence} hash tag so every script touches a single cluster slot.
const (
	userKeyPrefix = "{presence}:user:"
	usersKey      = "{presence}:users"
)

// Each user's live connections are a sorted set scored by lease expiry (unix ms).
// Expired members still count as live until Reap removes them, so a crashed node's
// connections keep the user online until the sweeper announces the offline transition.
var (
	connectScript = redis.NewScript(`
local before = redis.call('ZCARD', KEYS[1])
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[1])
redis.call('SADD', KEYS[2], ARGV[3])
if before == 0 then
	return 1
end
return 0
`)

	disconnectScript = redis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 0 then
	return 0
end
if redis.call('ZCARD', KEYS[1]) == 0 then
	redis.call('SREM', KEYS[2], ARGV[2])
	return 1
end
return 0
`)

	refreshScript = redis.NewScript(`
local before = redis.call('ZCARD', KEYS[1])
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[1])
redis.call('SADD', KEYS[2], ARGV[3])
if before == 0 then
	return 1
end
return 0
`)

	reapScript = redis.NewScript(`
local removed = redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
if redis.call('ZCARD', KEYS[1]) == 0 then
	redis.call('SREM', KEYS[2], ARGV[2])
	if removed > 0 then
		return 1
	end
end
return 0
`)
)

// Redis is a registry shared by every server process.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewRedis creates a registry whose connection leases last ttl unless refreshed.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl, now: time.Now}
}

func userKey(userID string) string {
	return userKeyPrefix + userID
}

func (r *Redis) expiry() string {
	return strconv.FormatInt(r.now().Add(r.ttl).UnixMilli(), 10)
}

func (r *Redis) Connect(ctx context.Context, userID, connID string) (bool, error) {
	res, err := connectScript.Run(ctx, r.client, []string{userKey(userID), usersKey}, connID, r.expiry(), userID).Int64()
	if err != nil {
		return false, fmt.Errorf("presence connect: %w", err)
	}
	return res == 1, nil
}

func (r *Redis) Disconnect(ctx context.Context, userID, connID string) (bool, error) {
	res, err := disconnectScript.Run(ctx, r.client, []string{userKey(userID), usersKey}, connID, userID).Int64()
	if err != nil {
		return false, fmt.Errorf("presence disconnect: %w", err)
	}
	return res == 1, nil
}

func (r *Redis) Refresh(ctx context.Context, userID, connID string) (bool, error) {
	res, err := refreshScript.Run(ctx, r.client, []string{userKey(userID), usersKey}, connID, r.expiry(), userID).Int64()
	if err != nil {
		return false, fmt.Errorf("presence refresh: %w", err)
	}
	return res == 1, nil
}

func (r *Redis) Reap(ctx context.Context) ([]string, error) {
	users, err := r.client.SMembers(ctx, usersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("presence list users: %w", err)
	}

	now := strconv.FormatInt(r.now().UnixMilli(), 10)
	var offline []string
	for _, userID := range users {
		res, err := reapScript.Run(ctx, r.client, []string{userKey(userID), usersKey}, now, userID).Int64()
		if err != nil {
			return offline, fmt.Errorf("presence reap %s: %w", userID, err)
		}
		if res == 1 {
			offline = append(offline, userID)
		}
	}
	return offline, nil
}

func (r *Redis) Online(ctx context.Context, userIDs ...string) (map[string]bool, error) {
	online := make(map[string]bool, len(userIDs))
	if len(userIDs) == 0 {
		return online, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.IntCmd, len(userIDs))
	for i, id := range userIDs {
		cmds[i] = pipe.ZCard(ctx, userKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("presence online: %w", err)
	}
	for i, id := range userIDs {
		online[id] = cmds[i].Val() > 0
	}
	return online, nil
}

var _ Registry = (*Redis)(nil)
