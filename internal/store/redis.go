package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/m3rciful/shopbot/core/logger"
)

// Redis layout, all under a common prefix:
//
//	<p>:seq            INCR counter for item ids
//	<p>:item:<id>      hash {conv, text, checked}
//	<p>:conv:<conv>    sorted set of ids scored by id
//	<p>:convs          set of conversations with items
//
// Mutations run as Lua scripts so readers never see half of a swap.
const defaultRedisPrefix = "shopbot"

var (
	enumerateScript = redis.NewScript(`
local out = {}
for _, id in ipairs(redis.call('ZRANGE', KEYS[1], 0, -1)) do
  local v = redis.call('HMGET', ARGV[1] .. id, 'text', 'checked')
  if v[1] and v[2] == ARGV[2] then
    table.insert(out, id)
    table.insert(out, v[1])
  end
end
return out
`)

	checkScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {0}
end
local owner = redis.call('HGET', KEYS[1], 'conv')
if owner ~= ARGV[1] then
  return {2, owner}
end
redis.call('HSET', KEYS[1], 'checked', '1')
return {1, redis.call('HGET', KEYS[1], 'text')}
`)

	swapScript = redis.NewScript(`
for i = 1, 2 do
  if redis.call('EXISTS', KEYS[i]) == 0 then
    return {0, i}
  end
  if redis.call('HGET', KEYS[i], 'conv') ~= ARGV[1] then
    return {2, i}
  end
end
local a = redis.call('HGET', KEYS[1], 'text')
local b = redis.call('HGET', KEYS[2], 'text')
redis.call('HSET', KEYS[1], 'text', b)
redis.call('HSET', KEYS[2], 'text', a)
return {1, 0}
`)

	removeCheckedScript = redis.NewScript(`
local n = 0
for _, id in ipairs(redis.call('ZRANGE', KEYS[1], 0, -1)) do
  local k = ARGV[1] .. id
  if redis.call('HGET', k, 'checked') == '1' then
    redis.call('DEL', k)
    redis.call('ZREM', KEYS[1], id)
    n = n + 1
  end
end
if redis.call('ZCARD', KEYS[1]) == 0 then
  redis.call('SREM', KEYS[2], ARGV[2])
end
return n
`)
)

// script results
const (
	scriptMissing  = 0
	scriptOK       = 1
	scriptNotOwned = 2
)

// RedisStore keeps items in Redis.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps a connected client. An empty prefix selects "shopbot".
func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) seqKey() string             { return s.prefix + ":seq" }
func (s *RedisStore) itemPrefix() string         { return s.prefix + ":item:" }
func (s *RedisStore) itemKey(id int64) string    { return s.itemPrefix() + strconv.FormatInt(id, 10) }
func (s *RedisStore) convKey(conv string) string { return s.prefix + ":conv:" + conv }
func (s *RedisStore) convsKey() string           { return s.prefix + ":convs" }

// Add appends a new unchecked item.
func (s *RedisStore) Add(ctx context.Context, conv, text string) (int64, error) {
	id, err := s.rdb.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr: %w", err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, s.itemKey(id), "conv", conv, "text", text, "checked", "0")
		p.ZAdd(ctx, s.convKey(conv), redis.Z{Score: float64(id), Member: id})
		p.SAdd(ctx, s.convsKey(), conv)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis add item: %w", err)
	}
	logger.Debug(ctx, logger.CompStore, "store.add",
		slog.String("status", "ok"),
		slog.String("backend", "redis"),
		slog.String("conversation_id", conv),
		slog.Int64("item_id", id),
	)
	return id, nil
}

// Enumerate returns live items of conv with the given checked flag ordered by id.
func (s *RedisStore) Enumerate(ctx context.Context, conv string, checked bool) ([]Entry, error) {
	flag := "0"
	if checked {
		flag = "1"
	}
	raw, err := enumerateScript.Run(ctx, s.rdb, []string{s.convKey(conv)}, s.itemPrefix(), flag).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("redis enumerate: %w", err)
	}
	out := make([]Entry, 0, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		id, err := strconv.ParseInt(raw[i], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("redis enumerate: bad id %q: %w", raw[i], err)
		}
		out = append(out, Entry{ID: id, Text: raw[i+1]})
	}
	return out, nil
}

// List is the text projection of Enumerate.
func (s *RedisStore) List(ctx context.Context, conv string, checked bool) ([]string, error) {
	return listVia(ctx, s, conv, checked)
}

// Check marks the item checked.
func (s *RedisStore) Check(ctx context.Context, conv string, id int64) (bool, *Item, error) {
	res, err := checkScript.Run(ctx, s.rdb, []string{s.itemKey(id)}, conv).Slice()
	if err != nil {
		return false, nil, fmt.Errorf("redis check: %w", err)
	}
	code, _ := res[0].(int64)
	switch code {
	case scriptMissing:
		logStale(ctx, "check", conv, id)
		return true, nil, nil
	case scriptNotOwned:
		owner, _ := res[1].(string)
		logNotOwned(ctx, "check", conv, id, owner)
		return false, nil, nil
	}
	text, _ := res[1].(string)
	return true, &Item{ID: id, ConversationID: conv, Text: text, Checked: true}, nil
}

// Swap exchanges the texts of a and b.
func (s *RedisStore) Swap(ctx context.Context, conv string, a, b int64) error {
	res, err := swapScript.Run(ctx, s.rdb, []string{s.itemKey(a), s.itemKey(b)}, conv).Int64Slice()
	if err != nil {
		return fmt.Errorf("redis swap: %w", err)
	}
	id := a
	if res[1] == 2 {
		id = b
	}
	switch res[0] {
	case scriptMissing:
		logStale(ctx, "swap", conv, id)
		return ErrNotFound
	case scriptNotOwned:
		logNotOwned(ctx, "swap", conv, id, "")
		return ErrNotOwned
	}
	return nil
}

// RemoveChecked deletes every checked item of conv.
func (s *RedisStore) RemoveChecked(ctx context.Context, conv string) (int, error) {
	n, err := removeCheckedScript.Run(ctx, s.rdb,
		[]string{s.convKey(conv), s.convsKey()}, s.itemPrefix(), conv).Int()
	if err != nil {
		return 0, fmt.Errorf("redis remove checked: %w", err)
	}
	return n, nil
}

// Dump returns every item ordered by id. It is not a consistent snapshot.
func (s *RedisStore) Dump(ctx context.Context) ([]Item, error) {
	convs, err := s.rdb.SMembers(ctx, s.convsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis dump: %w", err)
	}
	var out []Item
	for _, conv := range convs {
		ids, err := s.rdb.ZRange(ctx, s.convKey(conv), 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("redis dump: %w", err)
		}
		cmds := make([]*redis.MapStringStringCmd, len(ids))
		_, err = s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
			for i, id := range ids {
				cmds[i] = p.HGetAll(ctx, s.itemPrefix()+id)
			}
			return nil
		})
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("redis dump: %w", err)
		}
		for i, cmd := range cmds {
			fields := cmd.Val()
			if len(fields) == 0 {
				continue
			}
			id, _ := strconv.ParseInt(ids[i], 10, 64)
			out = append(out, Item{
				ID:             id,
				ConversationID: fields["conv"],
				Text:           fields["text"],
				Checked:        fields["checked"] == "1",
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
