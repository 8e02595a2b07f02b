package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/MrEthical07/stagepass/refresh"
)

// ErrUnavailable wraps Redis transport and script failures.
var ErrUnavailable = errors.New("redis unavailable")

// revokeAllLua revokes every live member of a user index and drops members
// whose record has already expired out of Redis.
const revokeAllLua = `
local function revoke_all(user_key, rt_prefix, now_s, reason)
  local now = tonumber(now_s)
  local n = 0
  for _, h in ipairs(redis.call("SMEMBERS", user_key)) do
    local k = rt_prefix .. h
    local st = redis.call("HMGET", k, "revoked", "expires_at")
    if not st[2] then
      redis.call("SREM", user_key, h)
    elseif st[1] ~= "1" and tonumber(st[2]) > now then
      redis.call("HSET", k, "revoked", "1", "revoked_at", now_s, "revoked_reason", reason)
      n = n + 1
    end
  end
  return n
end
`

// Outcome codes match refresh.Outcome.
const rotateScript = revokeAllLua + `
local presented = KEYS[1]
local successor = KEYS[2]
local rt_prefix = ARGV[1]
local user_prefix = ARGV[2]
local now_s = ARGV[3]
local now = tonumber(now_s)

local f = redis.call("HMGET", presented, "id", "user_id", "expires_at", "revoked", "replaced_by")
if not f[1] then
  return {1, 0, "", ""}
end
local id, uid, exp, revoked, replaced = f[1], f[2], tonumber(f[3]), f[4], f[5]
local user_key = user_prefix .. uid

if exp <= now then
  if revoked ~= "1" then
    redis.call("HSET", presented, "revoked", "1", "revoked_at", now_s, "revoked_reason", ARGV[9])
  end
  return {2, 0, uid, id}
end

if revoked == "1" then
  if replaced and replaced ~= "" then
    return {4, revoke_all(user_key, rt_prefix, now_s, ARGV[10]), uid, id}
  end
  return {3, 0, uid, id}
end

redis.call("HSET", successor,
  "id", ARGV[4], "user_id", uid, "expires_at", ARGV[5], "revoked", "0",
  "created_at", now_s, "created_by_ip", ARGV[6])
redis.call("PEXPIREAT", successor, ARGV[5])
redis.call("SADD", user_key, ARGV[7])
redis.call("HSET", presented, "revoked", "1", "revoked_at", now_s, "revoked_reason", ARGV[8], "replaced_by", ARGV[4])
return {0, 0, uid, id}
`

const revokeOneScript = `
local st = redis.call("HMGET", KEYS[1], "revoked", "id")
if not st[2] or st[1] == "1" then
  return 0
end
redis.call("HSET", KEYS[1], "revoked", "1", "revoked_at", ARGV[1], "revoked_reason", ARGV[2])
return 1
`

const revokeUserScript = revokeAllLua + `
return revoke_all(KEYS[1], ARGV[1], ARGV[2], ARGV[3])
`

var (
	rotateLua     = goredis.NewScript(rotateScript)
	revokeOneLua  = goredis.NewScript(revokeOneScript)
	revokeUserLua = goredis.NewScript(revokeUserScript)
)

// RefreshTokens is a refresh.Store on Redis.
type RefreshTokens struct {
	redis goredis.UniversalClient
	keys  keyspace
}

var _ refresh.Store = (*RefreshTokens)(nil)

// NewRefreshTokens returns a store using keys under prefix.
func NewRefreshTokens(client goredis.UniversalClient, prefix string) *RefreshTokens {
	return &RefreshTokens{redis: client, keys: newKeyspace(prefix)}
}

func (s *RefreshTokens) Create(ctx context.Context, rec *refresh.Record) error {
	key := s.keys.refresh(rec.TokenHash)
	_, err := s.redis.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"id", rec.ID,
			"user_id", rec.UserID,
			"expires_at", millis(rec.ExpiresAt),
			"revoked", "0",
			"created_at", millis(rec.CreatedAt),
			"created_by_ip", rec.CreatedByIP,
		)
		pipe.PExpireAt(ctx, key, rec.ExpiresAt)
		pipe.SAdd(ctx, s.keys.userIndex(rec.UserID), rec.TokenHash)
		return nil
	})
	if err != nil {
		return unavailable("create refresh record", err)
	}
	return nil
}

func (s *RefreshTokens) Rotate(ctx context.Context, presentedHash string, successor *refresh.Record, now time.Time) (refresh.RotateResult, error) {
	raw, err := rotateLua.Run(ctx, s.redis,
		[]string{s.keys.refresh(presentedHash), s.keys.refresh(successor.TokenHash)},
		s.keys.prefix+"rt:",
		s.keys.prefix+"rtu:",
		millis(now),
		successor.ID,
		millis(successor.ExpiresAt),
		successor.CreatedByIP,
		successor.TokenHash,
		refresh.ReasonRotated,
		refresh.ReasonExpired,
		refresh.ReasonReuse,
	).Slice()
	if err != nil {
		return refresh.RotateResult{}, unavailable("rotate refresh record", err)
	}

	res, err := parseRotateReply(raw)
	if err != nil {
		return refresh.RotateResult{}, err
	}
	if res.Outcome == refresh.OutcomeRotated {
		successor.UserID = res.UserID
	}
	return res, nil
}

func (s *RefreshTokens) RevokeByHash(ctx context.Context, hash, reason string, now time.Time) (bool, error) {
	n, err := revokeOneLua.Run(ctx, s.redis, []string{s.keys.refresh(hash)}, millis(now), reason).Int()
	if err != nil {
		return false, unavailable("revoke refresh record", err)
	}
	return n == 1, nil
}

func (s *RefreshTokens) RevokeAllForUser(ctx context.Context, userID, reason string, now time.Time) (int, error) {
	n, err := revokeUserLua.Run(ctx, s.redis,
		[]string{s.keys.userIndex(userID)},
		s.keys.prefix+"rt:", millis(now), reason,
	).Int()
	if err != nil {
		return 0, unavailable("revoke user refresh records", err)
	}
	return n, nil
}

func (s *RefreshTokens) ListActive(ctx context.Context, userID string, now time.Time) ([]refresh.Record, error) {
	indexKey := s.keys.userIndex(userID)
	hashes, err := s.redis.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, unavailable("list refresh index", err)
	}
	if len(hashes) == 0 {
		return nil, nil
	}

	cmds := make([]*goredis.MapStringStringCmd, len(hashes))
	_, err = s.redis.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for i, h := range hashes {
			cmds[i] = pipe.HGetAll(ctx, s.keys.refresh(h))
		}
		return nil
	})
	if err != nil {
		return nil, unavailable("load refresh records", err)
	}

	out := make([]refresh.Record, 0, len(hashes))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		rec, err := decodeRecord(hashes[i], fields)
		if err != nil {
			return nil, err
		}
		if rec.ActiveAt(now) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DeleteExpired removes index members whose records Redis has already
// expired. It returns the number of members removed.
func (s *RefreshTokens) DeleteExpired(ctx context.Context, _ time.Time) (int, error) {
	removed := 0
	err := scanKeys(ctx, s.redis, s.keys.prefix+"rtu:*", func(indexKey string) error {
		hashes, err := s.redis.SMembers(ctx, indexKey).Result()
		if err != nil {
			return unavailable("sweep refresh index", err)
		}
		for _, h := range hashes {
			exists, err := s.redis.Exists(ctx, s.keys.refresh(h)).Result()
			if err != nil {
				return unavailable("sweep refresh index", err)
			}
			if exists == 0 {
				if err := s.redis.SRem(ctx, indexKey, h).Err(); err != nil {
					return unavailable("sweep refresh index", err)
				}
				removed++
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			return removed, err
		}
		return removed, unavailable("scan refresh indexes", err)
	}
	return removed, nil
}

func parseRotateReply(raw []interface{}) (refresh.RotateResult, error) {
	if len(raw) != 4 {
		return refresh.RotateResult{}, oops.Code("REFRESH_SCRIPT_REPLY").Errorf("unexpected rotate reply length %d", len(raw))
	}
	code, ok1 := raw[0].(int64)
	revoked, ok2 := raw[1].(int64)
	userID, ok3 := raw[2].(string)
	prevID, ok4 := raw[3].(string)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return refresh.RotateResult{}, oops.Code("REFRESH_SCRIPT_REPLY").Errorf("unexpected rotate reply %v", raw)
	}
	return refresh.RotateResult{
		Outcome:    refresh.Outcome(code),
		UserID:     userID,
		PreviousID: prevID,
		Revoked:    int(revoked),
	}, nil
}

func decodeRecord(hash string, f map[string]string) (refresh.Record, error) {
	rec := refresh.Record{
		ID:            f["id"],
		UserID:        f["user_id"],
		TokenHash:     hash,
		Revoked:       f["revoked"] == "1",
		RevokedReason: f["revoked_reason"],
		ReplacedByID:  f["replaced_by"],
		CreatedByIP:   f["created_by_ip"],
	}

	exp, err := strconv.ParseInt(f["expires_at"], 10, 64)
	if err != nil {
		return refresh.Record{}, oops.Code("REFRESH_RECORD_CORRUPT").With("id", rec.ID).Wrap(err)
	}
	rec.ExpiresAt = fromMillis(exp)

	if v, err := strconv.ParseInt(f["created_at"], 10, 64); err == nil {
		rec.CreatedAt = fromMillis(v)
	}
	if v, err := strconv.ParseInt(f["revoked_at"], 10, 64); err == nil {
		at := fromMillis(v)
		rec.RevokedAt = &at
	}
	return rec, nil
}

func unavailable(op string, err error) error {
	return oops.Code("REDIS_UNAVAILABLE").With("operation", op).Wrap(fmt.Errorf("%w: %v", ErrUnavailable, err))
}
