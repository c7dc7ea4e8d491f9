package redisledger

import "github.com/redis/go-redis/v9"

const (
	statusNotFound int64 = 0
	statusRevoked  int64 = 1
	statusExpired  int64 = 2
	statusRotated  int64 = 3
	statusConflict int64 = 4
	statusOK       int64 = 5
)

// row fields returned by every script after the status code, in order:
// id, account_id, token_hash, created_at, expires_at, revoked, revoked_at
const rowFields = `
local function row(key)
  local r = redis.call("HMGET", key, "id", "account_id", "token_hash", "created_at", "expires_at", "revoked", "revoked_at")
  for i = 1, 7 do
    if r[i] == false then r[i] = "" end
  end
  return r
end
local function reply(code, r)
  return {code, r[1], r[2], r[3], r[4], r[5], r[6], r[7]}
end
`

// KEYS[1] row key. ARGV: id, account_id, token_hash, created_ms, expires_ms,
// evict_at_ms (0 keeps the row), account_set_prefix
const insertScript = rowFields + `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return {4}
end
redis.call("HSET", KEYS[1], "id", ARGV[1], "account_id", ARGV[2], "token_hash", ARGV[3],
  "created_at", ARGV[4], "expires_at", ARGV[5], "revoked", "0")
if tonumber(ARGV[6]) > 0 then
  redis.call("PEXPIREAT", KEYS[1], ARGV[6])
end
redis.call("SADD", ARGV[7] .. ARGV[2], ARGV[3])
return reply(5, row(KEYS[1]))
`

// KEYS[1] presented row, KEYS[2] successor row. ARGV: now_ms, next_id,
// next_hash, next_created_ms, next_expires_ms, evict_at_ms (0 keeps the
// row), account_set_prefix
const rotateScript = rowFields + `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return {0}
end
local prior = row(KEYS[1])
if prior[6] == "1" then
  return reply(1, prior)
end
if tonumber(prior[5]) <= tonumber(ARGV[1]) then
  return reply(2, prior)
end
if redis.call("EXISTS", KEYS[2]) == 1 then
  return {4}
end
redis.call("HSET", KEYS[1], "revoked", "1")
redis.call("HSETNX", KEYS[1], "revoked_at", ARGV[1])
redis.call("HSET", KEYS[2], "id", ARGV[2], "account_id", prior[2], "token_hash", ARGV[3],
  "created_at", ARGV[4], "expires_at", ARGV[5], "revoked", "0")
if tonumber(ARGV[6]) > 0 then
  redis.call("PEXPIREAT", KEYS[2], ARGV[6])
end
redis.call("SADD", ARGV[7] .. prior[2], ARGV[3])
return reply(3, row(KEYS[1]))
`

// KEYS[1] row key. ARGV: now_ms
const revokeScript = rowFields + `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return {0}
end
redis.call("HSET", KEYS[1], "revoked", "1")
redis.call("HSETNX", KEYS[1], "revoked_at", ARGV[1])
return reply(5, row(KEYS[1]))
`

// KEYS[1] account set. ARGV: now_ms, row_key_prefix. Returns the number of
// rows newly revoked. Set members whose row was evicted under an explicit
// retention are dropped.
const revokeAllScript = `
local members = redis.call("SMEMBERS", KEYS[1])
local n = 0
for _, hash in ipairs(members) do
  local key = ARGV[2] .. hash
  if redis.call("EXISTS", key) == 0 then
    redis.call("SREM", KEYS[1], hash)
  elseif redis.call("HGET", key, "revoked") ~= "1" then
    redis.call("HSET", key, "revoked", "1")
    redis.call("HSETNX", key, "revoked_at", ARGV[1])
    n = n + 1
  end
end
return n
`

var (
	insertLua    = redis.NewScript(insertScript)
	rotateLua    = redis.NewScript(rotateScript)
	revokeLua    = redis.NewScript(revokeScript)
	revokeAllLua = redis.NewScript(revokeAllScript)
)
