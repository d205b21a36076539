package stream

import "github.com/redis/go-redis/v9"

var CommitScript = redis.NewScript(`
local base_key = ARGV[1]
local message_id = ARGV[2]
local query_id = ARGV[3]
local voter = ARGV[4]
local commit_hash = ARGV[5]

-- Increment the inbox sequence counter
local sequence = redis.call("INCR", base_key .. ":sequence_inbox")

-- Add entry to the stream
return redis.call("XADD", base_key .. ":inbox", "*",
           "type", "commit",
           "message_id", message_id,
           "sequence", sequence,
           "query_id", query_id,
           "voter", voter,
           "commit_hash", commit_hash)
`)

var RevealScript = redis.NewScript(`
local base_key = ARGV[1]
local message_id = ARGV[2]
local query_id = ARGV[3]
local voter = ARGV[4]
local value = ARGV[5]
local salt = ARGV[6]
local confidence = ARGV[7]

local sequence = redis.call("INCR", base_key .. ":sequence_inbox")

return redis.call("XADD", base_key .. ":inbox", "*",
           "type", "reveal",
           "message_id", message_id,
           "sequence", sequence,
           "query_id", query_id,
           "voter", voter,
           "value", value,
           "salt", salt,
           "confidence", confidence)
`)

var AckScript = redis.NewScript(`
local base_key = ARGV[1]
local message_id = ARGV[2]
local query_id = ARGV[3]

return redis.call("XADD", base_key .. ":acks", "*",
           "type", "ack",
           "message_id", message_id,
           "query_id", query_id)
`)

// CallbackScript appends a resolution notification to the consumer's stream
// and counts delivery attempts per query next to it.
var CallbackScript = redis.NewScript(`
local target = ARGV[1]
local query_id = ARGV[2]
local final_outcome = ARGV[3]
local outcome_value = ARGV[4]
local confidence = ARGV[5]
local resolved_at = ARGV[6]
local callback_data = ARGV[7]

local attempts = redis.call("HINCRBY", target .. ":callback_attempts", query_id, 1)

return redis.call("XADD", target .. ":callbacks", "*",
           "query_id", query_id,
           "final_outcome", final_outcome,
           "outcome_value", outcome_value,
           "confidence", confidence,
           "resolved_at", resolved_at,
           "callback_data", callback_data,
           "attempt", attempts)
`)
