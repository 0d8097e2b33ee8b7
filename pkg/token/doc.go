// Package token implements the access/refresh token lifecycle.
//
// Access tokens are short-lived HS256 JWTs carrying user_id and
// token_type claims; they are self-contained and verified without
// I/O, with a single indexed blacklist lookup covering early
// revocation. Refresh tokens are opaque secrets
// (gkr_<base64url(32 bytes)>) stored only as SHA-256 hashes.
//
// Refresh tokens rotate on every redemption: the redeemed row is
// revoked and linked to its successor via replaced_by_id, forming a
// rotation chain. The revocation is a conditional UPDATE on
// revoked_at IS NULL, so two concurrent redemptions of the same token
// cannot both succeed; the loser observes the already-rotated row.
// Redeeming a token that was already rotated before the call began is
// a replay, and revokes every token reachable forward through the
// chain.
//
// The Sweeper deletes refresh rows expired beyond a grace window and
// blacklist rows past expiry on a cron schedule.
package token
