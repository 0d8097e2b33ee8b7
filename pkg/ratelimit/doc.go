// Package ratelimit throttles requests with fixed minute, hour, and
// day windows backed by Redis counters.
//
// Every check increments all three counters in one pipeline and
// allows the request only when each post-increment count is within
// its configured ceiling. Window starts are baked into the counter
// keys, so a new window begins at zero without any reset step and old
// counters expire on their own. If Redis is unreachable the limiter
// fails open and raises the degraded counter.
package ratelimit
