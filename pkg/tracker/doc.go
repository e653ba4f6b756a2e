// Package tracker suppresses repeated usage evidence.
//
// A tracker remembers fingerprints for a fixed interval. Track reports true the first time a
// fingerprint is seen within that window and false for repeats, so identical evidence from
// the same client is shared once per interval.
//
// MemoryTracker keeps fingerprints in process. RedisTracker stores them with SET NX EX so
// several instances share one view; it adds a network round trip per call, bounded by
// WithRedisTimeout.
package tracker
