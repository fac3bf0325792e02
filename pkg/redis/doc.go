// Package redis connects the Redis client used by the isolation violation
// stream writer.
package redis
