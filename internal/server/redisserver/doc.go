// Package redisserver exposes the attached store over a subset of the
// Redis RESP2 protocol, so redis-cli and Redis client libraries can read
// and write keys.
//
// Supported commands:
//   - PING, ECHO, QUIT, SELECT 0, COMMAND
//   - GET, MGET, SET [NX|XX], DEL, EXISTS
//   - KEYS, SCAN, DBSIZE, INFO
//
// Keys replicate like any other write; there is no expiry.
package redisserver
