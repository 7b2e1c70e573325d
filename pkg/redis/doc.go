// Package redis connects to the Redis instance that backs quota counters.
//
// Connect retries until the server answers PING or the connect timeout
// expires; Healthcheck plugs the client into the readiness endpoint.
package redis
