// Package ratelimit throttles anonymous endpoints per client with token
// buckets from golang.org/x/time/rate.
//
// It protects the unauthenticated surfaces (receipt verification before
// sign-in, onboarding reports keyed by device) from bursts; it is not the
// usage quota, which lives in package quota and is durable.
package ratelimit
