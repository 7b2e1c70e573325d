// Package coaching mounts the metered AI coaching endpoints and the quota
// lookup. Every endpoint except the onboarding report requires a bearer
// token; the report is keyed by the caller's device id and throttled per
// client address.
package coaching
