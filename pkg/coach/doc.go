// Package coach runs the metered AI coaching actions.
//
// Every action follows the same order: check entitlement when the resource
// requires it, reserve quota, call the provider detached from the caller's
// cancellation, then persist the result and commit the usage together. A
// failed call releases the reservation. Speech, crisis guidance and the
// onboarding report degrade to deterministic fallbacks instead of failing.
package coach
