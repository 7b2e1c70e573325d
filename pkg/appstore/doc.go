// Package appstore talks to Apple's App Store.
//
// Verifier validates a client receipt against the legacy verifyReceipt
// endpoint, retrying once against the sandbox endpoint when the production
// endpoint reports a sandbox receipt (status 21007), and normalizes the most
// relevant transaction into a subscription.Snapshot.
//
// ParseNotification decodes App Store server notifications. Both the flat
// legacy JSON body and the signed {"signedPayload": "..."} body are accepted.
// Signed payloads are verified with a JWSVerifier when one is configured;
// otherwise the claims segment is decoded without verification.
package appstore
