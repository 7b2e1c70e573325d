// Package subscription keeps one entitlement record per user and reconciles
// the two ways it learns about purchases: a client-triggered receipt
// verification and an asynchronous App Store server notification.
//
// The two sources arrive in any order and may repeat. Service.Apply resolves
// them with two rules:
//
//   - A client verification is authoritative. It overwrites the stored
//     snapshot even when the new expiry is earlier.
//   - A notification only replaces the stored snapshot when its
//     (expiry, verifiedAt) pair is not older than what is stored, and only
//     the fields it actually carries are merged.
//
// Audit fields (last notification type and time, last validation time) are
// always updated. Every apply is a read-modify-write under the store's
// per-user lock.
//
// The transaction index maps an App Store original transaction ID to the
// user who first registered it. The mapping is permanent and never moves to
// another user; notifications carry only the transaction ID and are routed
// through it.
package subscription
