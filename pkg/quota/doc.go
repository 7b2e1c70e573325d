// Package quota meters usage of the AI coaching resources.
//
// Policy is the single place where limits are declared: each resource has one
// or more calendar windows (hour, day), a unit (count or seconds) and a flag
// saying whether a paid entitlement is required. Ledger enforces the policy
// with a two-phase protocol that survives concurrent callers and failed
// upstream calls:
//
//	res, err := ledger.Reserve(ctx, userID, quota.Chat, 1)
//	if err != nil {
//		// *DeniedError names the binding window and when it resets
//	}
//	reply, err := callProvider(ctx)
//	if err != nil {
//		_ = ledger.Release(ctx, res)
//		return err
//	}
//	return ledger.Commit(ctx, res, 1)
//
// Reserve succeeds for a window only when used+reserved+amount stays within
// the limit, and the check and increment happen atomically in the Store.
// Denied requests leave every counter untouched. Windows roll over by key
// (2006-01-02T15 for hours, 2006-01-02 for days) so there is no reset job.
package quota
