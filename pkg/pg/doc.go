// Package pg bootstraps the PostgreSQL layer: a pgx pool with connect
// retries, goose migrations read from an fs.FS, a readiness probe and a
// transaction that travels in the context.
//
// WithTx is how the quota commit and the caller's persistence land in one
// transaction: stores resolve their executor with Conn(ctx, pool), which
// returns the ambient pgx.Tx when one is present.
//
//	err := pg.WithTx(ctx, pool, func(ctx context.Context) error {
//		if err := chatLog.Append(ctx, entry); err != nil {
//			return err
//		}
//		return ledger.Commit(ctx, reservation, 1)
//	})
package pg
