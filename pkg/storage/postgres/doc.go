// Package postgres implements the durable stores on PostgreSQL through pgx:
// entitlement records, the transaction index, quota counters and the
// coaching results. Every query goes through pg.Conn, so writes join the
// transaction started by pg.WithTx when the context carries one.
//
// Schema migrations are embedded and applied with Migrate.
package postgres
