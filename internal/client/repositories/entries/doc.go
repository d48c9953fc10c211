// Package entries provides the client-side persistence layer for diary
// entries.
//
// An entry is keyed by (user, date) and carries the sync flags used by the
// engine: NeedsSync marks local edits awaiting push, LastAppliedChangeID
// records the remote change last materialized into the row and
// LocalVersion is bumped by every local write so that "mark synced" cannot
// clobber an edit made while a push was in flight.
//
// SQLiteRepository works over dbx.DBTX, so the same code runs against
// *sql.DB or inside a transaction.
//
//	repo := entries.NewSQLiteRepository(db)
//	_ = repo.Upsert(ctx, entry)
//	e, _ := repo.Get(ctx, key) // nil, nil when absent
//	pending, _ := repo.ListPending(ctx, userID)
package entries
