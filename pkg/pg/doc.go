// Package pg bootstraps PostgreSQL access over pgx/v5.
//
// Connect opens a pool with retries, Migrate applies embedded goose migrations
// through the database/sql bridge, and TxManager carries a transaction in the
// context so stores called inside WithinTx share it:
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	if err := pg.Migrate(ctx, pool, postgres.Migrations, cfg, log); err != nil {
//		return err
//	}
//	tx := pg.NewTxManager(pool)
//
// The Is* helpers classify pgx and PostgreSQL errors.
package pg
