// Package postgres opens the shared Postgres and Redis connections and owns
// the schema.
//
// The schema lives in migrations/*.sql, embedded into the binary. Migrate
// applies pending files in version order, one transaction each, and records
// them in lumen_migrations so it is safe to run on every start:
//
//	db, err := postgres.Open(ctx, postgres.Config{URL: cfg.Storage.PostgresURL, MaxConns: 20})
//	if err != nil {
//		return err
//	}
//	if err := postgres.Migrate(ctx, db, logger); err != nil {
//		return err
//	}
//
// Tables: organizations (plan and overage settings), usage (one counter per
// org, period and resource), webhooks and api_keys. The stores that read
// them live with their domain packages.
package postgres
