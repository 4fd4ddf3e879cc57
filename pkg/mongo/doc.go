// Package mongo connects to MongoDB with retries and prepares the collections
// used by the billing stores.
//
//	db, err := mongo.ConnectDatabase(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	if err := mongo.EnsureIndexes(ctx, db); err != nil {
//		return err
//	}
//
// Healthcheck plugs into the HTTP health endpoint.
package mongo
