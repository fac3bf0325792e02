// Package mongo connects the MongoDB tenant store.
//
//	client, err := mongo.Connect(ctx, cfg.Mongo, log)
//	store := tenantstore.NewMongo(client.Database(cfg.Mongo.Database))
//	err = store.EnsureIndexes(ctx)
package mongo
