// Package redis connects to Redis with retries and exposes a health check.
// The billing view cache (svc/viewcache) runs on the returned client.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
package redis
