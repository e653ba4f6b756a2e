// Package redis connects to the Redis server backing the shared repeat-evidence tracker.
//
// Connect parses the URL, pings with retries and returns a ready client. NewTracker wraps
// that client in a tracker.RedisTracker using the configured key prefix, so several
// processes sharing usage data suppress the same repeated evidence:
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//	su, err := shareusage.New(suCfg, sink, shareusage.WithTracker(redis.NewTracker(client, cfg, suCfg.RepeatEvidenceInterval)))
package redis
