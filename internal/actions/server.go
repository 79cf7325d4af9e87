package actions

import (
	"github.com/hibiken/asynq"
)

// NewServer builds the asynq.Server that runs a Worker's handlers,
// wired with this package's exponential backoff policy.
func NewServer(redisOpt asynq.RedisConnOpt, concurrency int) *asynq.Server {
	if concurrency <= 0 {
		concurrency = 5
	}
	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:    concurrency,
		RetryDelayFunc: RetryDelay,
	})
}
