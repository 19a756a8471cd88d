package scheduler

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisClientOptConnects(t *testing.T) {
	srv := miniredis.RunT(t)

	opt, err := redisClientOpt("redis://"+srv.Addr(), false)
	if err != nil {
		t.Fatalf("redisClientOpt: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opt.Addr,
		Password: opt.Password,
		DB:       opt.DB,
	})
	defer client.Close()

	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
