package redis

import (
	"fmt"

	"github.com/go-redis/redis/v8"
)

type MirrorClient struct {
	client *redis.Client
}

func NewMirrorClient(host, port, password string) *MirrorClient {
	addr := fmt.Sprintf("%s:%s", host, port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	return &MirrorClient{client: client}
}
