package errx

import (
	"net/http"
)

// WrapRedis wraps a Redis error with a consistent status code and message.
func WrapRedis(err error) error {
	if err == nil {
		return nil
	}
	return New(err, http.StatusBadGateway, CodeStorage, RedisErrorMessage).
		WithHints("check REDIS_URL and that the redis instance is reachable")
}
