package redis

import "errors"

var (
	ErrFailedToParseRedisConnString = errors.New("invalid redis connection url")
	ErrRedisNotReady                = errors.New("redis not reachable before connect timeout")
	ErrHealthcheckFailed            = errors.New("redis ping failed")
)
