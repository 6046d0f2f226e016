//go:build integration

package throttle_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"profileclaim/internal/identity/throttle"
	"profileclaim/pkg/testutil/containers"
)

type RedisLimiterSuite struct {
	suite.Suite
	redis *containers.RedisContainer
}

func TestRedisLimiterSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisLimiterSuite))
}

func (s *RedisLimiterSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *RedisLimiterSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisLimiterSuite) TestLimitWithinWindow() {
	ctx := context.Background()
	l := throttle.NewRedis(s.redis.Client, 3, time.Minute)

	for i := 0; i < 3; i++ {
		d, err := l.Allow(ctx, "user-1")
		s.Require().NoError(err)
		s.True(d.Allowed)
		s.Equal(2-i, d.Remaining)
	}
	d, err := l.Allow(ctx, "user-1")
	s.Require().NoError(err)
	s.False(d.Allowed)
	s.Greater(d.RetryAfter, time.Duration(0))
	s.LessOrEqual(d.RetryAfter, time.Minute)
}

func (s *RedisLimiterSuite) TestWindowExpires() {
	ctx := context.Background()
	l := throttle.NewRedis(s.redis.Client, 1, 200*time.Millisecond)

	d, err := l.Allow(ctx, "user-2")
	s.Require().NoError(err)
	s.True(d.Allowed)
	d, _ = l.Allow(ctx, "user-2")
	s.False(d.Allowed)

	s.Eventually(func() bool {
		d, err := l.Allow(ctx, "user-2")
		return err == nil && d.Allowed
	}, 2*time.Second, 50*time.Millisecond)
}
