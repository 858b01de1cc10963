//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"provenance/internal/document/models"
	"provenance/internal/platform/metrics"
	"provenance/pkg/testutil/containers"
)

type RedisCacheSuite struct {
	suite.Suite
	redis   *containers.RedisContainer
	metrics *metrics.Metrics
	cache   *RedisCache
}

func TestRedisCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisCacheSuite))
}

func (s *RedisCacheSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
}

func (s *RedisCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
	s.metrics = metrics.NewWithRegistry(prometheus.NewRegistry())
	s.cache = NewRedisCache(s.redis.Client, time.Hour, s.metrics)
}

func (s *RedisCacheSuite) TestSaveAndFind() {
	ctx := context.Background()
	proof := models.VerificationProof{
		TransactionID: "tx-1",
		DocHash:       "abc123",
		VerifiedBy:    "alice",
		Timestamp:     time.Now().UTC().Truncate(time.Millisecond),
		Comments:      "matches source",
	}
	s.Require().NoError(s.cache.Save(ctx, "doc-1", proof))

	got, err := s.cache.Find(ctx, "doc-1")
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Equal(proof, *got)
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.ProofCacheHits))
}

func (s *RedisCacheSuite) TestMissIsNotAnError() {
	got, err := s.cache.Find(context.Background(), "unknown")
	s.Require().NoError(err)
	s.Nil(got)
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.ProofCacheMisses))
}

func (s *RedisCacheSuite) TestInvalidate() {
	ctx := context.Background()
	proof := models.VerificationProof{TransactionID: "tx-1", DocHash: "abc", VerifiedBy: "alice", Timestamp: time.Now().UTC()}
	s.Require().NoError(s.cache.Save(ctx, "doc-1", proof))
	s.Require().NoError(s.cache.Invalidate(ctx, "doc-1"))

	got, err := s.cache.Find(ctx, "doc-1")
	s.Require().NoError(err)
	s.Nil(got)
}

func (s *RedisCacheSuite) TestEntriesExpire() {
	ctx := context.Background()
	short := NewRedisCache(s.redis.Client, 100*time.Millisecond, s.metrics)
	proof := models.VerificationProof{TransactionID: "tx-1", DocHash: "abc", VerifiedBy: "alice", Timestamp: time.Now().UTC()}
	s.Require().NoError(short.Save(ctx, "doc-1", proof))

	s.Require().Eventually(func() bool {
		got, err := short.Find(ctx, "doc-1")
		return err == nil && got == nil
	}, 2*time.Second, 50*time.Millisecond)
}
