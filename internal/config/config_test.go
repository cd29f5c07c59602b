package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("REPUBLISH_TIMESTAMP_POLICY", "")
	t.Setenv("PUBLICATION_LOCK_BACKEND", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("ARCHIVE_S3_BUCKET", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, RepublishPreservePublishedAt, cfg.Publication.RepublishTimestampPolicy)
	require.Equal(t, LockBackendLocal, cfg.Publication.LockBackend)
	require.True(t, cfg.Publication.AggregatePeersIncludeSiblings)
	require.Equal(t, time.Minute, cfg.Publication.LockTTL())
	require.False(t, cfg.Kafka.Enabled())
	require.False(t, cfg.Archive.Enabled())
}

func TestLoad_PublicationOverrides(t *testing.T) {
	t.Setenv("REPUBLISH_TIMESTAMP_POLICY", "Refresh")
	t.Setenv("PUBLICATION_LOCK_BACKEND", "redis")
	t.Setenv("PUBLICATION_LOCK_TTL_SECONDS", "15")
	t.Setenv("PEER_AGGREGATE_INCLUDE_SIBLINGS", "false")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, RepublishRefreshPublishedAt, cfg.Publication.RepublishTimestampPolicy)
	require.Equal(t, LockBackendRedis, cfg.Publication.LockBackend)
	require.Equal(t, 15*time.Second, cfg.Publication.LockTTL())
	require.False(t, cfg.Publication.AggregatePeersIncludeSiblings)
	require.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	require.True(t, cfg.Kafka.Enabled())
}

func TestLoad_RejectsUnknownPolicy(t *testing.T) {
	t.Setenv("REPUBLISH_TIMESTAMP_POLICY", "sometimes")
	_, err := Load()
	require.Error(t, err)
}

func TestLoad_RejectsUnknownLockBackend(t *testing.T) {
	t.Setenv("REPUBLISH_TIMESTAMP_POLICY", "")
	t.Setenv("PUBLICATION_LOCK_BACKEND", "zookeeper")
	_, err := Load()
	require.Error(t, err)
}
