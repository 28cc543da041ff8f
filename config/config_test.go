package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STATUS_PROCESSING_SECONDS", "")
	t.Setenv("REFUND_WINDOW_DAYS", "")
	t.Setenv("STORE_DRIVER", "")

	cfg := Load()

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 60*time.Second, cfg.Business.ProcessingAfter)
	assert.Equal(t, 10*time.Second, cfg.Business.InTransitAfter)
	assert.Equal(t, 30*24*time.Hour, cfg.Business.RefundWindow)
	assert.Equal(t, 24*time.Hour, cfg.Business.IdempotencyTTL)
	assert.Equal(t, 1.0, cfg.Observ.TraceSampleRatio)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("STATUS_PROCESSING_SECONDS", "5")
	t.Setenv("STATUS_IN_TRANSIT_SECONDS", "nope")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("REFUND_WINDOW_DAYS", "7")
	t.Setenv("TRACE_SAMPLE_RATIO", "0.1")

	cfg := Load()

	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, 5*time.Second, cfg.Business.ProcessingAfter)
	assert.Equal(t, 10*time.Second, cfg.Business.InTransitAfter)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 7*24*time.Hour, cfg.Business.RefundWindow)
	assert.Equal(t, 0.1, cfg.Observ.TraceSampleRatio)
}
