// Package metrics collects run counters and reports them to Redis so
// operators can watch throughput without a separate metrics stack.
package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"quakewatch/internal/pipeline"
)

const (
	// KeyPrefix is the Redis key prefix for service metrics.
	KeyPrefix = "metrics:"
	// TTL is how long metrics stay in Redis if not refreshed.
	TTL = 30 * time.Minute
	// DefaultReportInterval is the default interval for writing metrics to Redis.
	DefaultReportInterval = 30 * time.Second
)

// Snapshot is the JSON document written to Redis after each report interval.
type Snapshot struct {
	ServiceName string    `json:"service_name"`
	StartedAt   time.Time `json:"started_at"`
	LastUpdated time.Time `json:"last_updated"`
	Status      string    `json:"status"` // "healthy" or "unhealthy"

	// Counters, monotonically increasing since start.
	RunsCompleted  uint64 `json:"runs_completed"`
	EventsSeen     uint64 `json:"events_seen"`
	Malformed      uint64 `json:"malformed"`
	Deduplicated   uint64 `json:"deduplicated"`
	RateLimited    uint64 `json:"rate_limited"`
	Emitted        uint64 `json:"emitted"`
	Delivered      uint64 `json:"delivered"`
	DeliveryErrors uint64 `json:"delivery_errors"`
	ChannelErrors  uint64 `json:"channel_errors"`

	// Average run latency in nanoseconds, over all runs since start.
	AvgRunLatencyNs float64 `json:"avg_run_latency_ns"`

	// Per-channel emitted counts.
	EmittedByChannel map[string]uint64 `json:"emitted_by_channel,omitempty"`
}

// Collector accumulates counters across runs and periodically reports them.
type Collector struct {
	serviceName    string
	redis          *redis.Client
	startedAt      time.Time
	reportInterval time.Duration

	runsCompleted  atomic.Uint64
	eventsSeen     atomic.Uint64
	malformed      atomic.Uint64
	deduplicated   atomic.Uint64
	rateLimited    atomic.Uint64
	emitted        atomic.Uint64
	delivered      atomic.Uint64
	deliveryErrors atomic.Uint64
	channelErrors  atomic.Uint64

	totalRunLatencyNs atomic.Uint64

	channelMu        sync.RWMutex
	emittedByChannel map[string]*atomic.Uint64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewCollector creates a collector. A nil Redis client disables reporting
// but keeps the counters usable.
func NewCollector(serviceName string, redisClient *redis.Client) *Collector {
	return &Collector{
		serviceName:      serviceName,
		redis:            redisClient,
		startedAt:        time.Now().UTC(),
		reportInterval:   DefaultReportInterval,
		emittedByChannel: make(map[string]*atomic.Uint64),
		stopCh:           make(chan struct{}),
	}
}

// SetReportInterval sets the interval for writing metrics to Redis.
func (c *Collector) SetReportInterval(interval time.Duration) {
	c.reportInterval = interval
}

// Start begins the periodic metrics reporting to Redis.
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.reportInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				c.write(context.Background()) // Final write
				return
			case <-c.stopCh:
				c.write(context.Background()) // Final write
				return
			case <-ticker.C:
				c.write(ctx)
			}
		}
	}()
}

// Stop stops the metrics reporting.
func (c *Collector) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

// RecordRun folds one run summary into the counters.
func (c *Collector) RecordRun(summary pipeline.Summary, latency time.Duration) {
	c.runsCompleted.Add(1)
	c.eventsSeen.Add(uint64(summary.EventsSeen))
	c.malformed.Add(uint64(summary.Malformed))
	c.deduplicated.Add(uint64(summary.Deduplicated))
	c.rateLimited.Add(uint64(summary.RateLimited))
	c.emitted.Add(uint64(summary.Emitted))
	c.channelErrors.Add(uint64(len(summary.ChannelErrors)))
	c.totalRunLatencyNs.Add(uint64(latency.Nanoseconds()))
}

// RecordDelivered increments the delivered counter.
func (c *Collector) RecordDelivered() {
	c.delivered.Add(1)
}

// RecordDeliveryError increments the delivery error counter.
func (c *Collector) RecordDeliveryError() {
	c.deliveryErrors.Add(1)
}

// RecordEmitted increments the per-channel emitted counter.
func (c *Collector) RecordEmitted(channel string) {
	c.channelMu.RLock()
	counter, exists := c.emittedByChannel[channel]
	c.channelMu.RUnlock()

	if !exists {
		c.channelMu.Lock()
		// Double-check after acquiring write lock
		if counter, exists = c.emittedByChannel[channel]; !exists {
			counter = &atomic.Uint64{}
			c.emittedByChannel[channel] = counter
		}
		c.channelMu.Unlock()
	}
	counter.Add(1)
}

// GetSnapshot returns current metrics without writing to Redis.
func (c *Collector) GetSnapshot() *Snapshot {
	var avgLatencyNs float64
	runs := c.runsCompleted.Load()
	if runs > 0 {
		avgLatencyNs = float64(c.totalRunLatencyNs.Load()) / float64(runs)
	}

	c.channelMu.RLock()
	byChannel := make(map[string]uint64, len(c.emittedByChannel))
	for name, counter := range c.emittedByChannel {
		byChannel[name] = counter.Load()
	}
	c.channelMu.RUnlock()

	return &Snapshot{
		ServiceName:      c.serviceName,
		StartedAt:        c.startedAt,
		LastUpdated:      time.Now().UTC(),
		Status:           "healthy",
		RunsCompleted:    runs,
		EventsSeen:       c.eventsSeen.Load(),
		Malformed:        c.malformed.Load(),
		Deduplicated:     c.deduplicated.Load(),
		RateLimited:      c.rateLimited.Load(),
		Emitted:          c.emitted.Load(),
		Delivered:        c.delivered.Load(),
		DeliveryErrors:   c.deliveryErrors.Load(),
		ChannelErrors:    c.channelErrors.Load(),
		AvgRunLatencyNs:  avgLatencyNs,
		EmittedByChannel: byChannel,
	}
}

func (c *Collector) write(ctx context.Context) {
	if c.redis == nil {
		return
	}

	snapshot := c.GetSnapshot()

	data, err := json.Marshal(snapshot)
	if err != nil {
		slog.Error("Failed to marshal metrics", "service", c.serviceName, "error", err)
		return
	}

	key := KeyPrefix + c.serviceName
	if err := c.redis.Set(ctx, key, data, TTL).Err(); err != nil {
		slog.Error("Failed to write metrics to Redis", "service", c.serviceName, "error", err)
		return
	}

	slog.Debug("Metrics written to Redis", "service", c.serviceName, "key", key)
}

// Read retrieves the last reported snapshot for a service. Stale snapshots
// are returned with Status set to "unhealthy".
func Read(ctx context.Context, client *redis.Client, serviceName string) (*Snapshot, error) {
	key := KeyPrefix + serviceName
	data, err := client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("no metrics found for service: %s", serviceName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read metrics: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
	}

	if time.Since(snapshot.LastUpdated) > TTL {
		snapshot.Status = "unhealthy"
	}

	return &snapshot, nil
}
