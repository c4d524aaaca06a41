package metrics

import (
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/rs/zerolog/log"
)

const (
	APIRequestCount   = "api.request.count"
	APIRequestLatency = "api.request.latency"
	PredictionCount   = "prediction.count"
	PredictionLatency = "prediction.latency"
	PredictionError   = "prediction.error"
	CacheHit          = "prediction.cache.hit"
	CacheMiss         = "prediction.cache.miss"
)

var (
	// Safe for concurrent use; no-op until Init is called with metrics enabled.
	client       statsd.ClientInterface = &statsd.NoOpClient{}
	samplingRate                        = 1.0
)

// Init points the package at a statsd agent. Failures are logged and leave
// the no-op client in place, so a missing agent never stops the service.
func Init(enabled bool, address, appName, env string, rate float64) {
	if !enabled {
		log.Info().Msg("metrics disabled")
		return
	}
	c, err := statsd.New(address,
		statsd.WithNamespace(appName+"."),
		statsd.WithTags([]string{"env:" + env, "service:" + appName}),
	)
	if err != nil {
		log.Error().Err(err).Msg("statsd client initialization failed, metrics will be unavailable")
		return
	}
	client = c
	samplingRate = rate
	log.Info().Str("address", address).Float64("sampling_rate", rate).Msg("metrics client initialized")
}

func Close() {
	if err := client.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close statsd client")
	}
}

// Tag formats a statsd tag.
func Tag(key, value string) string {
	return key + ":" + value
}

func Timing(name string, value time.Duration, tags ...string) {
	if err := client.Timing(name, value, tags, samplingRate); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("statsd timing failed")
	}
}

func Incr(name string, tags ...string) {
	if err := client.Incr(name, tags, samplingRate); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("statsd incr failed")
	}
}
