package cache

import (
	"crypto/sha256"
	"errors"
	"time"

	"github.com/coocood/freecache"
	"github.com/rs/zerolog/log"
)

// ResultCache keeps serialized prediction results keyed by a hash of the
// uploaded image bytes. The model is fixed for the process lifetime, so equal
// bytes always map to the same result.
type ResultCache struct {
	cache *freecache.Cache
	ttl   int
}

// New returns nil when sizeMB is not positive; a nil *ResultCache is a valid,
// always-missing cache.
func New(sizeMB int, ttl time.Duration) *ResultCache {
	if sizeMB <= 0 {
		log.Info().Msg("prediction cache disabled")
		return nil
	}
	log.Info().Int("size_mb", sizeMB).Dur("ttl", ttl).Msg("prediction cache enabled")
	return &ResultCache{
		cache: freecache.NewCache(sizeMB * 1024 * 1024),
		ttl:   int(ttl / time.Second),
	}
}

// Key is the SHA-256 digest of raw image bytes. Results are served by key
// alone, so the digest must be collision resistant.
func Key(raw []byte) []byte {
	sum := sha256.Sum256(raw)
	return sum[:]
}

func (c *ResultCache) Get(key []byte) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	value, err := c.cache.Get(key)
	if err != nil {
		if !errors.Is(err, freecache.ErrNotFound) {
			log.Warn().Err(err).Msg("prediction cache get failed")
		}
		return nil, false
	}
	return value, true
}

func (c *ResultCache) Set(key, value []byte) {
	if c == nil {
		return
	}
	if err := c.cache.Set(key, value, c.ttl); err != nil {
		log.Warn().Err(err).Int("bytes", len(value)).Msg("prediction cache set failed")
	}
}

// Len reports the number of live entries.
func (c *ResultCache) Len() int64 {
	if c == nil {
		return 0
	}
	return c.cache.EntryCount()
}
