package geo

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/oschwald/maxminddb-golang"
	"github.com/shoplens/origin-report/internal/metrics"
)

// Info holds the geographic fields attached to touch events.
type Info struct {
	Country     string
	CountryCode string
	City        string
	Timezone    string
}

// Provider resolves an IP address to geographic information.
type Provider interface {
	Lookup(ip string) (*Info, error)
	Close() error
}

// MaxMindProvider implements Provider over a MaxMind GeoLite2 City database.
type MaxMindProvider struct {
	reader *maxminddb.Reader
}

type cityRecord struct {
	Country struct {
		ISOCode string            `maxminddb:"iso_code"`
		Names   map[string]string `maxminddb:"names"`
	} `maxminddb:"country"`
	City struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
	Location struct {
		TimeZone string `maxminddb:"time_zone"`
	} `maxminddb:"location"`
}

// NewMaxMindProvider opens the GeoLite2 database at dbPath.
func NewMaxMindProvider(dbPath string) (*MaxMindProvider, error) {
	reader, err := maxminddb.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open GeoIP database: %w", err)
	}
	return &MaxMindProvider{reader: reader}, nil
}

// Lookup returns geo information for an IP address.
func (m *MaxMindProvider) Lookup(ip string) (*Info, error) {
	parsedIP := net.ParseIP(ip)
	if parsedIP == nil {
		return nil, fmt.Errorf("invalid IP address: %s", ip)
	}

	var record cityRecord
	if err := m.reader.Lookup(parsedIP, &record); err != nil {
		return nil, err
	}

	return &Info{
		Country:     record.Country.Names["en"],
		CountryCode: record.Country.ISOCode,
		City:        record.City.Names["en"],
		Timezone:    record.Location.TimeZone,
	}, nil
}

// Close closes the GeoIP database.
func (m *MaxMindProvider) Close() error {
	if m.reader != nil {
		return m.reader.Close()
	}
	return nil
}

// Resolver wraps a Provider with a small TTL cache. A nil Resolver or a
// Resolver without a provider resolves everything to nil.
type Resolver struct {
	provider Provider
	cache    *lookupCache
	metrics  *metrics.Metrics
}

type lookupCache struct {
	mu      sync.RWMutex
	data    map[string]*cacheEntry
	maxSize int
	ttl     time.Duration
}

type cacheEntry struct {
	info      *Info
	expiresAt time.Time
}

// NewResolver creates a caching resolver. provider may be nil when geo
// enrichment is disabled.
func NewResolver(provider Provider, cacheSize int, cacheTTL time.Duration, m *metrics.Metrics) *Resolver {
	return &Resolver{
		provider: provider,
		cache: &lookupCache{
			data:    make(map[string]*cacheEntry),
			maxSize: cacheSize,
			ttl:     cacheTTL,
		},
		metrics: m,
	}
}

// Resolve performs a cached geo lookup. Failures resolve to nil rather than
// an error; touch recording never blocks on geo.
func (r *Resolver) Resolve(ip string) *Info {
	if r == nil || r.provider == nil || ip == "" {
		return nil
	}

	start := time.Now()
	if info, ok := r.cache.get(ip); ok {
		if r.metrics != nil {
			r.metrics.RecordGeoLookup(true, time.Since(start))
		}
		return info
	}

	info, err := r.provider.Lookup(ip)
	if err != nil {
		return nil
	}

	r.cache.set(ip, info)
	if r.metrics != nil {
		r.metrics.RecordGeoLookup(false, time.Since(start))
	}
	return info
}

// Close releases the underlying provider.
func (r *Resolver) Close() error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close()
}

func (c *lookupCache) get(ip string) (*Info, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.data[ip]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.info, true
}

func (c *lookupCache) set(ip string, info *Info) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Evict if at capacity (simple FIFO)
	if len(c.data) >= c.maxSize {
		for k := range c.data {
			delete(c.data, k)
			break
		}
	}

	c.data[ip] = &cacheEntry{
		info:      info,
		expiresAt: time.Now().Add(c.ttl),
	}
}
