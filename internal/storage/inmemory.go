package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shoplens/origin-report/internal/models"
)

// In-memory implementations back the service when no database is reachable
// and double as test fixtures.

// InMemoryAttributionSource serves records for one scheme from memory.
type InMemoryAttributionSource struct {
	mu      sync.RWMutex
	scheme  models.Scheme
	records []models.AttributionRecord
}

func NewInMemoryAttributionSource(scheme models.Scheme) *InMemoryAttributionSource {
	return &InMemoryAttributionSource{scheme: scheme}
}

// Add appends records to the source.
func (s *InMemoryAttributionSource) Add(records ...models.AttributionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
}

func (s *InMemoryAttributionSource) Scheme() models.Scheme { return s.scheme }

func (s *InMemoryAttributionSource) Available(ctx context.Context, dr models.DateRange) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for i := range s.records {
		if inRange(s.records[i].CreatedAt, dr) {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryAttributionSource) Fetch(ctx context.Context, dr models.DateRange, filters models.UTMFilters) ([]models.AttributionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []models.AttributionRecord
	for i := range s.records {
		rec := s.records[i]
		if !inRange(rec.CreatedAt, dr) {
			continue
		}
		if !filters.Match(&rec) {
			continue
		}
		result = append(result, rec)
	}
	return result, nil
}

func inRange(t time.Time, dr models.DateRange) bool {
	return !t.Before(dr.Start) && t.Before(dr.End)
}

// InMemoryOrderStore implements OrderStore in memory.
type InMemoryOrderStore struct {
	mu     sync.RWMutex
	orders map[int64]*models.Order
}

func NewInMemoryOrderStore() *InMemoryOrderStore {
	return &InMemoryOrderStore{orders: make(map[int64]*models.Order)}
}

// AddOrder seeds an order.
func (s *InMemoryOrderStore) AddOrder(o *models.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o
}

func (s *InMemoryOrderStore) SetOrigin(ctx context.Context, orderID int64, origin string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		o = &models.Order{ID: orderID, CreatedAt: time.Now().UTC()}
		s.orders[orderID] = o
	}
	o.Origin = origin
	return nil
}

func (s *InMemoryOrderStore) GetOrigin(ctx context.Context, orderID int64) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[orderID]
	if !ok {
		return "", nil
	}
	return o.Origin, nil
}

func (s *InMemoryOrderStore) ListOrders(ctx context.Context, start, end time.Time) ([]*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Order
	for _, o := range s.orders {
		if isExcludedStatus(o.Status) {
			continue
		}
		if o.CreatedAt.Before(start) || !o.CreatedAt.Before(end) {
			continue
		}
		result = append(result, o)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func isExcludedStatus(status string) bool {
	for _, s := range excludedStatuses {
		if status == s {
			return true
		}
	}
	return false
}

// InMemorySettingsStore implements SettingsStore in memory.
type InMemorySettingsStore struct {
	mu           sync.RWMutex
	dateOverride string
	adSpend      map[string]float64
}

func NewInMemorySettingsStore() *InMemorySettingsStore {
	return &InMemorySettingsStore{adSpend: make(map[string]float64)}
}

func (s *InMemorySettingsStore) GetDateOverride(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dateOverride, nil
}

func (s *InMemorySettingsStore) SetDateOverride(ctx context.Context, value string) error {
	if err := ValidateDateOverride(value); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dateOverride = value
	return nil
}

func (s *InMemorySettingsStore) GetAdSpend(ctx context.Context, rangeKey string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.adSpend[rangeKey], nil
}

func (s *InMemorySettingsStore) SetAdSpend(ctx context.Context, rangeKey string, amount float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adSpend[rangeKey] = amount
	return nil
}

func (s *InMemorySettingsStore) ListAdSpend(ctx context.Context) ([]models.AdSpendEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]models.AdSpendEntry, 0, len(s.adSpend))
	for k, v := range s.adSpend {
		entries = append(entries, models.AdSpendEntry{RangeKey: k, Amount: v})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].RangeKey < entries[j].RangeKey })
	return entries, nil
}

// InMemoryTouchSink implements TouchSink in memory.
type InMemoryTouchSink struct {
	mu      sync.RWMutex
	touches []*models.TouchEvent
}

func NewInMemoryTouchSink() *InMemoryTouchSink {
	return &InMemoryTouchSink{}
}

func (s *InMemoryTouchSink) SaveTouch(ctx context.Context, ev *models.TouchEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touches = append(s.touches, ev)
	return nil
}

// Touches returns all stored events.
func (s *InMemoryTouchSink) Touches() []*models.TouchEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.TouchEvent, len(s.touches))
	copy(out, s.touches)
	return out
}

func (s *InMemoryTouchSink) VisitsByOrigin(ctx context.Context, dr models.DateRange) ([]models.VisitBucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int64)
	for _, t := range s.touches {
		if inRange(t.Timestamp, dr) {
			counts[t.Origin]++
		}
	}
	buckets := make([]models.VisitBucket, 0, len(counts))
	for origin, visits := range counts {
		buckets = append(buckets, models.VisitBucket{Origin: origin, Visits: visits})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Visits > buckets[j].Visits })
	return buckets, nil
}

// InMemoryOriginCounter implements OriginCounter in memory.
type InMemoryOriginCounter struct {
	mu   sync.RWMutex
	days map[string]map[string]int64
}

func NewInMemoryOriginCounter() *InMemoryOriginCounter {
	return &InMemoryOriginCounter{days: make(map[string]map[string]int64)}
}

func (c *InMemoryOriginCounter) IncrOrigin(ctx context.Context, day time.Time, label string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := day.Format("2006-01-02")
	if c.days[key] == nil {
		c.days[key] = make(map[string]int64)
	}
	c.days[key][label]++
	return nil
}

func (c *InMemoryOriginCounter) DayCounts(ctx context.Context, day time.Time) (map[string]int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	counts := make(map[string]int64)
	for label, n := range c.days[day.Format("2006-01-02")] {
		counts[label] = n
	}
	return counts, nil
}
