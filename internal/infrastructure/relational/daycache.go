package relational

import (
	"context"
	"sort"
	"time"

	"gorm.io/gorm"
)

const day = 24 * time.Hour

// DayLoader reads every row of one group whose date falls within [from, to).
type DayLoader[T any] func(ctx context.Context, db *gorm.DB, from, to time.Time, group string) ([]T, error)

// GroupStats counts cache activity of one group key across a run.
type GroupStats struct {
	DaysLoaded int
	EmptyDays  int
	Lookups    int
	Misses     int
}

// DayBucketCache keeps the rows of a single calendar day, grouped and indexed by
// a match key. Asking for another day drops everything cached for the previous one.
// It is not safe for concurrent use.
type DayBucketCache[T any] struct {
	load  DayLoader[T]
	keyOf func(T) string

	day    time.Time
	groups map[string]map[string]T
	stats  map[string]*GroupStats
}

func NewDayBucketCache[T any](load DayLoader[T], keyOf func(T) string) *DayBucketCache[T] {
	return &DayBucketCache[T]{
		load:   load,
		keyOf:  keyOf,
		groups: make(map[string]map[string]T),
		stats:  make(map[string]*GroupStats),
	}
}

// Find returns the cached row of group matching key on the day of at, loading the
// whole day for the group on first use.
func (c *DayBucketCache[T]) Find(ctx context.Context, db *gorm.DB, at time.Time, group, key string) (T, bool, error) {
	var zero T
	bucket, err := c.bucket(ctx, db, at, group)
	if err != nil {
		return zero, false, err
	}
	stats := c.statsFor(group)
	stats.Lookups++
	row, ok := bucket[key]
	if !ok {
		stats.Misses++
	}
	return row, ok, nil
}

// Remember adds a freshly written row so later lookups of the same day see it.
func (c *DayBucketCache[T]) Remember(at time.Time, group string, row T) {
	if !c.day.Equal(truncateDay(at)) {
		return
	}
	bucket, ok := c.groups[group]
	if !ok {
		return
	}
	key := c.keyOf(row)
	if _, exists := bucket[key]; !exists {
		bucket[key] = row
	}
}

// Day is the day currently held, zero when empty.
func (c *DayBucketCache[T]) Day() time.Time {
	return c.day
}

// Stats returns the counters of a group.
func (c *DayBucketCache[T]) Stats(group string) GroupStats {
	if s, ok := c.stats[group]; ok {
		return *s
	}
	return GroupStats{}
}

// Missing splits the groups that had lookup misses into those that had no rows at
// all on any loaded day and those that were only partially present.
func (c *DayBucketCache[T]) Missing() (whole, partial []string) {
	for group, s := range c.stats {
		switch {
		case s.DaysLoaded > 0 && s.EmptyDays == s.DaysLoaded:
			whole = append(whole, group)
		case s.Misses > 0:
			partial = append(partial, group)
		}
	}
	sort.Strings(whole)
	sort.Strings(partial)
	return whole, partial
}

// Reset drops every cached row and counter.
func (c *DayBucketCache[T]) Reset() {
	c.day = time.Time{}
	c.groups = make(map[string]map[string]T)
	c.stats = make(map[string]*GroupStats)
}

func (c *DayBucketCache[T]) bucket(ctx context.Context, db *gorm.DB, at time.Time, group string) (map[string]T, error) {
	d := truncateDay(at)
	if !d.Equal(c.day) {
		c.day = d
		c.groups = make(map[string]map[string]T)
	}
	if bucket, ok := c.groups[group]; ok {
		return bucket, nil
	}

	rows, err := c.load(ctx, db, d, d.Add(day), group)
	if err != nil {
		return nil, err
	}
	bucket := make(map[string]T, len(rows))
	for _, row := range rows {
		key := c.keyOf(row)
		if _, exists := bucket[key]; !exists {
			bucket[key] = row
		}
	}
	c.groups[group] = bucket

	stats := c.statsFor(group)
	stats.DaysLoaded++
	if len(rows) == 0 {
		stats.EmptyDays++
	}
	return bucket, nil
}

func (c *DayBucketCache[T]) statsFor(group string) *GroupStats {
	s, ok := c.stats[group]
	if !ok {
		s = &GroupStats{}
		c.stats[group] = s
	}
	return s
}

func truncateDay(t time.Time) time.Time {
	return t.UTC().Truncate(day)
}
