package domain

import (
	"sync"
	"time"

	"github.com/nathan-osman/go-sunrise"
)

// Bucket is a sun-relative part of the day.
type Bucket string

const (
	BucketMorning   Bucket = "morning"
	BucketAfternoon Bucket = "afternoon"
	BucketNight     Bucket = "night"
)

// Buckets returns every bucket in display order.
func Buckets() []Bucket {
	return []Bucket{BucketMorning, BucketAfternoon, BucketNight}
}

// Site is the fixed location daytime buckets are computed for.
type Site struct {
	Latitude  float64
	Longitude float64
	Location  *time.Location
}

// SunTimes are one calendar day's sunrise and sunset. Both are zero on days
// without a sunrise or sunset (polar day or night).
type SunTimes struct {
	Sunrise time.Time
	Sunset  time.Time
}

// Noon is the midpoint between sunrise and sunset.
func (s SunTimes) Noon() time.Time {
	return s.Sunrise.Add(s.Sunset.Sub(s.Sunrise) / 2)
}

type civilDate struct {
	year  int
	month time.Month
	day   int
}

// DaytimeClassifier buckets instants relative to the sun at a site. Sun times
// are cached per calendar date in the site's zone and never evicted, so one
// classifier should live for a single reporting run. It is safe for
// concurrent use.
//
// Boundaries are half-open toward the later bucket:
//
//	night      t < sunrise or t >= sunset
//	morning    sunrise <= t < noon
//	afternoon  noon <= t < sunset
//
// Days without a sunrise or sunset classify as night.
type DaytimeClassifier struct {
	site Site

	mu   sync.Mutex
	days map[civilDate]SunTimes
}

// NewDaytimeClassifier creates a classifier for site. A nil location means UTC.
func NewDaytimeClassifier(site Site) *DaytimeClassifier {
	if site.Location == nil {
		site.Location = time.UTC
	}
	return &DaytimeClassifier{site: site, days: make(map[civilDate]SunTimes)}
}

// Classify returns the bucket t falls into on its calendar date at the site.
func (c *DaytimeClassifier) Classify(t time.Time) Bucket {
	sun := c.SunTimes(t)
	if sun.Sunrise.IsZero() || sun.Sunset.IsZero() {
		return BucketNight
	}
	switch {
	case t.Before(sun.Sunrise), !t.Before(sun.Sunset):
		return BucketNight
	case t.Before(sun.Noon()):
		return BucketMorning
	default:
		return BucketAfternoon
	}
}

// SunTimes returns sunrise and sunset for the site-local calendar date of t.
func (c *DaytimeClassifier) SunTimes(t time.Time) SunTimes {
	local := t.In(c.site.Location)
	key := civilDate{local.Year(), local.Month(), local.Day()}

	c.mu.Lock()
	defer c.mu.Unlock()
	if sun, ok := c.days[key]; ok {
		return sun
	}
	rise, set := sunrise.SunriseSunset(c.site.Latitude, c.site.Longitude, key.year, key.month, key.day)
	sun := SunTimes{Sunrise: rise, Sunset: set}
	c.days[key] = sun
	return sun
}

// CachedDays reports how many calendar dates have been computed.
func (c *DaytimeClassifier) CachedDays() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.days)
}
