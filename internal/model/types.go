package model

import (
	"time"
)

// Sentinels used when an attribute cannot be resolved
const (
	UnknownCity      = "Unknown City"
	UnknownCountry   = "Unknown Country"
	UnknownSubmitter = "unknown"
)

// Report represents one pothole submission
type Report struct {
	ID          string    `json:"id" bson:"_id"`
	Lat         float64   `json:"lat" bson:"lat"`
	Lng         float64   `json:"lng" bson:"lng"`
	City        string    `json:"city" bson:"city"`
	Country     string    `json:"country" bson:"country"`
	Timestamp   time.Time `json:"timestamp" bson:"timestamp"`
	SubmittedBy string    `json:"submitted_by" bson:"submitted_by"`
}

// CityCount is one group of an aggregation by city
type CityCount struct {
	City  string `json:"city" bson:"_id"`
	Count int64  `json:"count" bson:"count"`
}

// SortOrder selects the direction of an aggregation
type SortOrder int

const (
	// Most sorts groups by count, highest first
	Most SortOrder = iota
	// Least sorts groups by count, lowest first
	Least
)

func (o SortOrder) String() string {
	if o == Least {
		return "least"
	}
	return "most"
}

// Dashboard summarises all stored reports
type Dashboard struct {
	Total       int64       `json:"total"`
	MostCities  []CityCount `json:"mostCities"`
	LeastCities []CityCount `json:"leastCities"`
}

// PendingCode is the current one-time code for an identifier, stored as a hash
type PendingCode struct {
	Identifier string
	CodeHash   string
	ExpiresAt  time.Time // zero means no expiry
	CreatedAt  time.Time
}

// Expired reports whether the code is no longer usable at now. A code is still
// usable at exactly ExpiresAt.
func (p PendingCode) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && now.After(p.ExpiresAt)
}
