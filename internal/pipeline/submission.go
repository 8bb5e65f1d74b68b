package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
)

// maxSubmissionBytes bounds the request body read by DecodeSubmission
const maxSubmissionBytes = 1 << 16

// Submission is a validated report request
type Submission struct {
	Lat float64
	Lng float64
}

// DecodeSubmission reads a JSON object and requires lat and lng to be JSON numbers.
// Strings that merely look numeric are rejected.
func DecodeSubmission(body io.Reader) (Submission, error) {
	if body == nil {
		return Submission{}, fmt.Errorf("%w: request body is required", ErrInvalidInput)
	}

	var raw struct {
		Lat any `json:"lat"`
		Lng any `json:"lng"`
	}
	if err := json.NewDecoder(io.LimitReader(body, maxSubmissionBytes)).Decode(&raw); err != nil {
		return Submission{}, fmt.Errorf("%w: invalid request body: %v", ErrInvalidInput, err)
	}

	lat, ok := raw.Lat.(float64)
	if !ok || math.IsNaN(lat) || math.IsInf(lat, 0) {
		return Submission{}, fmt.Errorf("%w: lat and lng required", ErrInvalidInput)
	}
	lng, ok := raw.Lng.(float64)
	if !ok || math.IsNaN(lng) || math.IsInf(lng, 0) {
		return Submission{}, fmt.Errorf("%w: lat and lng required", ErrInvalidInput)
	}
	return Submission{Lat: lat, Lng: lng}, nil
}
