package domain

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Detection is one observed hotspot, immutable once decoded.
// Coordinates are decimal degrees WGS 84, TB is kelvin, Power is megawatts.
type Detection struct {
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	TB            float64 `json:"tb"`
	AlongScanRes  float64 `json:"along_scan_res"`
	AlongTrackRes float64 `json:"along_track_res"`
	Confidence    int     `json:"conf"`
	Power         float64 `json:"power"`
}

// Validate checks that a decoded detection record is physically plausible.
func (d Detection) Validate() error {
	if math.IsNaN(d.Latitude) || d.Latitude < -90 || d.Latitude > 90 {
		return fmt.Errorf("latitude out of range: %v", d.Latitude)
	}
	if math.IsNaN(d.Longitude) || d.Longitude < -180 || d.Longitude > 180 {
		return fmt.Errorf("longitude out of range: %v", d.Longitude)
	}
	if math.IsNaN(d.TB) || d.TB <= 0 {
		return fmt.Errorf("brightness temperature out of range: %v", d.TB)
	}
	if math.IsNaN(d.Power) || d.Power < 0 {
		return fmt.Errorf("fire radiative power out of range: %v", d.Power)
	}
	return nil
}

// AnnotatedDetection is a detection with its assigned stable identifier.
type AnnotatedDetection struct {
	Detection
	ID string `json:"id"`
}

// PassMessage is one decoded batch of detections for one satellite pass,
// as published by the upstream granule decoder.
type PassMessage struct {
	Product      string      `json:"product"`
	PlatformName string      `json:"platform_name"`
	StartTime    time.Time   `json:"start_time"`
	EndTime      time.Time   `json:"end_time"`
	OrbitNumber  int         `json:"orbit_number"`
	Detections   []Detection `json:"detections"`
}

// ObservationTime is the mean granule time, halfway between pass start and end.
func (p PassMessage) ObservationTime() time.Time {
	return p.StartTime.Add(p.EndTime.Sub(p.StartTime) / 2)
}

// RawEvent represents an unprocessed message from the source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}
