// Package output turns a processed pass into per-target GeoJSON files
// and the notification messages that announce them.
package output

import (
	"time"

	"github.com/google/uuid"
)

// Notification kinds. A "file" notification announces a written GeoJSON
// product; an "info" notification reports a pass that yielded no fires
// for the target, so downstream consumers can tell "no fires" from "no
// data".
const (
	KindFile = "file"
	KindInfo = "info"
)

// Notification is the message published for one target after a pass.
// URI is a bare filesystem path; consumers mount the same volume, so no
// hostname is included.
type Notification struct {
	MessageID    string    `json:"message_id"`
	Kind         string    `json:"kind"`
	Product      string    `json:"product"`
	PlatformName string    `json:"platform_name"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	OrbitNumber  int       `json:"orbit_number"`
	Target       string    `json:"target"`
	RegionCode   string    `json:"region_code,omitempty"`
	RegionName   string    `json:"region_name,omitempty"`
	Count        int       `json:"count"`
	URI          string    `json:"uri,omitempty"`
	UID          string    `json:"uid,omitempty"`
	Info         string    `json:"info,omitempty"`
}

func newMessageID() string { return uuid.NewString() }
