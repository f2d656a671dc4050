package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ParsePassMessage deserializes a RawEvent's value into a PassMessage.
// An end time earlier than the start time means the pass straddled
// midnight and only the time of day survived upstream; a day is added.
func ParsePassMessage(raw RawEvent) (PassMessage, error) {
	var msg PassMessage
	if err := json.Unmarshal(raw.Value, &msg); err != nil {
		return PassMessage{}, fmt.Errorf("parse pass message: %w", err)
	}

	if msg.Product == "" {
		return PassMessage{}, errors.New("pass message has no product name")
	}
	if msg.StartTime.IsZero() {
		return PassMessage{}, errors.New("pass message has no start time")
	}
	if msg.EndTime.IsZero() {
		msg.EndTime = msg.StartTime
	}
	if msg.EndTime.Before(msg.StartTime) {
		msg.EndTime = msg.EndTime.Add(24 * time.Hour)
	}

	return msg, nil
}
