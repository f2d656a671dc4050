package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adybbroe/activefires-pp/internal/domain"
)

func validDetection() domain.Detection {
	return domain.Detection{
		Latitude:      59.52,
		Longitude:     17.1,
		TB:            336.6,
		AlongScanRes:  0.375,
		AlongTrackRes: 0.375,
		Confidence:    8,
		Power:         14.5,
	}
}

func TestDetection_Validate(t *testing.T) {
	assert.NoError(t, validDetection().Validate())

	cases := []struct {
		name   string
		mutate func(*domain.Detection)
	}{
		{"latitude too large", func(d *domain.Detection) { d.Latitude = 90.01 }},
		{"latitude too small", func(d *domain.Detection) { d.Latitude = -91 }},
		{"longitude out of range", func(d *domain.Detection) { d.Longitude = 200 }},
		{"zero brightness temperature", func(d *domain.Detection) { d.TB = 0 }},
		{"negative power", func(d *domain.Detection) { d.Power = -3 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := validDetection()
			tc.mutate(&d)
			assert.Error(t, d.Validate())
		})
	}
}

func ptr(v float64) *float64 { return &v }

func TestAcceptQuality(t *testing.T) {
	thresholds := domain.Thresholds{MinFRP: ptr(1.0), MaxTB: ptr(310.0)}

	spurious := validDetection()
	spurious.Power = 0.3
	spurious.TB = 312

	cases := []struct {
		name   string
		d      domain.Detection
		t      domain.Thresholds
		accept bool
	}{
		{"normal detection accepted", validDetection(), thresholds, true},
		{"weak and hot rejected", spurious, thresholds, false},
		{"strong power always accepted", func() domain.Detection {
			d := spurious
			d.Power = 25
			return d
		}(), thresholds, true},
		{"cool detection accepted despite weak power", func() domain.Detection {
			d := spurious
			d.TB = 290
			return d
		}(), thresholds, true},
		{"power at threshold accepted", func() domain.Detection {
			d := spurious
			d.Power = 1.0
			return d
		}(), thresholds, true},
		{"no thresholds accepts everything", spurious, domain.Thresholds{}, true},
		{"only FRP threshold accepts everything", spurious, domain.Thresholds{MinFRP: ptr(1.0)}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.accept, domain.AcceptQuality(tc.d, tc.t))
		})
	}
}

func TestFilterQuality(t *testing.T) {
	spurious := validDetection()
	spurious.Power = 0.3
	spurious.TB = 320

	kept, rejected := domain.FilterQuality(
		[]domain.Detection{validDetection(), spurious, validDetection()},
		domain.Thresholds{MinFRP: ptr(1.0), MaxTB: ptr(310.0)},
	)
	assert.Len(t, kept, 2)
	assert.Equal(t, 1, rejected)
}

func TestParsePassMessage(t *testing.T) {
	raw := domain.RawEvent{Value: []byte(`{
		"product": "afimg",
		"platform_name": "Suomi-NPP",
		"start_time": "2023-06-16T11:20:00Z",
		"end_time": "2023-06-16T11:21:30Z",
		"orbit_number": 54321,
		"detections": [
			{"latitude": 59.52, "longitude": 17.1, "tb": 336.6,
			 "along_scan_res": 0.375, "along_track_res": 0.375,
			 "conf": 8, "power": 14.5}
		]
	}`)}

	msg, err := domain.ParsePassMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, "afimg", msg.Product)
	assert.Equal(t, "Suomi-NPP", msg.PlatformName)
	assert.Equal(t, 54321, msg.OrbitNumber)
	require.Len(t, msg.Detections, 1)
	assert.InEpsilon(t, 336.6, msg.Detections[0].TB, 1e-9)
	assert.Equal(t, 8, msg.Detections[0].Confidence)
}

func TestParsePassMessage_MidnightWrap(t *testing.T) {
	// Upstream only keeps the time of day, so a pass ending after
	// midnight arrives with an end time a day behind its start.
	raw := domain.RawEvent{Value: []byte(`{
		"product": "afimg",
		"start_time": "2023-06-16T23:59:10Z",
		"end_time": "2023-06-16T00:00:40Z"
	}`)}

	msg, err := domain.ParsePassMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 6, 17, 0, 0, 40, 0, time.UTC), msg.EndTime)
	assert.True(t, msg.EndTime.After(msg.StartTime))
}

func TestParsePassMessage_Invalid(t *testing.T) {
	cases := []struct {
		name  string
		value string
	}{
		{"not json", "not json"},
		{"missing product", `{"start_time": "2023-06-16T11:20:00Z"}`},
		{"missing start time", `{"product": "afimg"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := domain.ParsePassMessage(domain.RawEvent{Value: []byte(tc.value)})
			assert.Error(t, err)
		})
	}
}

func TestPassMessage_ObservationTime(t *testing.T) {
	start := time.Date(2023, 6, 16, 11, 20, 0, 0, time.UTC)
	msg := domain.PassMessage{StartTime: start, EndTime: start.Add(90 * time.Second)}
	assert.Equal(t, start.Add(45*time.Second), msg.ObservationTime())

	// Zero-length pass falls back to the start time.
	msg.EndTime = start
	assert.Equal(t, start, msg.ObservationTime())
}
