package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"

	"github.com/adybbroe/activefires-pp/internal/domain"
	"github.com/adybbroe/activefires-pp/internal/geometry"
	"github.com/adybbroe/activefires-pp/internal/identity"
	"github.com/adybbroe/activefires-pp/internal/observability"
	"github.com/adybbroe/activefires-pp/internal/output"
	"github.com/adybbroe/activefires-pp/internal/pipeline"
)

var passStart = time.Date(2023, time.June, 16, 11, 20, 0, 0, time.UTC)

func ptr(v float64) *float64 { return &v }

func newTestMetrics() *observability.Metrics {
	// Use a fresh registry to avoid "already registered" panics in tests.
	return observability.NewMetricsForTesting()
}

func makePass(detections ...domain.Detection) domain.PassMessage {
	return domain.PassMessage{
		Product:      "afimg",
		PlatformName: "Suomi-NPP",
		StartTime:    passStart,
		EndTime:      passStart.Add(90 * time.Second),
		OrbitNumber:  54321,
		Detections:   detections,
	}
}

func makeRawEvent(t *testing.T, pass domain.PassMessage) domain.RawEvent {
	t.Helper()
	data, err := json.Marshal(pass)
	require.NoError(t, err)
	return domain.RawEvent{
		Key:       []byte(pass.Product),
		Value:     data,
		Topic:     "viirs-af-passes",
		Partition: 0,
		Offset:    1,
		Timestamp: pass.StartTime,
	}
}

func stockholmDetection() domain.Detection {
	return domain.Detection{
		Latitude: 59.33, Longitude: 18.06,
		TB: 310.0, Power: 15.2,
		AlongScanRes: 0.375, AlongTrackRes: 0.375,
		Confidence: 8,
	}
}

func squarePolygon(minLon, minLat, maxLon, maxLat float64) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{minLon, minLat},
		{maxLon, minLat},
		{maxLon, maxLat},
		{minLon, maxLat},
		{minLon, minLat},
	}}
}

// testIndex covers Sweden-ish borders, a small exclusion box around an
// industrial flare site, and a Stockholm regional buffer.
func testIndex() *geometry.Index {
	borders := geometry.NewDataset("borders", []orb.Polygon{squarePolygon(10, 55, 24, 69)})
	exclusion := geometry.NewDataset("exclusion", []orb.Polygon{squarePolygon(15.0, 58.0, 15.2, 58.2)})
	stockholm := geometry.NewDataset("Stockholm", []orb.Polygon{squarePolygon(17, 58.5, 19, 60)})
	stockholm.Code = "SE-STHLM"
	return geometry.NewIndexForTesting(borders, exclusion, []*geometry.Dataset{stockholm})
}

// --- pipeline stage mocks ---

type mockExtractor struct {
	events []domain.RawEvent
	index  atomic.Int64
}

func (m *mockExtractor) ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error) {
	i := int(m.index.Add(1) - 1)
	if i >= len(m.events) {
		// block until context cancelled to simulate waiting for messages
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return []domain.RawEvent{m.events[i]}, nil
}

type mockProcessor struct {
	notifications []output.Notification
	err           error
	failures      int
	calls         int
}

func (m *mockProcessor) Process(_ context.Context, _ domain.RawEvent) ([]output.Notification, error) {
	m.calls++
	if m.failures > 0 {
		m.failures--
		return nil, fmt.Errorf("%w: write failed", pipeline.ErrStoreUnavailable)
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.notifications, nil
}

// failingStore simulates an identity database that rejects every write.
type failingStore struct{}

func (failingStore) Assign(context.Context, float64, float64, time.Time) (identity.Identity, error) {
	return identity.Identity{}, errors.New("disk I/O error")
}

func (failingStore) Prune(context.Context, time.Time) (int, error) { return 0, nil }

func (failingStore) Close() error { return nil }

type mockPublisher struct {
	published []output.Notification
	failures  int
}

func (m *mockPublisher) Publish(_ context.Context, notifications []output.Notification) error {
	if m.failures > 0 {
		m.failures--
		return errTransient
	}
	m.published = append(m.published, notifications...)
	return nil
}
