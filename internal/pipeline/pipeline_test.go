package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adybbroe/activefires-pp/internal/domain"
	"github.com/adybbroe/activefires-pp/internal/output"
	"github.com/adybbroe/activefires-pp/internal/pipeline"
)

var errTransient = errors.New("broker unavailable")

func fileNotification(target string) output.Notification {
	return output.Notification{
		MessageID: "test-message",
		Kind:      output.KindFile,
		Target:    target,
		Count:     1,
	}
}

func TestPipeline_Run_HappyPath(t *testing.T) {
	raw := makeRawEvent(t, makePass(stockholmDetection()))

	committed := false
	raw.Commit = func(_ context.Context) error {
		committed = true
		return nil
	}

	ext := &mockExtractor{events: []domain.RawEvent{raw}}
	proc := &mockProcessor{notifications: []output.Notification{fileNotification("national")}}
	pub := &mockPublisher{}

	p := pipeline.New(ext, proc, pub, slog.Default(), newTestMetrics(), 10)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	require.Len(t, pub.published, 1)
	assert.Equal(t, "national", pub.published[0].Target)
	assert.True(t, committed)
	assert.NoError(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	ext := &mockExtractor{} // no events, will block
	p := pipeline.New(ext, &mockProcessor{}, &mockPublisher{}, slog.Default(), newTestMetrics(), 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	require.NoError(t, p.Run(ctx))
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_ProcessingErrorCommitsAndContinues(t *testing.T) {
	raw := makeRawEvent(t, makePass())
	committed := false
	raw.Commit = func(_ context.Context) error {
		committed = true
		return nil
	}

	ext := &mockExtractor{events: []domain.RawEvent{raw}}
	proc := &mockProcessor{err: errors.New("bad payload")}
	pub := &mockPublisher{}

	p := pipeline.New(ext, proc, pub, slog.Default(), newTestMetrics(), 10)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	assert.Empty(t, pub.published)
	assert.True(t, committed, "a poison message must be committed, not replayed forever")
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_SkippedPassCommits(t *testing.T) {
	raw := makeRawEvent(t, makePass())
	committed := false
	raw.Commit = func(_ context.Context) error {
		committed = true
		return nil
	}

	ext := &mockExtractor{events: []domain.RawEvent{raw}}
	proc := &mockProcessor{err: fmt.Errorf("%w: product not in allow-list", pipeline.ErrPassSkipped)}
	pub := &mockPublisher{}

	p := pipeline.New(ext, proc, pub, slog.Default(), newTestMetrics(), 10)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	assert.Empty(t, pub.published)
	assert.True(t, committed)
}

func TestPipeline_Run_RetriesPublishBeforeCommitting(t *testing.T) {
	raw := makeRawEvent(t, makePass(stockholmDetection()))

	var commits int
	raw.Commit = func(_ context.Context) error {
		commits++
		return nil
	}

	ext := &mockExtractor{events: []domain.RawEvent{raw}}
	proc := &mockProcessor{notifications: []output.Notification{fileNotification("national")}}
	pub := &mockPublisher{failures: 2}

	p := pipeline.New(ext, proc, pub, slog.Default(), newTestMetrics(), 10)

	// Two failed attempts back off 200ms+400ms before the third succeeds.
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	require.Len(t, pub.published, 1)
	assert.Equal(t, 1, commits, "offset must be committed exactly once, after publishing succeeds")
}

func TestPipeline_Run_RetriesStoreFailureWithoutCommitting(t *testing.T) {
	raw := makeRawEvent(t, makePass(stockholmDetection()))

	var commits int
	raw.Commit = func(_ context.Context) error {
		commits++
		return nil
	}

	ext := &mockExtractor{events: []domain.RawEvent{raw}}
	proc := &mockProcessor{
		failures:      2,
		notifications: []output.Notification{fileNotification("national")},
	}
	pub := &mockPublisher{}

	p := pipeline.New(ext, proc, pub, slog.Default(), newTestMetrics(), 10)

	// Two failed attempts back off 200ms+400ms before the third succeeds.
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	assert.Equal(t, 3, proc.calls, "the pass must be reprocessed until the store recovers")
	require.Len(t, pub.published, 1, "detections must not be lost to a transient store failure")
	assert.Equal(t, 1, commits, "offset must not be committed while the pass is unprocessed")
}
