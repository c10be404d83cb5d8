package progress

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formstream/backend/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ev(jobID string, status models.ProgressStatus, rows int) models.ProgressEvent {
	return models.ProgressEvent{JobID: jobID, Status: status, ProcessedRows: rows}
}

func TestSubscribeReceivesLiveEvents(t *testing.T) {
	b := NewBroadcaster(16, testLogger())
	sub := b.Subscribe("job-1")
	defer sub.Close()

	b.Publish(ev("job-1", models.StatusParsing, 10))

	got := <-sub.C
	assert.Equal(t, models.StatusParsing, got.Status)
	assert.Equal(t, 10, got.ProcessedRows)
	assert.False(t, got.Timestamp.IsZero())
}

func TestLateSubscriberDrainsReplayInOrder(t *testing.T) {
	b := NewBroadcaster(16, testLogger())

	b.Publish(ev("job-1", models.StatusQueued, 0))
	b.Publish(ev("job-1", models.StatusParsing, 5))
	b.Publish(ev("job-1", models.StatusInserting, 5))

	sub := b.Subscribe("job-1")
	defer sub.Close()

	statuses := []models.ProgressStatus{}
	for i := 0; i < 3; i++ {
		select {
		case got := <-sub.C:
			statuses = append(statuses, got.Status)
		case <-time.After(time.Second):
			t.Fatal("timed out draining replay")
		}
	}
	assert.Equal(t, []models.ProgressStatus{
		models.StatusQueued, models.StatusParsing, models.StatusInserting,
	}, statuses)
}

func TestReplayLogIsBounded(t *testing.T) {
	b := NewBroadcaster(4, testLogger())
	for i := 0; i < 10; i++ {
		b.Publish(ev("job-1", models.StatusInserting, i))
	}

	hist := b.History("job-1")
	require.Len(t, hist, 4)
	// oldest entries dropped, order preserved
	for i, got := range hist {
		assert.Equal(t, 6+i, got.ProcessedRows)
	}
}

func TestEventsDoNotLeakAcrossJobs(t *testing.T) {
	b := NewBroadcaster(16, testLogger())
	subA := b.Subscribe("job-a")
	defer subA.Close()

	b.Publish(ev("job-b", models.StatusParsing, 1))

	select {
	case got := <-subA.C:
		t.Fatalf("job-a received job-b event: %+v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStreamGarbageCollectedAfterTerminal(t *testing.T) {
	b := NewBroadcaster(16, testLogger())
	sub := b.Subscribe("job-1")

	b.Publish(ev("job-1", models.StatusCompleted, 100))
	<-sub.C
	sub.Close()

	assert.Empty(t, b.History("job-1"), "terminal stream with no subscribers should be dropped")
}

func TestConcurrentPublishSubscribe(t *testing.T) {
	b := NewBroadcaster(64, testLogger())
	var wg sync.WaitGroup

	for j := 0; j < 4; j++ {
		jobID := fmt.Sprintf("job-%d", j)
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				b.Publish(ev(jobID, models.StatusInserting, i))
			}
			b.Publish(ev(jobID, models.StatusCompleted, 50))
		}()
		go func() {
			defer wg.Done()
			sub := b.Subscribe(jobID)
			defer sub.Close()
			for got := range sub.C {
				if got.Status.Terminal() {
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestForgetClosesSubscribers(t *testing.T) {
	b := NewBroadcaster(16, testLogger())
	sub := b.Subscribe("job-1")

	b.Forget("job-1")

	_, open := <-sub.C
	assert.False(t, open)
	assert.Empty(t, b.History("job-1"))
}
