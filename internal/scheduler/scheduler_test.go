package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingJob struct {
	name    string
	started atomic.Int32
	release chan struct{}
}

func (j *blockingJob) Name() string { return j.name }

func (j *blockingJob) Run() error {
	j.started.Add(1)
	<-j.release
	return nil
}

func TestAddJob_InvalidScheduleFails(t *testing.T) {
	s := New(zerolog.Nop())

	err := s.AddJob("not a cron expr", &blockingJob{name: "bad"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid schedule")
}

func TestAddJob_ValidSchedules(t *testing.T) {
	s := New(zerolog.Nop())

	for _, schedule := range []string{"*/5 * * * *", "0 2 * * *", "@hourly"} {
		job := &blockingJob{name: "ok", release: make(chan struct{})}
		close(job.release)
		assert.NoError(t, s.AddJob(schedule, job))
	}
}

func TestSingleFlight_OverlappingTicksSkipped(t *testing.T) {
	s := New(zerolog.Nop())

	job := &blockingJob{name: "slow", release: make(chan struct{})}
	require.NoError(t, s.AddJob("@every 1s", job))

	s.Start()
	defer func() {
		close(job.release)
		s.Stop()
	}()

	// Let several ticks elapse while the first run blocks.
	deadline := time.Now().Add(5 * time.Second)
	for job.started.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	require.Equal(t, int32(1), job.started.Load(), "job never started")

	time.Sleep(2500 * time.Millisecond)
	assert.Equal(t, int32(1), job.started.Load(), "overlapping ticks must be skipped")
}

func TestRunNow(t *testing.T) {
	s := New(zerolog.Nop())

	job := &blockingJob{name: "immediate", release: make(chan struct{})}
	close(job.release)

	require.NoError(t, s.RunNow(job))
	assert.Equal(t, int32(1), job.started.Load())
}
