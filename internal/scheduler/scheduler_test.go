package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/seenimoa/futurenews/internal/ingest"
	"github.com/seenimoa/futurenews/internal/news"
)

type countingJob struct {
	runs atomic.Int32
	err  error
}

func (j *countingJob) Name() string { return "counting" }
func (j *countingJob) Run(context.Context) error {
	j.runs.Add(1)
	return j.err
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPeriodicWorkerRunsImmediately(t *testing.T) {
	job := &countingJob{}
	pw := NewPeriodicWorker(job, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	pw.Start(ctx)

	waitFor(t, func() bool { return pw.Runs() == 1 })
	cancel()
	if err := pw.Stop(time.Second); err != nil {
		t.Fatal(err)
	}
	if job.runs.Load() != 1 {
		t.Fatalf("expected exactly one run before the first tick, got %d", job.runs.Load())
	}
}

func TestPeriodicWorkerTicksAndSurvivesErrors(t *testing.T) {
	job := &countingJob{err: errors.New("boom")}
	pw := NewPeriodicWorker(job, 10*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	pw.Start(ctx)

	waitFor(t, func() bool { return job.runs.Load() >= 3 })
	cancel()
	if err := pw.Stop(time.Second); err != nil {
		t.Fatal(err)
	}
}

type blockingJob struct{ release chan struct{} }

func (blockingJob) Name() string { return "blocking" }
func (j blockingJob) Run(context.Context) error {
	<-j.release
	return nil
}

func TestPeriodicWorkerStopTimeout(t *testing.T) {
	job := blockingJob{release: make(chan struct{})}
	defer close(job.release)

	pw := NewPeriodicWorker(job, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	pw.Start(ctx)
	cancel()

	if err := pw.Stop(20 * time.Millisecond); err == nil {
		t.Fatal("expected stop timeout while the job is still running")
	}
}

type fakeRefresher struct{ res news.RefreshResult }

func (f fakeRefresher) Refresh(context.Context) news.RefreshResult { return f.res }

func TestRefreshJob(t *testing.T) {
	tests := []struct {
		name    string
		res     news.RefreshResult
		wantErr error
	}{
		{"success", news.RefreshResult{Articles: 5, Partitions: 2}, nil},
		{"partial failure", news.RefreshResult{Articles: 5, Partitions: 2, Errors: []ingest.PartitionError{{Partition: "sources", Err: errors.New("x")}}}, nil},
		{"one failed, rest empty", news.RefreshResult{Partitions: 3, Errors: []ingest.PartitionError{{Partition: "sources", Err: errors.New("x")}}}, nil},
		{"total failure", news.RefreshResult{Partitions: 1, Errors: []ingest.PartitionError{{Partition: "sources", Err: errors.New("x")}}}, ErrAllPartitionsFailed},
		{"total failure over cached articles", news.RefreshResult{Articles: 7, Partitions: 2, Errors: []ingest.PartitionError{{Partition: "category:top", Err: errors.New("x")}, {Partition: "sources", Err: errors.New("y")}}}, ErrAllPartitionsFailed},
		{"abandoned", news.RefreshResult{Articles: 7, Partitions: 1, Err: context.Canceled}, context.Canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RefreshJob{Service: fakeRefresher{tt.res}}.Run(context.Background())
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	saveErr := errors.New("disk full")
	if err := (RefreshJob{Service: fakeRefresher{news.RefreshResult{Articles: 1, SaveErr: saveErr}}}).Run(context.Background()); !errors.Is(err, saveErr) {
		t.Fatalf("save error should surface, got %v", err)
	}
}
