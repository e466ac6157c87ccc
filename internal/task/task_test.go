package task

import (
	"context"
	"sync"
	"testing"
	"time"
)

// loop is a task body that checkpoints on every iteration and records its name
// whenever it passes the checkpoint.
func loop(name string, rec *recorder) Func {
	return func(ctx context.Context, gate *Gate) {
		for gate.Checkpoint(ctx) {
			rec.add(name)
			time.Sleep(time.Millisecond)
		}
	}
}

type recorder struct {
	mu    sync.Mutex
	names []string
}

func (r *recorder) add(n string) {
	r.mu.Lock()
	r.names = append(r.names, n)
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.names)
}

func TestGroupSuspendResume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g := NewGroup(ctx)
	rec := &recorder{}
	pg := g.Go("sampler", Producer, false, loop("sampler", rec))
	cg := g.Go("control", Consumer, false, loop("control", rec))

	g.SuspendAll(time.Second)
	if !pg.Parked() || !cg.Parked() {
		t.Fatal("all tasks should be parked after SuspendAll")
	}
	if !g.Suspended() {
		t.Error("group should report suspended")
	}
	n := rec.count()
	time.Sleep(20 * time.Millisecond)
	if rec.count() != n {
		t.Error("suspended tasks kept running")
	}

	g.ResumeAll()
	deadline := time.Now().Add(time.Second)
	for rec.count() == n && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if rec.count() == n {
		t.Error("tasks did not resume")
	}

	cancel()
	g.Wait()
}

func TestGroupSuspendsConsumersFirst(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g := NewGroup(ctx)

	rec := &recorder{}
	consumer := g.Go("control", Consumer, false, loop("control", rec))

	var mu sync.Mutex
	var seen []bool
	g.Go("sampler", Producer, false, func(ctx context.Context, gate *Gate) {
		for {
			if gate.Suspended() {
				mu.Lock()
				seen = append(seen, consumer.Parked())
				mu.Unlock()
			}
			if !gate.Checkpoint(ctx) {
				return
			}
			time.Sleep(time.Millisecond)
		}
	})

	g.SuspendAll(time.Second)
	g.ResumeAll()
	cancel()
	g.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) == 0 {
		t.Fatal("producer never observed its suspension")
	}
	for i, parked := range seen {
		if !parked {
			t.Errorf("observation %d: producer suspended before consumer parked", i)
		}
	}
}

func TestSuspendAllDrainTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g := NewGroup(ctx)
	release := make(chan struct{})
	g.Go("stuck", Consumer, false, func(ctx context.Context, gate *Gate) {
		<-release
		for gate.Checkpoint(ctx) {
		}
	})

	start := time.Now()
	g.SuspendAll(30 * time.Millisecond)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("SuspendAll waited %v despite drain timeout", elapsed)
	}

	close(release)
	cancel()
	g.Wait()
}

func TestGoStartsSuspended(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g := NewGroup(ctx)
	rec := &recorder{}
	gate := g.Go("publish", Consumer, true, loop("publish", rec))
	time.Sleep(20 * time.Millisecond)
	if rec.count() != 0 {
		t.Error("task started suspended must not run")
	}
	if !gate.Parked() {
		t.Error("expected task parked")
	}
	cancel()
	g.Wait()
}

func TestCheckpointReturnsFalseOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gate := NewGate()
	gate.Suspend()
	done := make(chan bool)
	go func() { done <- gate.Checkpoint(ctx) }()
	cancel()
	if <-done {
		t.Error("Checkpoint should return false after cancel")
	}
}

func TestCheckpointStaysParkedWhenResumeIsUndone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gate := NewGate()
	parked := gate.Suspend()
	done := make(chan bool, 1)
	go func() { done <- gate.Checkpoint(ctx) }()
	<-parked

	// Resume and suspend again before the parked task can run.
	gate.mu.Lock()
	gate.resumeLocked()
	reparked := gate.suspendLocked()
	gate.mu.Unlock()

	select {
	case <-reparked:
	case <-time.After(time.Second):
		t.Fatal("task did not park again")
	}
	select {
	case <-done:
		t.Fatal("Checkpoint returned while the gate was closed")
	case <-time.After(20 * time.Millisecond):
	}

	gate.Resume()
	select {
	case ok := <-done:
		if !ok {
			t.Error("Checkpoint returned false after resume")
		}
	case <-time.After(time.Second):
		t.Fatal("task not released by resume")
	}
}
