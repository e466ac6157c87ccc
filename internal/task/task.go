// Package task supervises the long-running goroutines of the controller and
// lets the grow-cycle manager pause and resume them as a group.
package task

import (
	"context"
	"log"
	"sync"
	"time"
)

// Stage orders suspension: consumers are paused before the producers they
// read from, and resumed after them.
type Stage int

const (
	Producer Stage = iota
	Consumer
)

func (s Stage) String() string {
	if s == Producer {
		return "producer"
	}
	return "consumer"
}

// Gate is a suspension checkpoint owned by one task.
type Gate struct {
	mu        sync.Mutex
	suspended bool
	parked    bool
	resume    chan struct{}
	parkedCh  chan struct{}
}

// NewGate returns an open gate.
func NewGate() *Gate {
	return &Gate{}
}

// Checkpoint returns immediately while the gate is open. While it is closed
// the caller parks until Resume or ctx is done. It returns false once ctx is done.
func (g *Gate) Checkpoint(ctx context.Context) bool {
	g.mu.Lock()
	for g.suspended {
		// A Suspend that follows Resume before this task wakes closes the gate
		// again; the loop parks once more instead of running a step.
		g.parked = true
		resume := g.resume
		if g.parkedCh != nil {
			close(g.parkedCh)
			g.parkedCh = nil
		}
		g.mu.Unlock()

		select {
		case <-resume:
		case <-ctx.Done():
		}

		g.mu.Lock()
		g.parked = false
		if ctx.Err() != nil {
			break
		}
	}
	g.mu.Unlock()
	return ctx.Err() == nil
}

// Suspend closes the gate. The returned channel is closed when the task parks.
func (g *Gate) Suspend() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.suspendLocked()
}

func (g *Gate) suspendLocked() <-chan struct{} {
	parked := make(chan struct{})
	if g.suspended {
		if g.parked {
			close(parked)
		} else if g.parkedCh != nil {
			return g.parkedCh
		}
		return parked
	}
	g.suspended = true
	g.resume = make(chan struct{})
	g.parkedCh = parked
	return parked
}

// Resume opens the gate and releases a parked task.
func (g *Gate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resumeLocked()
}

func (g *Gate) resumeLocked() {
	if !g.suspended {
		return
	}
	g.suspended = false
	close(g.resume)
	g.parkedCh = nil
}

// Suspended reports whether the gate is closed.
func (g *Gate) Suspended() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.suspended
}

// Parked reports whether the task is currently blocked at the checkpoint.
func (g *Gate) Parked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.parked
}

// Func is a task body. It must pass through gate regularly and return when ctx is done.
type Func func(ctx context.Context, gate *Gate)

type member struct {
	name  string
	stage Stage
	gate  *Gate
}

// Group runs named tasks and suspends or resumes them together.
type Group struct {
	ctx     context.Context
	wg      sync.WaitGroup
	mu      sync.Mutex
	members []member
}

// NewGroup returns a group whose tasks run until ctx is done.
func NewGroup(ctx context.Context) *Group {
	return &Group{ctx: ctx}
}

// Go starts fn as a task. With suspended set the task parks at its first checkpoint.
func (g *Group) Go(name string, stage Stage, suspended bool, fn Func) *Gate {
	gate := NewGate()
	if suspended {
		gate.Suspend()
	}
	g.mu.Lock()
	g.members = append(g.members, member{name: name, stage: stage, gate: gate})
	g.mu.Unlock()

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		fn(g.ctx, gate)
		log.Printf("task: %s exited", name)
	}()
	return gate
}

func (g *Group) byStage(s Stage) []member {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []member
	for _, m := range g.members {
		if m.stage == s {
			out = append(out, m)
		}
	}
	return out
}

// SuspendAll pauses consumers first and then producers. For each stage it
// waits up to drain for the tasks to park; tasks that do not park in time
// are logged and left to park on their next checkpoint.
func (g *Group) SuspendAll(drain time.Duration) {
	for _, stage := range []Stage{Consumer, Producer} {
		members := g.byStage(stage)
		waits := make([]<-chan struct{}, len(members))
		for i, m := range members {
			waits[i] = m.gate.Suspend()
		}
		deadline := time.NewTimer(drain)
		expired := false
		for i, m := range members {
			if !expired {
				select {
				case <-waits[i]:
					continue
				case <-g.ctx.Done():
					deadline.Stop()
					return
				case <-deadline.C:
					expired = true
				}
			}
			select {
			case <-waits[i]:
			default:
				log.Printf("task: %s (%s) did not park within %v", m.name, stage, drain)
			}
		}
		deadline.Stop()
	}
}

// ResumeAll resumes producers first and then consumers.
func (g *Group) ResumeAll() {
	for _, stage := range []Stage{Producer, Consumer} {
		for _, m := range g.byStage(stage) {
			m.gate.Resume()
		}
	}
}

// Suspended reports whether every task in the group is suspended.
func (g *Group) Suspended() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.members) == 0 {
		return false
	}
	for _, m := range g.members {
		if !m.gate.Suspended() {
			return false
		}
	}
	return true
}

// Wait blocks until every task has returned.
func (g *Group) Wait() {
	g.wg.Wait()
}
