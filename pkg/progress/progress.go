// Package progress accumulates timings of chunked operations and reports
// them after every completed step.
//
// Workers wrap their store reads, computations and store writes in
// [Progress.Read], [Progress.Process] and [Progress.Write], and call
// [Progress.Next] once a step (usually one output chunk) is complete.
// Durations are summed over all workers, so with N concurrent workers they
// grow up to N times faster than wall time.
package progress

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Stats is a snapshot of a running operation.
type Stats struct {
	Step     int
	NumSteps int

	Read         time.Duration
	Process      time.Duration
	ProcessSteps []time.Duration
	Write        time.Duration
}

// Fraction returns the completed fraction in [0, 1].
func (s Stats) Fraction() float64 {
	if s.NumSteps == 0 {
		return 1
	}
	return min(float64(s.Step)/float64(s.NumSteps), 1)
}

// Message summarises accumulated read/write and process time in seconds,
// followed by the process sub-steps if there are any.
func (s Stats) Message() string {
	msg := fmt.Sprintf("rw:%.2f/%.2f p:%.2f", s.Read.Seconds(), s.Write.Seconds(), s.Process.Seconds())
	if len(s.ProcessSteps) == 0 {
		return msg
	}
	steps := make([]string, len(s.ProcessSteps))
	for i, d := range s.ProcessSteps {
		steps[i] = fmt.Sprintf("%.2f", d.Seconds())
	}
	return msg + " [" + strings.Join(steps, ", ") + "]"
}

// Callback receives a snapshot after construction and after every step.
// Calls are serialized.
type Callback func(Stats)

// Progress is safe for concurrent use.
type Progress struct {
	cbMu     sync.Mutex
	callback Callback
	numSteps int
	step     atomic.Int64

	mu           sync.Mutex
	read         time.Duration
	process      time.Duration
	processSteps []time.Duration
	write        time.Duration
}

// New creates a Progress for numSteps steps and reports step 0 to cb.
// A nil cb discards updates.
func New(numSteps int, cb Callback) *Progress {
	if cb == nil {
		cb = func(Stats) {}
	}
	p := &Progress{callback: cb, numSteps: numSteps}
	p.callback(p.snapshot(0))
	return p
}

// Read runs fn and accounts its duration as read time.
func (p *Progress) Read(fn func() error) error {
	return p.time(&p.read, fn)
}

// Process runs fn and accounts its duration as process time.
func (p *Progress) Process(fn func() error) error {
	return p.time(&p.process, fn)
}

// Write runs fn and accounts its duration as write time.
func (p *Progress) Write(fn func() error) error {
	return p.time(&p.write, fn)
}

// ProcessStep runs fn and accounts its duration to the numbered processing
// sub-step, such as one axis of a separable filter.
func (p *Progress) ProcessStep(step int, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	p.mu.Lock()
	if step >= len(p.processSteps) {
		p.processSteps = append(p.processSteps, make([]time.Duration, step+1-len(p.processSteps))...)
	}
	p.processSteps[step] += elapsed
	p.mu.Unlock()
	return err
}

func (p *Progress) time(d *time.Duration, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	p.mu.Lock()
	*d += elapsed
	p.mu.Unlock()
	return err
}

// Next marks one step complete and reports it. Concurrent callers report
// their steps in increasing order.
func (p *Progress) Next() {
	p.cbMu.Lock()
	defer p.cbMu.Unlock()
	p.callback(p.snapshot(int(p.step.Add(1))))
}

// Stats returns a snapshot at the current step.
func (p *Progress) Stats() Stats {
	return p.snapshot(int(p.step.Load()))
}

func (p *Progress) snapshot(step int) Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Step:         step,
		NumSteps:     p.numSteps,
		Read:         p.read,
		Process:      p.process,
		ProcessSteps: slices.Clone(p.processSteps),
		Write:        p.write,
	}
}
