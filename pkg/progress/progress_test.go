package progress

import (
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestProgress_Steps(t *testing.T) {
	var mu sync.Mutex
	var steps []int
	p := New(8, func(s Stats) {
		mu.Lock()
		steps = append(steps, s.Step)
		mu.Unlock()
		if s.NumSteps != 8 {
			t.Errorf("NumSteps = %d, want 8", s.NumSteps)
		}
	})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Read(func() error { return nil })
			p.Next()
		}()
	}
	wg.Wait()

	if len(steps) != 9 {
		t.Fatalf("callback called %d times, want 9", len(steps))
	}
	if steps[0] != 0 {
		t.Errorf("first update step = %d, want 0", steps[0])
	}
	seen := make(map[int]bool)
	for _, s := range steps {
		seen[s] = true
	}
	for i := 0; i <= 8; i++ {
		if !seen[i] {
			t.Errorf("step %d was never reported", i)
		}
	}
	if got := p.Stats(); got.Step != 8 || got.Fraction() != 1 {
		t.Errorf("Stats() = step %d fraction %v, want 8 and 1", got.Step, got.Fraction())
	}
}

func TestProgress_StepOrder(t *testing.T) {
	const workers, perWorker = 16, 50
	var steps []int
	var read []time.Duration
	p := New(workers*perWorker, func(s Stats) {
		steps = append(steps, s.Step)
		read = append(read, s.Read)
	})

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				_ = p.Read(func() error { return nil })
				p.Next()
			}
		}()
	}
	wg.Wait()

	if len(steps) != workers*perWorker+1 {
		t.Fatalf("callback called %d times, want %d", len(steps), workers*perWorker+1)
	}
	for i, s := range steps {
		if s != i {
			t.Fatalf("update %d reported step %d, want steps in increasing order", i, s)
		}
		if i > 0 && read[i] < read[i-1] {
			t.Fatalf("update %d reported read %v after %v", i, read[i], read[i-1])
		}
	}
}

func TestProgress_Durations(t *testing.T) {
	p := New(1, nil)
	wantErr := errors.New("boom")

	if err := p.Read(func() error { time.Sleep(2 * time.Millisecond); return nil }); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if err := p.Write(func() error { return wantErr }); !errors.Is(err, wantErr) {
		t.Errorf("Write error = %v, want %v", err, wantErr)
	}
	_ = p.Process(func() error { time.Sleep(time.Millisecond); return nil })
	_ = p.ProcessStep(2, func() error { time.Sleep(time.Millisecond); return nil })
	_ = p.ProcessStep(0, func() error { return nil })

	s := p.Stats()
	if s.Read < 2*time.Millisecond {
		t.Errorf("Read = %v, want >= 2ms", s.Read)
	}
	if s.Process < time.Millisecond {
		t.Errorf("Process = %v, want >= 1ms", s.Process)
	}
	if len(s.ProcessSteps) != 3 {
		t.Fatalf("len(ProcessSteps) = %d, want 3", len(s.ProcessSteps))
	}
	if s.ProcessSteps[1] != 0 || s.ProcessSteps[2] < time.Millisecond {
		t.Errorf("ProcessSteps = %v", s.ProcessSteps)
	}

	// Snapshots do not alias internal state.
	s.ProcessSteps[2] = 0
	if p.Stats().ProcessSteps[2] == 0 {
		t.Error("Stats() returned a shared slice")
	}
}

func TestStats_Message(t *testing.T) {
	s := Stats{Read: 1500 * time.Millisecond, Write: 250 * time.Millisecond, Process: 3 * time.Second}
	if got, want := s.Message(), "rw:1.50/0.25 p:3.00"; got != want {
		t.Errorf("Message() = %q, want %q", got, want)
	}
	s.ProcessSteps = []time.Duration{time.Second, 20 * time.Millisecond}
	if got, want := s.Message(), "rw:1.50/0.25 p:3.00 [1.00, 0.02]"; got != want {
		t.Errorf("Message() = %q, want %q", got, want)
	}
	if got := (Stats{}).Fraction(); got != 1 {
		t.Errorf("Fraction() with no steps = %v, want 1", got)
	}
	if got := (Stats{Step: 1, NumSteps: 4}).Fraction(); got != 0.25 {
		t.Errorf("Fraction() = %v, want 0.25", got)
	}
}
