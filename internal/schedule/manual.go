package schedule

import (
	"sort"
	"sync"
	"time"
)

// Manual is a virtual clock. Tasks only run inside Advance, synchronously and
// in due-time order, which makes timer-driven code deterministic under test.
type Manual struct {
	mu   sync.Mutex
	now  time.Time
	seq  int
	jobs []*job
}

type job struct {
	seq      int
	due      time.Time
	interval time.Duration
	task     func()
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start.UTC()}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Every(interval time.Duration, task func()) Cancel {
	return m.add(interval, interval, task)
}

func (m *Manual) After(delay time.Duration, task func()) Cancel {
	return m.add(delay, 0, task)
}

// Pending reports how many tasks are still scheduled.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

// Advance moves the clock forward by d, running every task that falls due.
// Tasks may schedule or cancel other tasks while running.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	for {
		next := m.nextDue(target)
		if next == nil {
			break
		}
		m.now = next.due
		if next.interval > 0 {
			next.due = next.due.Add(next.interval)
		} else {
			m.remove(next)
		}
		m.mu.Unlock()
		next.task()
		m.mu.Lock()
	}
	m.now = target
	m.mu.Unlock()
}

func (m *Manual) add(delay, interval time.Duration, task func()) Cancel {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	j := &job{seq: m.seq, due: m.now.Add(delay), interval: interval, task: task}
	m.jobs = append(m.jobs, j)

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.remove(j)
	}
}

func (m *Manual) nextDue(target time.Time) *job {
	if len(m.jobs) == 0 {
		return nil
	}
	sort.SliceStable(m.jobs, func(i, k int) bool {
		if m.jobs[i].due.Equal(m.jobs[k].due) {
			return m.jobs[i].seq < m.jobs[k].seq
		}
		return m.jobs[i].due.Before(m.jobs[k].due)
	})
	if m.jobs[0].due.After(target) {
		return nil
	}
	return m.jobs[0]
}

func (m *Manual) remove(j *job) {
	for i, candidate := range m.jobs {
		if candidate == j {
			m.jobs = append(m.jobs[:i], m.jobs[i+1:]...)
			return
		}
	}
}
