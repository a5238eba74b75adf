package sync

// Monitor implements the process-wide RCU state: it tracks which CPUs have
// reported a quiescent state in the grace period that is currently in
// flight and runs deferred reclamation callbacks once a full grace period
// has elapsed after their registration.
//
// A grace period completes when every CPU has reported at least one
// quiescent state since the period began. Callbacks registered while the
// in-flight period is still untouched (no CPU has reported yet) become
// eligible at the end of that period; callbacks registered after one or
// more CPUs have already reported must wait for the following period, since
// those CPUs may still hold references obtained before the registration.
type Monitor struct {
	lock Spinlock

	numCPUs int

	// passed is a bitmap of the CPUs that have reported a quiescent state
	// in the in-flight grace period. passedCount caches the number of set
	// bits.
	passed      []uint64
	passedCount int

	// current holds the callbacks that become runnable when the in-flight
	// grace period completes; next holds callbacks that must wait for the
	// following period.
	current []func()
	next    []func()

	// epoch counts completed grace periods.
	epoch uint64
}

// NewMonitor creates an RCU monitor tracking quiescent states for numCPUs
// processors.
func NewMonitor(numCPUs int) *Monitor {
	if numCPUs < 1 {
		panic("sync: RCU monitor requires at least one CPU")
	}

	return &Monitor{
		numCPUs: numCPUs,
		passed:  make([]uint64, (numCPUs+63)>>6),
	}
}

// NumCPUs returns the number of CPUs the monitor was sized for.
func (m *Monitor) NumCPUs() int {
	return m.numCPUs
}

// Epoch returns the number of grace periods that have completed so far.
func (m *Monitor) Epoch() uint64 {
	m.lock.Acquire()
	epoch := m.epoch
	m.lock.Release()
	return epoch
}

// Defer registers cb to run once a full grace period has elapsed, that is,
// once every CPU has reported at least one quiescent state after this call.
// Defer never blocks; the callback runs on whichever CPU happens to
// complete the grace period.
func (m *Monitor) Defer(cb func()) {
	m.lock.Acquire()
	if m.passedCount == 0 {
		// The in-flight period is untouched so its completion already
		// implies a full post-registration grace period.
		m.current = append(m.current, cb)
	} else {
		m.next = append(m.next, cb)
	}
	m.lock.Release()
}

// PassQuiescentState records that the given CPU is at a quiescent point: it
// holds no reference obtained through an RCU read-side critical section.
// The scheduler invokes this at every context switch and return-to-user
// boundary. When the calling CPU is the last one to report, the in-flight
// grace period completes and any eligible callbacks run synchronously on
// the caller.
func (m *Monitor) PassQuiescentState(cpuID int) {
	if cpuID < 0 || cpuID >= m.numCPUs {
		panic("sync: quiescent state reported for an unknown CPU")
	}

	m.lock.Acquire()

	word, bit := cpuID>>6, uint(cpuID&63)
	if m.passed[word]&(1<<bit) != 0 {
		// Duplicate report within the same period.
		m.lock.Release()
		return
	}
	m.passed[word] |= 1 << bit
	m.passedCount++

	if m.passedCount < m.numCPUs {
		m.lock.Release()
		return
	}

	// Grace period complete: promote the pending queue and start a new
	// period before running callbacks so that callback code may itself
	// call Defer.
	ready := m.current
	m.current = m.next
	m.next = nil
	for i := range m.passed {
		m.passed[i] = 0
	}
	m.passedCount = 0
	m.epoch++
	m.lock.Release()

	for _, cb := range ready {
		cb()
	}
}
