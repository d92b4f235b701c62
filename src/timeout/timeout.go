package timeout

// T fires once a number of ticks has elapsed since it was last reset.
// A stopped timeout never fires until it is reset again.
type T struct {
	ticks   uint64
	after   uint64
	stopped bool
}

func New(timesOutAfterTicks uint64) T {
	return T{after: timesOutAfterTicks}
}

func (timeout *T) Tick() {
	if timeout.stopped {
		return
	}
	timeout.ticks++
}

func (timeout *T) Reset() {
	timeout.ticks = 0
	timeout.stopped = false
}

func (timeout *T) ResetAndFireAfter(after uint64) {
	timeout.Reset()
	timeout.after = after
}

// Disarms the timeout.
func (timeout *T) Stop() {
	timeout.stopped = true
}

func (timeout *T) Active() bool {
	return !timeout.stopped
}

func (timeout *T) Fired() bool {
	return !timeout.stopped && timeout.ticks >= timeout.after
}

func (timeout *T) Ticks() uint64 {
	return timeout.ticks
}

func (timeout *T) After() uint64 {
	return timeout.after
}

// Ticks left until the timeout fires. Zero once it has fired.
func (timeout *T) Remaining() uint64 {
	if timeout.ticks >= timeout.after {
		return 0
	}
	return timeout.after - timeout.ticks
}
