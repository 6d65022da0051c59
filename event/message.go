package event

// msgKind tags entries in a loop's cross-thread message queue.
type msgKind uint8

const (
	msgRunnable msgKind = iota
	msgShutdown
	msgPause
	msgResume
)

func (k msgKind) String() string {
	switch k {
	case msgRunnable:
		return "runnable"
	case msgShutdown:
		return "shutdown"
	case msgPause:
		return "pause"
	case msgResume:
		return "resume"
	}
	return "unknown"
}

// message is one cross-thread queue entry. done is non-nil only for
// synchronous pushes; the loop closes it after run returns.
type message struct {
	kind msgKind
	run  func()
	done chan struct{}
}

// pendingCall is a runnable the loop has accepted but not yet executed.
// Runnables move here during the message drain even while paused;
// execution waits for the unpaused phase of the cycle.
type pendingCall struct {
	run  func()
	done chan struct{}
}
