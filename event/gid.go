package event

import (
	"bytes"
	"runtime"
	"strconv"
)

var goroutinePrefix = []byte("goroutine ")

// curGoroutineID parses the current goroutine's id from its stack
// header. Loop-affinity checks compare against the id recorded at
// bootstrap; the parse costs a runtime.Stack call, so hot paths cache
// the comparison result where they can.
func curGoroutineID() uint64 {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	if !bytes.HasPrefix(buf, goroutinePrefix) {
		return 0
	}
	buf = buf[len(goroutinePrefix):]
	i := bytes.IndexByte(buf, ' ')
	if i < 0 {
		return 0
	}
	id, err := strconv.ParseUint(string(buf[:i]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
