package audiocore

import (
	"bytes"
	"runtime"
	"strconv"
	"sync/atomic"
)

// ThreadChecker binds to the first goroutine that calls CalledOnValidThread
// and reports whether later calls come from the same goroutine. Detach
// releases the binding so another goroutine can claim it.
//
// The zero value is detached and ready to use.
type ThreadChecker struct {
	owner atomic.Int64
}

// CalledOnValidThread reports whether the caller is the bound goroutine,
// binding the caller if the checker is detached.
func (tc *ThreadChecker) CalledOnValidThread() bool {
	id := goroutineID()
	if tc.owner.CompareAndSwap(0, id) {
		return true
	}
	return tc.owner.Load() == id
}

// Detach releases the bound goroutine.
func (tc *ThreadChecker) Detach() {
	tc.owner.Store(0)
}

// Bound reports whether a goroutine is currently bound.
func (tc *ThreadChecker) Bound() bool {
	return tc.owner.Load() != 0
}

var goroutinePrefix = []byte("goroutine ")

// goroutineID parses the current goroutine ID from the stack header
// "goroutine 123 [running]:". Goroutine IDs start at 1.
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := bytes.TrimPrefix(buf[:n], goroutinePrefix)
	if i := bytes.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}
	id, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		// Unreachable with the current runtime; -1 never matches a real owner.
		return -1
	}
	return id
}
