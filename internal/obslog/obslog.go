// Package obslog is the service's logging transport: a small, mutex
// guarded writer gated by an environment variable, with component-tagged
// helpers for the job lifecycle (admission, loading, solving) and the
// advisory memory warning spec.md §4.6 requires never to block admission.
package obslog

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// EnableDebug can be overridden at build time:
// go build -ldflags "-X .../internal/obslog.EnableDebug=true"
var EnableDebug = "false"

var (
	mu     sync.Mutex
	output io.Writer = os.Stderr
)

// SetOutput redirects log output. Pass nil to silence it entirely. Tests
// use this to capture output in a buffer.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

// SetEnabled overrides the env/build-flag gate for tests.
func SetEnabled(enabled bool) {
	if enabled {
		EnableDebug = "true"
	} else {
		EnableDebug = "false"
	}
}

// Enabled reports whether logging is active: the build flag, or the
// DEBUG environment variable at runtime.
func Enabled() bool {
	if EnableDebug == "true" {
		return true
	}
	if v := os.Getenv("DEBUG"); v == "1" || v == "true" {
		return true
	}
	return false
}

func writer() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return output
}

// Log writes a component-tagged line, e.g. Log("ADMIT", "rejecting job %s: pool saturated", name).
func Log(component, format string, args ...interface{}) {
	if !Enabled() {
		return
	}
	w := writer()
	if w == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(w, "[%s] "+format+"\n", append([]interface{}{component}, args...)...)
}

// Warn writes a component-tagged warning line. Used for the low-free-RAM
// probe: the warning is logged but admission is never blocked by it.
func Warn(component, format string, args ...interface{}) {
	Log(component+":WARN", format, args...)
}
