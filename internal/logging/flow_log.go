package logging

import (
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
)

// LineSink receives each completed flow log line without its trailing newline.
type LineSink func(line string)

// FlowLog accumulates the human-readable log of a single job. Every line is
// kept for the final upload and also handed to the current sink, if any.
type FlowLog struct {
	mu    sync.Mutex
	buf   strings.Builder
	sink  atomic.Pointer[LineSink]
	level slog.Leveler
}

// NewFlowLog creates a capture that keeps records at or above level.
func NewFlowLog(level slog.Level) *FlowLog {
	return &FlowLog{level: level}
}

// Handler returns a console-format handler writing into the capture.
func (f *FlowLog) Handler() slog.Handler {
	return newConsoleHandler(f, f.level, false)
}

// SetSink installs the live forwarder. A nil sink stops forwarding.
func (f *FlowLog) SetSink(sink LineSink) {
	if sink == nil {
		f.sink.Store(nil)
		return
	}
	f.sink.Store(&sink)
}

// Write implements io.Writer. The console handler emits exactly one line per call.
func (f *FlowLog) Write(p []byte) (int, error) {
	f.mu.Lock()
	f.buf.Write(p)
	f.mu.Unlock()

	if sink := f.sink.Load(); sink != nil {
		for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
			(*sink)(line)
		}
	}
	return len(p), nil
}

// String returns the full captured log.
func (f *FlowLog) String() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buf.String()
}
