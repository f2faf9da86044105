package logger

import (
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// callerSkipPrefixes lists the packages whose frames never count as the
// caller of a log line: logrus itself and the Entry wrappers in this package.
var callerSkipPrefixes = []string{
	"github.com/sirupsen/logrus.",
	"cryptoreport/logger.",
}

// callerHook rewrites entry.Caller so the "file" field names the poller,
// reader or writer line that logged, not a wrapper in this package.
type callerHook struct{}

func (h *callerHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *callerHook) Fire(entry *logrus.Entry) error {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(6, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if frame.Function != "" && !skipCallerFrame(frame.Function) {
			entry.Caller = &frame
			return nil
		}
		if !more {
			return nil
		}
	}
}

func skipCallerFrame(fn string) bool {
	for _, prefix := range callerSkipPrefixes {
		if strings.HasPrefix(fn, prefix) {
			return true
		}
	}
	return false
}
