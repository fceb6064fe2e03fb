package writer

import (
	"bytes"
	"fmt"
)

type debugLog struct {
	buf bytes.Buffer
}

// printf is a no-op on a nil log.
func (d *debugLog) printf(format string, args ...any) {
	if d == nil {
		return
	}
	fmt.Fprintf(&d.buf, format, args...)
	d.buf.WriteByte('\n')
}

// EnableDebug makes the writer record every cursor operation. The log is
// returned by DebugLog.
func (w *Writer) EnableDebug() {
	if w.debug == nil {
		w.debug = &debugLog{}
	}
}

// DebugLog returns the operations recorded since EnableDebug.
func (w *Writer) DebugLog() string {
	if w.debug == nil {
		return ""
	}
	return w.debug.buf.String()
}
