package core

import (
	"fmt"
	"strings"
)

// DefaultDiagnosticsLimit is the maximum size of an outcome's diagnostics text.
const DefaultDiagnosticsLimit = 75000

// MessageLostMarker is appended once when diagnostics overflow the limit.
const MessageLostMarker = "\nWarning: further messages were lost because the message log is full."

// Diagnostics accumulates human-readable messages up to a fixed size.
// The earliest messages are kept; once a message would exceed the limit it
// is dropped, the marker is appended and every later message is discarded.
type Diagnostics struct {
	limit int
	buf   strings.Builder
	full  bool
	lost  int
	count int
}

// NewDiagnostics creates an accumulator holding at most limit bytes of
// messages (plus the marker). A non-positive limit uses the default.
func NewDiagnostics(limit int) *Diagnostics {
	if limit <= 0 {
		limit = DefaultDiagnosticsLimit
	}
	return &Diagnostics{limit: limit}
}

// Add appends one message. A newline is inserted between messages.
func (d *Diagnostics) Add(msg string) {
	d.count++
	if d.full {
		d.lost++
		return
	}

	need := len(msg)
	if d.buf.Len() > 0 {
		need++
	}
	if d.buf.Len()+need > d.limit {
		d.full = true
		d.lost++
		d.buf.WriteString(MessageLostMarker)
		return
	}

	if d.buf.Len() > 0 {
		d.buf.WriteByte('\n')
	}
	d.buf.WriteString(msg)
}

// Addf formats and appends one message.
func (d *Diagnostics) Addf(format string, args ...any) {
	d.Add(fmt.Sprintf(format, args...))
}

// Lost returns the number of messages dropped after the limit was reached.
func (d *Diagnostics) Lost() int { return d.lost }

// Count returns the number of messages added, kept or not.
func (d *Diagnostics) Count() int { return d.count }

// String returns the accumulated text.
func (d *Diagnostics) String() string { return d.buf.String() }
