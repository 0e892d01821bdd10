package update

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"
)

// Indeterminate is the percent value of a report without a known completion.
const Indeterminate = -1

const megabyte = 1024 * 1024

// ProgressEvent is a transient progress report.
type ProgressEvent struct {
	Message          string `json:"message"`
	Percent          int    `json:"percent"` // -1 .. 100
	BytesTransferred int64  `json:"bytes_transferred,omitempty"`
	TotalBytes       int64  `json:"total_bytes,omitempty"` // <= 0 when unknown
}

// Indeterminate reports whether the event carries no completion percentage.
func (e ProgressEvent) Indeterminate() bool {
	return e.Percent < 0
}

// ProgressSink receives progress events. A nil sink discards them.
type ProgressSink func(ProgressEvent)

// Report sends an indeterminate message.
func (s ProgressSink) Report(message string) {
	s.emit(ProgressEvent{Message: message, Percent: Indeterminate})
}

// ReportPercent sends a message with a completion percentage.
func (s ProgressSink) ReportPercent(message string, percent int) {
	s.emit(ProgressEvent{Message: message, Percent: percent})
}

// ReportTransfer sends a byte-count report. total <= 0 means unknown length.
func (s ProgressSink) ReportTransfer(done, total int64) {
	s.emit(transferEvent(done, total))
}

func (s ProgressSink) emit(e ProgressEvent) {
	if s != nil {
		s(e)
	}
}

func transferEvent(done, total int64) ProgressEvent {
	if total <= 0 {
		return ProgressEvent{
			Message:          fmt.Sprintf("Downloaded %s", humanize.IBytes(uint64(done))),
			Percent:          Indeterminate,
			BytesTransferred: done,
		}
	}

	return ProgressEvent{
		Message: fmt.Sprintf("Downloaded %.2f MB of %.2f MB",
			float64(done)/megabyte, float64(total)/megabyte),
		Percent:          percentOf(done, total),
		BytesTransferred: done,
		TotalBytes:       total,
	}
}

// percentOf is floor(done / total * 100), clamped to [0, 100].
func percentOf(done, total int64) int {
	if total <= 0 {
		return Indeterminate
	}
	p := int(math.Floor(float64(done) / float64(total) * 100))
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
