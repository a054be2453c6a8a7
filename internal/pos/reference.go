package pos

import (
	"fmt"
	"time"
)

// ReferenceFor formats the daily invoice reference: INV-YYYYMMDD-NNN where NNN
// is the 1-based sequence of the sale within its local day.
func ReferenceFor(day time.Time, seq int64) string {
	return fmt.Sprintf("INV-%s-%03d", day.Format("20060102"), seq)
}

// dayStart truncates t to local midnight, the window the daily sequence counts
// over.
func dayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// referenceLockKey is the redis lock guarding the daily sequence so two
// concurrent checkouts never allocate the same NNN.
func referenceLockKey(day time.Time) string {
	return "pos:reference:" + day.Format("20060102")
}
