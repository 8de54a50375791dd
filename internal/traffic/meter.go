// Package traffic derives instantaneous throughput from cumulative
// byte-count snapshots polled off the core's control plane.
package traffic

import "time"

// Sample is one cumulative snapshot.
type Sample struct {
	Upload   uint64
	Download uint64
	At       time.Time
}

// Rate is throughput derived from two consecutive samples, truncated
// toward zero.
type Rate struct {
	UploadBps   int64
	DownloadBps int64
}

// Meter keeps the previous sample and turns the next one into a Rate.
// Not safe for concurrent use; the traffic monitor is its only caller.
type Meter struct {
	prev    Sample
	hasPrev bool
}

// Advance records cur as the latest sample and returns the rate against the
// previous one. ok is false when there is no previous sample yet or the
// elapsed time is not strictly positive; in that case no rate may be
// reported.
func (m *Meter) Advance(cur Sample) (Rate, bool) {
	prev, hasPrev := m.prev, m.hasPrev
	m.prev = cur
	m.hasPrev = true

	if !hasPrev {
		return Rate{}, false
	}
	elapsed := cur.At.Sub(prev.At).Seconds()
	if elapsed <= 0 {
		return Rate{}, false
	}
	// Counters restart from zero when the core restarts; a sample below the
	// previous one is a new baseline, not a negative rate.
	if cur.Upload < prev.Upload || cur.Download < prev.Download {
		return Rate{}, false
	}
	return Rate{
		UploadBps:   int64(float64(cur.Upload-prev.Upload) / elapsed),
		DownloadBps: int64(float64(cur.Download-prev.Download) / elapsed),
	}, true
}

// Reset drops the previous sample so the next Advance starts a fresh
// baseline. Called when a polling gap makes the old sample stale.
func (m *Meter) Reset() {
	m.prev = Sample{}
	m.hasPrev = false
}
