package core

// TrafficUpdate carries cumulative byte counts plus the throughput derived
// from the two most recent samples.
type TrafficUpdate struct {
	Upload      uint64 `json:"upload"`
	Download    uint64 `json:"download"`
	UploadBps   int64  `json:"upload_bps"`
	DownloadBps int64  `json:"download_bps"`
}

// Listener receives supervisor events. The supervisor holds at most one
// listener; SetListener replaces any previous one. Callbacks are invoked
// from the supervisor's own goroutines and must return quickly -- a listener
// that blocks stalls the loop that emitted the event.
type Listener interface {
	OnStateChange(State)
	OnTraffic(TrafficUpdate)
	OnLogLine(string)
	OnError(string)
}

func (s *Supervisor) SetListener(l Listener) {
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()
}

func (s *Supervisor) currentListener() Listener {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listener
}

func (s *Supervisor) notifyState(st State) {
	if l := s.currentListener(); l != nil {
		l.OnStateChange(st)
	}
}

func (s *Supervisor) notifyTraffic(u TrafficUpdate) {
	if l := s.currentListener(); l != nil {
		l.OnTraffic(u)
	}
}

func (s *Supervisor) notifyLog(line string) {
	if l := s.currentListener(); l != nil {
		l.OnLogLine(line)
	}
}

func (s *Supervisor) notifyError(msg string) {
	if l := s.currentListener(); l != nil {
		l.OnError(msg)
	}
}
