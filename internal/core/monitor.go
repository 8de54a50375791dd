package core

import (
	"context"
	"time"

	"github.com/vortexvpn/coremgr/internal/controller"
	"github.com/vortexvpn/coremgr/internal/history"
	"github.com/vortexvpn/coremgr/internal/metrics"
	"github.com/vortexvpn/coremgr/internal/traffic"
)

// pollTraffic polls the control plane while the session is alive and turns
// cumulative snapshots into rate-bearing traffic updates. The client is
// re-read every iteration so a reload that moves the controller endpoint
// redirects the very next poll. A failed poll backs off to PollBackoff
// instead of retrying hot; the previous sample is kept so the next success
// still yields a rate. Cancellation is checked at the top of every
// iteration and every HTTP call is bounded by the client's own timeout, so
// the loop never outlives Stop by more than one call.
func (s *Supervisor) pollTraffic(sess *session) {
	defer sess.wg.Done()

	var meter traffic.Meter
	timer := time.NewTimer(s.opts.PollInterval)
	defer timer.Stop()

	for {
		select {
		case <-sess.ctx.Done():
			return
		case <-timer.C:
		}
		if s.State() != StateRunning {
			return
		}
		ctl := s.sessionClient(sess)
		if ctl == nil {
			return
		}

		ctx, cancel := context.WithTimeout(sess.ctx, controller.RequestTimeout)
		snap, ok := ctl.Traffic(ctx)
		cancel()
		if !ok {
			metrics.IncPollFailure()
			s.logger.Debug("traffic poll failed, backing off", "retry_in", s.opts.PollBackoff)
			timer.Reset(s.opts.PollBackoff)
			continue
		}

		metrics.SetTraffic(snap.Upload, snap.Download)
		now := time.Now()
		rate, haveRate := meter.Advance(traffic.Sample{Upload: snap.Upload, Download: snap.Download, At: now})
		if haveRate {
			update := TrafficUpdate{
				Upload:      snap.Upload,
				Download:    snap.Download,
				UploadBps:   rate.UploadBps,
				DownloadBps: rate.DownloadBps,
			}
			s.mu.Lock()
			if s.sess == sess {
				s.lastTraffic = update
			}
			s.mu.Unlock()
			metrics.SetRates(rate.UploadBps, rate.DownloadBps)
			s.record(history.Event{
				Type:        history.EventTraffic,
				OccurredAt:  now,
				SessionID:   sess.id,
				Upload:      snap.Upload,
				Download:    snap.Download,
				UploadBps:   rate.UploadBps,
				DownloadBps: rate.DownloadBps,
			})
			s.notifyTraffic(update)
		}
		timer.Reset(s.opts.PollInterval)
	}
}

// sessionClient returns the controller client currently installed for sess,
// or nil once the session has been replaced or torn down. ReloadConfig swaps
// the client in place, so readers must not cache it across iterations.
func (s *Supervisor) sessionClient(sess *session) *controller.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess != sess {
		return nil
	}
	return s.ctl
}
