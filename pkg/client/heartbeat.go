package client

import (
	"time"

	"github.com/vango-dev/pomelo/pkg/protocol"
)

// heartbeat tracks liveness of the server. All fields are guarded by the
// session mutex; timers post back to the session loop and are matched
// against the sequence numbers so a fire that raced with a stop is ignored.
type heartbeat struct {
	interval     time.Duration
	timeout      time.Duration
	gapThreshold time.Duration

	// deadline is the latest time the next inbound frame is expected by.
	deadline time.Time

	sendTimer Timer
	sendSeq   uint64
	watchdog  Timer
	watchSeq  uint64
}

// configure sets the interval announced by the server, in seconds.
// 0 disables the monitor.
func (h *heartbeat) configure(seconds int) {
	h.stop()
	if seconds <= 0 {
		h.interval, h.timeout = 0, 0
		return
	}
	h.interval = time.Duration(seconds) * time.Second
	h.timeout = 2 * h.interval
}

func (h *heartbeat) active() bool {
	return h.interval > 0
}

// touch pushes the deadline to now+timeout.
func (h *heartbeat) touch(now time.Time) {
	if h.active() {
		h.deadline = now.Add(h.timeout)
	}
}

// gap returns how long until the deadline.
func (h *heartbeat) gap(now time.Time) time.Duration {
	return h.deadline.Sub(now)
}

func (h *heartbeat) stopWatchdog() {
	stopTimer(h.watchdog)
	h.watchdog = nil
	h.watchSeq++
}

func (h *heartbeat) stop() {
	stopTimer(h.sendTimer)
	h.sendTimer = nil
	h.sendSeq++
	h.stopWatchdog()
}

// The session side of the monitor. Every *Locked method requires s.mu.

// scheduleHeartbeatLocked runs when a heartbeat arrives or the handshake
// completes: it clears the watchdog and schedules one send after the
// interval, unless a send is already scheduled.
func (s *Session) scheduleHeartbeatLocked() {
	h := &s.hb
	if !h.active() {
		return
	}
	h.stopWatchdog()
	if h.sendTimer != nil {
		return
	}
	seq := h.sendSeq
	h.sendTimer = s.clock.AfterFunc(h.interval, func() {
		s.post(func() { s.onHeartbeatSend(seq) })
	})
}

// armWatchdogLocked schedules a timeout check after d.
func (s *Session) armWatchdogLocked(d time.Duration) {
	h := &s.hb
	stopTimer(h.watchdog)
	h.watchSeq++
	seq := h.watchSeq
	h.watchdog = s.clock.AfterFunc(d, func() {
		s.post(func() { s.onHeartbeatTimeout(seq) })
	})
}

func (s *Session) onHeartbeatSend(seq uint64) {
	s.mu.Lock()
	h := &s.hb
	if seq != h.sendSeq || h.sendTimer == nil {
		s.mu.Unlock()
		return
	}
	h.sendTimer = nil

	err := s.sendFrameLocked(protocol.FrameHeartbeat, nil)
	h.deadline = s.clock.Now().Add(h.timeout)
	s.armWatchdogLocked(h.timeout)
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("heartbeat send failed", "error", err)
	}
}

func (s *Session) onHeartbeatTimeout(seq uint64) {
	s.mu.Lock()
	h := &s.hb
	if seq != h.watchSeq || h.watchdog == nil {
		s.mu.Unlock()
		return
	}
	h.watchdog = nil

	if gap := h.gap(s.clock.Now()); gap > h.gapThreshold {
		s.armWatchdogLocked(gap)
		s.mu.Unlock()
		return
	}

	s.logger.Warn("server heartbeat timeout", "timeout", h.timeout)
	s.metrics.heartbeatTimeout()
	timeoutErr := heartbeatTimeoutError()

	conn := s.conn
	s.conn = nil
	effects := []func(){func() {
		s.events.emit(Event{Kind: EventHeartbeatTimeout, Err: timeoutErr})
	}}
	effects = append(effects, s.dropLocked(timeoutErr)...)
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	runEffects(effects)
}
