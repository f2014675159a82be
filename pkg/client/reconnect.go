package client

import "time"

// reconnectPolicy decides whether and when to reconnect after an
// unsolicited close. Guarded by the session mutex.
type reconnectPolicy struct {
	enabled     bool
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration // 0 = uncapped

	attempts int
	delay    time.Duration

	timer Timer
	seq   uint64
}

func newReconnectPolicy(o options) reconnectPolicy {
	return reconnectPolicy{
		enabled:     o.reconnect,
		maxAttempts: o.maxAttempts,
		baseDelay:   o.reconnectDelay,
		maxDelay:    o.maxDelay,
		delay:       o.reconnectDelay,
	}
}

// next consumes one attempt and returns its delay. ok is false when
// reconnection is disabled or the budget is spent.
func (p *reconnectPolicy) next() (delay time.Duration, ok bool) {
	if !p.enabled || p.attempts >= p.maxAttempts {
		return 0, false
	}
	p.attempts++
	delay = p.delay
	p.delay *= 2
	if p.maxDelay > 0 && p.delay > p.maxDelay {
		p.delay = p.maxDelay
	}
	return delay, true
}

// exhausted reports whether reconnection is enabled but out of attempts.
func (p *reconnectPolicy) exhausted() bool {
	return p.enabled && p.attempts >= p.maxAttempts
}

// reset restores the initial budget and delay.
func (p *reconnectPolicy) reset() {
	p.attempts = 0
	p.delay = p.baseDelay
}

// cancel stops a scheduled attempt.
func (p *reconnectPolicy) cancel() {
	stopTimer(p.timer)
	p.timer = nil
	p.seq++
}

// scheduleReconnectLocked arms the timer for the next attempt.
func (s *Session) scheduleReconnectLocked(delay time.Duration) {
	s.rc.cancel()
	seq := s.rc.seq
	s.rc.timer = s.clock.AfterFunc(delay, func() {
		s.post(func() { s.onReconnectTimer(seq) })
	})
}

func (s *Session) onReconnectTimer(seq uint64) {
	s.mu.Lock()
	if seq != s.rc.seq || s.rc.timer == nil || s.state != StateIdle {
		s.mu.Unlock()
		return
	}
	s.rc.timer = nil

	s.logger.Info("reconnecting", "attempt", s.rc.attempts, "max", s.rc.maxAttempts)
	var effects []func()
	if err := s.dialLocked(true); err != nil {
		openErr := connectionError(err)
		effects = append(effects, func() { s.emitError(openErr) })
		effects = append(effects, s.dropLocked(err)...)
	}
	s.mu.Unlock()

	runEffects(effects)
}
