package session

import "time"

const (
	jumpThreshold  = 0.8 // a draw above this also jumps
	swingThreshold = 0.5 // a draw above this swings the arm
)

// startIdleLocked begins the idle-activity loop for l, replacing any loop
// already running on it.
func (s *Session) startIdleLocked(l *link) {
	s.logf("AFK routine started: Rotating, Jumping, and Swinging.")
	s.stopIdleLocked(l)
	s.scheduleIdleLocked(l)
}

// stopIdleLocked cancels the tick and any pending jump release of l. Bumping
// the sequence numbers makes callbacks already in flight return without
// acting.
func (s *Session) stopIdleLocked(l *link) {
	if l.idle != nil {
		l.idle.Stop()
		l.idle = nil
	}
	if l.jump != nil {
		l.jump.Stop()
		l.jump = nil
		if err := l.conn.SetJump(false); err != nil {
			s.cfg.Logger.Debug("idle jump release failed", "session", s.logID, "error", err)
		}
	}
	l.idleSeq++
	l.jumpSeq++
}

func (s *Session) scheduleIdleLocked(l *link) {
	seq := l.idleSeq
	l.idle = s.cfg.Clock.AfterFunc(s.idleInterval(), func() { s.idleTick(l, seq) })
}

// idleInterval draws the next tick delay uniformly from [IdleMin, IdleMax).
func (s *Session) idleInterval() time.Duration {
	lo, hi := s.cfg.Timing.IdleMin, s.cfg.Timing.IdleMax
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(s.cfg.Rand()*float64(hi-lo))
}

func (s *Session) idleTick(l *link, seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.link != l || l.idle == nil || l.idleSeq != seq {
		return
	}
	l.idle = nil
	s.idleActLocked(l)
	s.scheduleIdleLocked(l)
}

// idleActLocked performs one round of liveness actions. One draw decides
// the round: above jumpThreshold the bot jumps and swings, above
// swingThreshold it only swings. The look direction is always nudged.
func (s *Session) idleActLocked(l *link) {
	pose, ok := l.conn.Pose()
	if !ok {
		return
	}

	action := s.cfg.Rand()
	yaw := pose.Yaw + (s.cfg.Rand() - 0.5)
	pitch := pose.Pitch + (s.cfg.Rand() - 0.5)
	if err := l.conn.Look(yaw, pitch); err != nil {
		s.cfg.Logger.Debug("idle look failed", "session", s.logID, "error", err)
	}

	if action > jumpThreshold {
		s.pressJumpLocked(l)
	}
	if action > swingThreshold {
		if err := l.conn.SwingArm(); err != nil {
			s.cfg.Logger.Debug("idle swing failed", "session", s.logID, "error", err)
		}
	}
}

func (s *Session) pressJumpLocked(l *link) {
	if l.jump != nil {
		l.jump.Stop()
		l.jump = nil
	}
	if err := l.conn.SetJump(true); err != nil {
		s.cfg.Logger.Debug("idle jump failed", "session", s.logID, "error", err)
		return
	}
	l.jumpSeq++
	seq := l.jumpSeq
	l.jump = s.cfg.Clock.AfterFunc(s.cfg.Timing.JumpHold, func() { s.releaseJump(l, seq) })
}

func (s *Session) releaseJump(l *link, seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.link != l || l.jump == nil || l.jumpSeq != seq {
		return
	}
	l.jump = nil
	if err := l.conn.SetJump(false); err != nil {
		s.cfg.Logger.Debug("idle jump release failed", "session", s.logID, "error", err)
	}
}
