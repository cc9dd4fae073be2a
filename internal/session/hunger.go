package session

// eatBelow is the food level under which the bot eats whatever it holds.
// A full bar is 20.
const eatBelow = 14

func (l *link) Vitals(health float64, food int) {
	if !l.current() {
		return
	}
	s := l.s
	defer s.mu.Unlock()

	l.food = food
	if health <= 0 {
		return
	}
	s.maybeEatLocked(l)
}

// maybeEatLocked eats when l is hungry and no attempt is cooling down.
func (s *Session) maybeEatLocked(l *link) {
	if l.food >= eatBelow || l.eating != nil {
		return
	}
	if err := l.conn.Eat(); err != nil {
		s.cfg.Logger.Debug("eating failed", "session", s.logID, "error", err)
		return
	}
	s.cfg.Logger.Debug("eating", "session", s.logID, "food", l.food)

	l.eatSeq++
	seq := l.eatSeq
	l.eating = s.cfg.Clock.AfterFunc(s.cfg.Timing.EatCooldown, func() { s.eatCooled(l, seq) })
}

// eatCooled ends the cooldown and tries again if the last attempt did not
// bring the food level back up.
func (s *Session) eatCooled(l *link, seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.link != l || l.eating == nil || l.eatSeq != seq {
		return
	}
	l.eating = nil
	s.maybeEatLocked(l)
}

func (s *Session) stopEatingLocked(l *link) {
	if l.eating != nil {
		l.eating.Stop()
		l.eating = nil
	}
	l.eatSeq++
}
