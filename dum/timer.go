package dum

import (
	"time"

	"github.com/sipdum/dum/usage"
)

// timerFire is delivered back into the dispatcher's own event stream
// when a previously scheduled usage timer expires. Grounded on
// DialogUsageManager::addTimer/addTimerMs, which post a DumTimeout
// message through the SipStack so it re-enters internalProcess on the
// dispatcher's own thread; this module has no SipStack::post analogue,
// so timers are posted directly onto a channel the dispatcher selects
// on alongside sipstack.Stack.Events().
type timerFire struct {
	target  usage.Usage
	timeout string
}

// timerWheel schedules Go timers that deliver a timerFire onto fires
// when they expire. It holds no usage-domain knowledge of its own.
type timerWheel struct {
	fires chan timerFire
}

func newTimerWheel() *timerWheel {
	return &timerWheel{fires: make(chan timerFire, 64)}
}

func (w *timerWheel) schedule(after time.Duration, target usage.Usage, timeout string) {
	time.AfterFunc(after, func() {
		select {
		case w.fires <- timerFire{target: target, timeout: timeout}:
		default:
			// Fires channel full: the dispatcher is badly backed up. Drop
			// rather than block the runtime timer goroutine.
		}
	})
}

// AddTimer schedules target.OnTimer(timeout) to run on the dispatcher's
// own goroutine after d elapses, matching
// DialogUsageManager::addTimer's role of delivering expiries back
// through the single-threaded actor rather than firing them inline on
// whatever goroutine the timer runtime uses.
func (d *Dispatcher) AddTimer(after time.Duration, target usage.Usage, timeout string) {
	d.timers.schedule(after, target, timeout)
}
