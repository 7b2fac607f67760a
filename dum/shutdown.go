package dum

// Shutdown begins a graceful teardown: new requests are still accepted
// only long enough to let in-flight usages wind down (spec.md §7 /
// DialogUsageManager::shutdown), then the transaction user is removed
// and the dispatcher reports itself ready for deletion through handler.
func (d *Dispatcher) Shutdown(handler ShutdownHandler) {
	d.log.Info().Int("dialog_sets", d.sets.Len()).Msg("dum: shutdown requested")
	d.shutdownHandler = handler
	d.shutdownState = ShutdownRequested
	d.shutdownIfEmpty()
}

// ForceShutdown skips the drain phase entirely, matching
// DialogUsageManager::forceShutdown's use for abnormal termination where
// waiting for usages to wind down isn't an option — it still runs the
// RemovingTransactionUser handshake before reaching Shutdown (spec.md
// §4.1's state diagram: "forceShutdown() --immediate--> RemovingTransactionUser").
func (d *Dispatcher) ForceShutdown(handler ShutdownHandler) {
	d.log.Warn().Int("dialog_sets", d.sets.Len()).Msg("dum: force shutdown")
	d.shutdownHandler = handler
	d.shutdownState = ShutdownRequested
	d.beginRemovingTransactionUser()
}

// NotifyDialogSetEmpty should be called whenever a DialogSet becomes
// empty (its last dialog finished); it drives the ShutdownRequested ->
// RemovingTransactionUser progression once every dialog set has drained,
// mirroring onAllHandlesDestroyed's role in the original.
func (d *Dispatcher) NotifyDialogSetEmpty() {
	reaped := d.sets.ReapEmpty()
	if d.metrics != nil && reaped > 0 {
		d.metrics.DialogSetsActive.Set(float64(d.sets.Len()))
	}
	if d.shutdownState == ShutdownRequested {
		d.shutdownIfEmpty()
	}
}

func (d *Dispatcher) shutdownIfEmpty() {
	if d.sets.Len() > 0 {
		return
	}
	d.beginRemovingTransactionUser()
}

// beginRemovingTransactionUser asks the stack to unregister the
// dispatcher as its transaction user and moves to
// RemovingTransactionUser; the transition to Shutdown only happens once
// the stack acknowledges with an EventTURemoved event, handled by
// onTransactionUserRemoved.
func (d *Dispatcher) beginRemovingTransactionUser() {
	d.shutdownState = RemovingTransactionUser
	d.stack.RemoveTU()
}

// onTransactionUserRemoved completes the RemovingTransactionUser ->
// Shutdown transition (spec.md §4.1 classification order step 2) and
// fires the shutdown handler exactly once.
func (d *Dispatcher) onTransactionUserRemoved() error {
	if d.shutdownState != RemovingTransactionUser {
		return nil
	}
	d.shutdownState = Shutdown
	if d.shutdownHandler != nil {
		d.shutdownHandler.OnDumCanBeDeleted()
		d.shutdownHandler = nil
	}
	return nil
}

// Destroy marks the dispatcher as being torn down for good, the final
// phase after Shutdown (spec.md §7). Calling any other dispatcher method
// after Destroy is a programmer error.
func (d *Dispatcher) Destroy() {
	d.shutdownState = Destroying
}
