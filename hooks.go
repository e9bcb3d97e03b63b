package rescache

// Hooks are lightweight callbacks for high-signal client events.
// Implementations MUST be cheap and non-blocking - the client calls them on
// hot paths. Wrap with hooks/async to push the work off the request path.
type Hooks interface {
	// The authoritative mode changed (e.g. retry budget exhausted, explicit
	// reconnect). reason is a short human-readable cause.
	ModeChange(from, to Mode, reason string)

	// A backend operation failed. op names the public operation ("get",
	// "set", ...). Fired whether or not fallback then served the call.
	BackendError(op string, err error)

	// A single call was served from the in-process store after a backend
	// failure. Not fired when the client is already in memory mode.
	FallbackServed(op string)

	// An explicit Reconnect finished. connected reports the resulting state.
	ReconnectResult(connected bool)
}

// NopHooks is the default no-op.
type NopHooks struct{}

func (NopHooks) ModeChange(Mode, Mode, string) {}
func (NopHooks) BackendError(string, error)    {}
func (NopHooks) FallbackServed(string)         {}
func (NopHooks) ReconnectResult(bool)          {}
