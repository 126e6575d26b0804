package portal

// FakeNetworkController records access point transitions for tests.
type FakeNetworkController struct {
	// UpCalls and DownCalls count successful transitions.
	UpCalls   int
	DownCalls int

	// UpError and DownError, if set, are returned without recording.
	UpError   error
	DownError error

	// Running reflects the last successful transition.
	Running bool
}

// Up records the access point coming up.
func (f *FakeNetworkController) Up() error {
	if f.UpError != nil {
		return f.UpError
	}
	f.UpCalls++
	f.Running = true
	return nil
}

// Down records the access point going down.
func (f *FakeNetworkController) Down() error {
	if f.DownError != nil {
		return f.DownError
	}
	f.DownCalls++
	f.Running = false
	return nil
}

// Reset clears recorded calls.
func (f *FakeNetworkController) Reset() {
	f.UpCalls = 0
	f.DownCalls = 0
	f.UpError = nil
	f.DownError = nil
	f.Running = false
}

// FakePortal tracks portal state for control loop tests.
type FakePortal struct {
	// EnableCalls and DisableCalls count successful transitions.
	EnableCalls  int
	DisableCalls int

	// EnableError and DisableError, if set, are returned without recording.
	EnableError  error
	DisableError error

	// Up reflects the last successful transition.
	Up bool

	// PendingDisable is delivered (and cleared) by ConsumeDisableRequest.
	PendingDisable bool
}

// Enable records the portal coming up.
func (f *FakePortal) Enable() error {
	if f.EnableError != nil {
		return f.EnableError
	}
	f.EnableCalls++
	f.Up = true
	return nil
}

// Disable records the portal going down.
func (f *FakePortal) Disable() error {
	if f.DisableError != nil {
		return f.DisableError
	}
	f.DisableCalls++
	f.Up = false
	return nil
}

// Active reports the fake's state.
func (f *FakePortal) Active() bool {
	return f.Up
}

// ConsumeDisableRequest delivers a pending disable request once.
func (f *FakePortal) ConsumeDisableRequest() bool {
	req := f.PendingDisable
	f.PendingDisable = false
	return req
}

// Reset clears recorded calls and state.
func (f *FakePortal) Reset() {
	f.EnableCalls = 0
	f.DisableCalls = 0
	f.EnableError = nil
	f.DisableError = nil
	f.Up = false
	f.PendingDisable = false
}

var _ NetworkController = (*FakeNetworkController)(nil)
