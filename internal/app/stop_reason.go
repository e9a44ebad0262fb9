package app

// StopReason is logged when the service shuts down.
type StopReason string

const (
	StopUnknown     StopReason = "unknown"
	StopSIGINT      StopReason = "sigint"
	StopSIGTERM     StopReason = "sigterm"
	StopFatalError  StopReason = "fatal_error"
	StopConsoleQuit StopReason = "console_quit"
	StopContext     StopReason = "context_done"
)
