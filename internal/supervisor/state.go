package supervisor

// State is the connection state owned exclusively by the supervisor. The
// decision pipeline reads it, never writes it.
type State string

const (
	StateIdle           State = "idle"
	StateStarting       State = "starting"
	StateConnecting     State = "connecting"
	StateAuthenticating State = "authenticating" // QR / credential challenge pending
	StateOpen           State = "open"
	StateClosing        State = "closing"
	StateReconnecting   State = "reconnecting"
	StateFailed         State = "failed"
)
