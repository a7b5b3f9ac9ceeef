package dto

// Client-facing payloads for the activation protocol.

type ActivateRequest struct {
	Key         string `json:"key"`
	Fingerprint string `json:"fingerprint"`
	ProgramName string `json:"programName"`
}

type ActivateResponse struct {
	Status       string `json:"status"`
	SessionToken string `json:"sessionToken,omitempty"`
	Message      string `json:"message,omitempty"`
}

type HeartbeatRequest struct {
	Key          string `json:"key"`
	Fingerprint  string `json:"fingerprint"`
	SessionToken string `json:"sessionToken"`
	ProgramName  string `json:"programName"`
}

// HeartbeatResponse.Status is "ok", "kicked_out" or "error". kicked_out
// is not an error: it tells the client its session was invalidated and
// it must terminate.
type HeartbeatResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type NotificationCheckResponse struct {
	Notification *string `json:"notification"`
}
