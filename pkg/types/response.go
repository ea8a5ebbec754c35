package types

// Envelope is the uniform response body for the API surface. Success renders
// {"success":true,"data":...}; failures render {"success":false,"error":true,
// "message":...}. Stack is populated on 5xx responses in development only.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   bool   `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
	Details any    `json:"details,omitempty"`
	Stack   string `json:"stack,omitempty"`
}

// Success wraps data in a success envelope.
func Success(data any) Envelope {
	return Envelope{Success: true, Data: data}
}

// Failure builds a failure envelope with the public message.
func Failure(message string) Envelope {
	return Envelope{Success: false, Error: true, Message: message}
}
