package models

// PrivateError is the body sent to a single connection on /user/queue/errors
type PrivateError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthCheckResponse returns the health check response duh
type HealthCheckResponse struct {
	Alive bool `json:"alive"`
}
