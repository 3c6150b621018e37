package http

// ErrorBody is the only error shape the proxy ever returns.
type ErrorBody struct {
	Error string `json:"error" example:"Missing required params for quote: trading_symbol"`
}

// HealthBody is returned by the liveness route.
type HealthBody struct {
	Status string            `json:"status" example:"ok"`
	Checks map[string]string `json:"checks,omitempty"`
}
