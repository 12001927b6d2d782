// Package dto defines the request and response shapes of the HTTP API.
package dto

import "time"

type StartResponse struct {
	StartTime  time.Time `json:"startTime"`
	StartDelta int       `json:"startDelta"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
