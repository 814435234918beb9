package handler

import "time"

// Response is the envelope for every JSON response.
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
}

// NewResponse creates a success response.
func NewResponse(requestID string, data any) *Response {
	return &Response{
		Code:      "OK",
		Message:   "Success",
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(requestID, code, message string) *Response {
	return &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
	}
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
	State  string `json:"state"`
}

// StatusResponse is the body of GET /v1/status.
type StatusResponse struct {
	NodeID         string `json:"node_id"`
	Mode           string `json:"mode"`
	State          string `json:"state"`
	Peers          int    `json:"peers"`
	StoreAddress   string `json:"store_address,omitempty"`
	ContentAddress string `json:"content_address,omitempty"`
	Version        string `json:"version"`
}

// KVResponse is the body of GET /v1/kv.
type KVResponse struct {
	Count   int               `json:"count"`
	Entries map[string]string `json:"entries"`
}

// EntryResponse is the body of GET and PUT /v1/kv/{key}.
type EntryResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// PutRequest is the body of PUT /v1/kv/{key}.
type PutRequest struct {
	Value string `json:"value"`
}
