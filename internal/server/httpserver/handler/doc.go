// Package handler implements the node's HTTP API.
//
//	GET    /healthz         liveness; 503 once the node stopped or failed
//	GET    /v1/status       identity, lifecycle state, peers, store address
//	GET    /v1/kv           full key-value snapshot
//	GET    /v1/kv/{key}     one value
//	PUT    /v1/kv/{key}     local write, subject to the access policy
//	DELETE /v1/kv/{key}     local delete, subject to the access policy
//
// JSON responses use the Response envelope.
package handler
