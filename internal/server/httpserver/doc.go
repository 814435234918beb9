// Package httpserver serves the node's status, key-value and metrics
// endpoints over net/http.
//
// The API itself lives in the handler subpackage; this package owns the
// listener, the middleware chain and the route table.
package httpserver
