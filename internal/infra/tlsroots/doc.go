// Package tlsroots builds TLS configurations for the node's listeners
// and for clients talking to them.
//
// Server certificates are served through a Reloader, which watches the
// key pair with fsnotify and swaps it in place when either file changes.
// CA bundles are plain PEM files.
package tlsroots
