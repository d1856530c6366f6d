package proxy

import "errors"

var (
	// ErrNotConfigured is fatal and returned while building the proxy layer.
	ErrNotConfigured = errors.New("proxy: not configured")

	// ErrBackendUnavailable wraps cache or source failures at request time.
	ErrBackendUnavailable = errors.New("proxy: backend unavailable")
)
