package metrics

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// Error type constants for metrics labels.
const (
	ErrorTypeTimeout    = "timeout"
	ErrorTypeCanceled   = "canceled"
	ErrorTypeRefused    = "connection_refused"
	ErrorTypeDNS        = "dns"
	ErrorTypeNetwork    = "network"
	ErrorTypeUnresolved = "unresolved"
	ErrorTypeUnknown    = "unknown"
)

// ClassifyProxyError classifies an error returned while forwarding a request
// to a backend. Returns an empty string for nil errors.
func ClassifyProxyError(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTimeout
	}

	if errors.Is(err, context.Canceled) {
		return ErrorTypeCanceled
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return ErrorTypeRefused
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrorTypeDNS
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorTypeTimeout
		}

		return ErrorTypeNetwork
	}

	// Fallback for errors that lost their type on the way up
	return classifyByErrorMessage(err.Error())
}

func classifyByErrorMessage(errStr string) string {
	errLower := strings.ToLower(errStr)

	switch {
	case strings.Contains(errLower, "timeout") || strings.Contains(errLower, "deadline"):
		return ErrorTypeTimeout
	case strings.Contains(errLower, "connection refused"):
		return ErrorTypeRefused
	case strings.Contains(errLower, "no such host"):
		return ErrorTypeDNS
	case strings.Contains(errLower, "unresolvable"):
		return ErrorTypeUnresolved
	case strings.Contains(errLower, "connection reset") || strings.Contains(errLower, "broken pipe"):
		return ErrorTypeNetwork
	default:
		return ErrorTypeUnknown
	}
}
