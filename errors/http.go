package errors

import "net/http"

// ClassifyHTTP maps an external capability's HTTP response status to the
// error taxonomy. Timeouts, rate limits, and server errors are transient;
// client errors mean the input itself was rejected and retrying is useless.
func ClassifyHTTP(service string, status int, body string) *AppError {
	switch {
	case status == http.StatusTooManyRequests:
		return RateLimited(service)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return Timeout(service)
	case status >= 500:
		return ServiceUnavailable(service).WithDetail("status", status)
	case status >= 400:
		return UnsupportedInput(service, body).WithDetail("status", status)
	default:
		return ServiceUnavailable(service).WithDetail("status", status)
	}
}
