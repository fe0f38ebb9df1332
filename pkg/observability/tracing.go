package observability

import (
	"net/http"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
)

// NewOutboundClient returns the HTTP client for calls to third parties. With
// tracing on, each request is recorded as an X-Ray subsegment of the
// caller's segment.
func NewOutboundClient(timeout time.Duration, tracing bool) *http.Client {
	client := &http.Client{Timeout: timeout}
	if tracing {
		return xray.Client(client)
	}
	return client
}

// TraceHandler wraps h in an X-Ray segment named after the service.
func TraceHandler(service string, h http.Handler) http.Handler {
	return xray.Handler(xray.NewFixedSegmentNamer(service), h)
}
