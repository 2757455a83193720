package http

import (
	"net/http"
	"time"
)

// Response is a fully read HTTP response.
type Response struct {
	StatusCode      int
	Headers         http.Header
	Latency         time.Duration
	TimeToFirstByte time.Duration
	body            []byte
}

// BodyString returns the response body as a string
func (r *Response) BodyString() string {
	return string(r.body)
}

// Header returns the value of the specified header
func (r *Response) Header(key string) string {
	return r.Headers.Get(key)
}
