package client

import (
	"fmt"
	"net/http"
)

// UpstreamError carries a non-2xx backing-source response so it can be relayed
// to the caller unchanged.
type UpstreamError struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	ErrorClass ErrorClass
}

// NewUpstreamError wraps a failed response.
func NewUpstreamError(resp *Response) *UpstreamError {
	return &UpstreamError{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
		ErrorClass: classifyError(&http.Response{StatusCode: resp.StatusCode}, nil),
	}
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s error (status %d)", e.ErrorClass, e.StatusCode)
}
