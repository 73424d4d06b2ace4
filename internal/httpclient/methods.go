package httpclient

import (
	"net/http"
	"strconv"
)

const (
	MethodPropfind = "PROPFIND"
	MethodReport   = "REPORT"

	contentTypeXML      = "application/xml; charset=utf-8"
	contentTypeCalendar = "text/calendar; charset=utf-8"
)

// NewPropfind builds a PROPFIND with the given Depth.
func NewPropfind(path string, depth int, body []byte) *Request {
	return &Request{
		Method: MethodPropfind,
		Path:   path,
		Header: http.Header{
			"Content-Type": {contentTypeXML},
			"Depth":        {strconv.Itoa(depth)},
		},
		Body: body,
	}
}

// NewReport builds a REPORT with the given Depth.
func NewReport(path string, depth int, body []byte) *Request {
	r := NewPropfind(path, depth, body)
	r.Method = MethodReport
	return r
}

// NewGet builds a GET for a calendar object.
func NewGet(path string) *Request {
	return &Request{
		Method: http.MethodGet,
		Path:   path,
		Header: http.Header{"Accept": {"text/calendar"}},
	}
}

// NewPut builds a PUT of iCalendar data. With createOnly set the request
// carries If-None-Match: * so an existing object is never overwritten.
func NewPut(path string, data []byte, createOnly bool) *Request {
	h := http.Header{"Content-Type": {contentTypeCalendar}}
	if createOnly {
		h.Set("If-None-Match", "*")
	}
	return &Request{Method: http.MethodPut, Path: path, Header: h, Body: data}
}

// NewDelete builds a DELETE.
func NewDelete(path string) *Request {
	return &Request{Method: http.MethodDelete, Path: path, Header: http.Header{}}
}

// NewPost builds a POST with a body of the given content type.
func NewPost(path, contentType string, body []byte) *Request {
	return &Request{
		Method: http.MethodPost,
		Path:   path,
		Header: http.Header{"Content-Type": {contentType}},
		Body:   body,
	}
}
