// Package request defines the immutable description of a single HTTP
// call used by both the pipeline and the event stream.
package request

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Header is an ordered list of header fields with case-preserving,
// unique-by-name upsert semantics. A plain map would lose insertion
// order and silently case-fold field names; this does neither.
type Header struct {
	names []string
	value map[string]string
}

func newHeader() Header {
	return Header{value: make(map[string]string)}
}

// Set upserts field with value, preserving field's original casing and
// the position of its first insertion.
func (h *Header) Set(field, value string) {
	if h.value == nil {
		h.value = make(map[string]string)
	}
	key := canonicalKey(field)
	if _, exists := h.value[key]; !exists {
		h.names = append(h.names, field)
	} else {
		// keep the originally-inserted casing; replace only the value.
		for i, n := range h.names {
			if canonicalKey(n) == key {
				h.names[i] = n
				break
			}
		}
	}
	h.value[key] = value
}

// Get returns the value set for field, if any.
func (h Header) Get(field string) (string, bool) {
	v, ok := h.value[canonicalKey(field)]
	return v, ok
}

func (h Header) apply(hdr http.Header) {
	for _, name := range h.names {
		hdr.Set(name, h.value[canonicalKey(name)])
	}
}

func canonicalKey(field string) string {
	return http.CanonicalHeaderKey(field)
}

// Request is a value describing one HTTP call: method, URL parts,
// headers, query params, and an optional body. The mutators are
// SetHeader and AddParam, which change the Request in place; Clone
// returns an independent copy to mutate instead.
type Request struct {
	Method   string
	BaseURL  string
	Endpoint string
	header   Header
	params   url.Values
	body     []byte
}

// New builds a Request with no body and no Content-Type header.
func New(method, baseURL, endpoint string) Request {
	return Request{
		Method:   method,
		BaseURL:  baseURL,
		Endpoint: endpoint,
		header:   newHeader(),
		params:   url.Values{},
	}
}

// NewWithBody builds a Request whose body is used as-is. No
// Content-Type is injected; callers set one themselves via SetHeader
// if needed.
func NewWithBody(method, baseURL, endpoint string, body []byte) Request {
	r := New(method, baseURL, endpoint)
	r.body = body
	return r
}

// NewWithJSON builds a Request whose body is the JSON encoding of v,
// upserting Content-Type: application/json.
func NewWithJSON(method, baseURL, endpoint string, v interface{}) (Request, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return Request{}, fmt.Errorf("request: failed to encode JSON body: %w", err)
	}
	r := New(method, baseURL, endpoint)
	r.body = body
	r.SetHeader("Content-Type", "application/json")
	return r, nil
}

// SetHeader is a case-preserving upsert keyed by field name.
func (r *Request) SetHeader(field, value string) {
	r.header.Set(field, value)
}

// AddParam appends value to the ordered list of values for name,
// preserving per-name insertion order across repeated calls.
func (r *Request) AddParam(name, value string) {
	if r.params == nil {
		r.params = url.Values{}
	}
	r.params.Add(name, value)
}

// Clone returns a deep-enough copy suitable for a retried request:
// same method/URL/body, headers and params copied so later mutation of
// the clone (e.g. SendPage adding page params) cannot alias the
// original.
func (r Request) Clone() Request {
	clone := r
	clone.header = Header{
		names: append([]string(nil), r.header.names...),
		value: make(map[string]string, len(r.header.value)),
	}
	for k, v := range r.header.value {
		clone.header.value[k] = v
	}
	clone.params = url.Values{}
	for k, vs := range r.params {
		clone.params[k] = append([]string(nil), vs...)
	}
	return clone
}

// HTTPRequest builds the underlying *http.Request, appending query
// parameters in per-name insertion order and applying headers. It
// returns an error if the resulting URL is malformed.
func (r Request) HTTPRequest() (*http.Request, error) {
	u, err := url.Parse(r.BaseURL + r.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("request: malformed URL: %w", err)
	}
	if len(r.params) > 0 {
		q := u.Query()
		for name, values := range r.params {
			for _, v := range values {
				q.Add(name, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	var bodyReader *bytes.Reader
	if r.body != nil {
		bodyReader = bytes.NewReader(r.body)
	}

	var httpReq *http.Request
	if bodyReader != nil {
		httpReq, err = http.NewRequest(r.Method, u.String(), bodyReader)
	} else {
		httpReq, err = http.NewRequest(r.Method, u.String(), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("request: failed to build HTTP request: %w", err)
	}

	r.header.apply(httpReq.Header)
	return httpReq, nil
}
