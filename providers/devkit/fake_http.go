// Package devkit carries test doubles shared by provider and service tests:
// a scripted HTTP doer that records every request it serves.
package devkit

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/goliatone/go-integrations/core"
)

// HTTPScript is one canned exchange. A zero Status serves 200; Err takes
// precedence over the response fields and simulates a transport failure.
type HTTPScript struct {
	Status int
	Header http.Header
	Body   string
	Err    error
}

// RecordedRequest is a snapshot of one request the fake served. The body is
// captured eagerly so assertions can run after the handler returned.
type RecordedRequest struct {
	Method string
	URL    string
	Header http.Header
	Body   string
}

// FakeHTTPDoer serves scripted responses in order, repeating the last script
// once the list is exhausted.
type FakeHTTPDoer struct {
	mu       sync.Mutex
	scripts  []HTTPScript
	requests []RecordedRequest
}

func NewFakeHTTPDoer(scripts ...HTTPScript) *FakeHTTPDoer {
	return &FakeHTTPDoer{scripts: append([]HTTPScript(nil), scripts...)}
}

// Append queues more scripted exchanges after those already configured.
func (d *FakeHTTPDoer) Append(scripts ...HTTPScript) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scripts = append(d.scripts, scripts...)
}

func (d *FakeHTTPDoer) Do(req *http.Request) (*http.Response, error) {
	if d == nil {
		return nil, fmt.Errorf("devkit: fake http doer is nil")
	}

	body := ""
	if req.Body != nil {
		raw, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err == nil {
			body = string(raw)
		}
	}

	d.mu.Lock()
	d.requests = append(d.requests, RecordedRequest{
		Method: req.Method,
		URL:    req.URL.String(),
		Header: req.Header.Clone(),
		Body:   body,
	})
	index := len(d.requests) - 1
	script := HTTPScript{Status: http.StatusOK, Body: "{}"}
	if index < len(d.scripts) {
		script = d.scripts[index]
	} else if len(d.scripts) > 0 {
		script = d.scripts[len(d.scripts)-1]
	}
	d.mu.Unlock()

	if script.Err != nil {
		return nil, script.Err
	}

	status := script.Status
	if status == 0 {
		status = http.StatusOK
	}
	header := script.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	if header.Get("Content-Type") == "" {
		header.Set("Content-Type", "application/json")
	}
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader([]byte(script.Body))),
		Request:    req,
	}, nil
}

// Requests returns a copy of every request served so far.
func (d *FakeHTTPDoer) Requests() []RecordedRequest {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]RecordedRequest, 0, len(d.requests))
	for _, item := range d.requests {
		out = append(out, RecordedRequest{
			Method: item.Method,
			URL:    item.URL,
			Header: item.Header.Clone(),
			Body:   item.Body,
		})
	}
	return out
}

var _ core.HTTPDoer = (*FakeHTTPDoer)(nil)
