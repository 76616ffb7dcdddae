// Copyright 2023 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package response

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"time"
)

//nolint:gochecknoglobals
var jsonContentType = regexp.MustCompile(`/(json|javascript)(\W|$)`)

// Kind identifies the outcome of a request.
type Kind int

const (
	// KindSuccess is a response that is neither an HTTP nor an
	// application error.
	KindSuccess Kind = iota + 1
	// KindApplicationError is a response whose body is a database error.
	KindApplicationError
	// KindHTTPError is a response with a status code of 400 or higher
	// that does not carry a database error.
	KindHTTPError
	// KindTransportError is a request that did not produce a response
	// which could be delivered.
	KindTransportError
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindApplicationError:
		return "application error"
	case KindHTTPError:
		return "http error"
	case KindTransportError:
		return "transport error"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Response is a fully read response, as produced by a host transport.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Result is the terminal outcome of a request.
type Result struct {
	Kind       Kind
	StatusCode int
	Header     http.Header
	// Body is the decoded body: the value produced by json.Unmarshal for
	// JSON responses, a string for other responses, or []byte when binary
	// delivery was requested. It is nil for empty bodies.
	Body any
	// Raw is the undecoded response body.
	Raw []byte
	// Host is the index of the host that produced this result, or -1 if
	// the request was never sent.
	Host int
	// Elapsed is the time from submission until the result was produced,
	// including time spent queued and following leader redirects.
	Elapsed time.Duration
	// Err is nil for KindSuccess. Otherwise it is an *ApplicationError,
	// an *HTTPError, a *DecodeError or the transport's error.
	Err error
}

// Decode unmarshals the raw JSON body into v.
func (r Result) Decode(v any) error {
	if len(r.Raw) == 0 {
		return fmt.Errorf("decode %s result: empty body", r.Kind)
	}
	return json.Unmarshal(r.Raw, v)
}

// TransportFailure returns the result for a request that failed before
// producing a response.
func TransportFailure(err error) Result {
	return Result{Kind: KindTransportError, Host: -1, Err: err}
}

// Classify decodes the given response and classifies it. If binary is
// true, successful bodies are delivered as raw bytes and a JSON body that
// cannot be decoded is an error instead of falling back to text.
func Classify(resp *Response, binary bool) Result {
	result := Result{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Raw:        resp.Body,
		Host:       -1,
	}
	var decoded any
	isJSON := false
	if len(resp.Body) > 0 && jsonContentType.MatchString(resp.Header.Get("Content-Type")) {
		if err := json.Unmarshal(resp.Body, &decoded); err != nil {
			if binary {
				result.Kind = KindTransportError
				result.Err = &DecodeError{Response: resp, Err: err}
				return result
			}
		} else {
			isJSON = true
		}
	}

	switch {
	case isJSON:
		result.Body = decoded
	case len(resp.Body) == 0:
		result.Body = nil
	case binary:
		result.Body = resp.Body
	default:
		result.Body = string(resp.Body)
	}

	if isJSON {
		if appErr, ok := asApplicationError(resp, decoded); ok {
			result.Kind = KindApplicationError
			result.Err = appErr
			return result
		}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		result.Kind = KindHTTPError
		result.Err = &HTTPError{StatusCode: resp.StatusCode, Body: result.Body, Raw: resp.Body}
		return result
	}
	result.Kind = KindSuccess
	if binary {
		result.Body = resp.Body
	}
	return result
}

// asApplicationError checks for the database error shape: an object with
// all of the fields "error", "code", "errorMessage" and "errorNum".
func asApplicationError(resp *Response, decoded any) (*ApplicationError, bool) {
	object, ok := decoded.(map[string]any)
	if !ok {
		return nil, false
	}
	for _, field := range []string{"error", "code", "errorMessage", "errorNum"} {
		if _, ok := object[field]; !ok {
			return nil, false
		}
	}
	appErr := &ApplicationError{StatusCode: resp.StatusCode, Response: resp}
	// the shape check above is authoritative, mismatched field types are
	// left at their zero values
	_ = json.Unmarshal(resp.Body, appErr)
	return appErr, true
}
