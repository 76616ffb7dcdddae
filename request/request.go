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

package request

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Header names and content types that are part of the wire contract.
const (
	HeaderContentType   = "Content-Type"
	HeaderContentLength = "Content-Length"
	HeaderVersion       = "X-Arango-Version"
	HeaderEndpoint      = "X-Arango-Endpoint"

	ContentTypeJSON   = "application/json"
	ContentTypeLDJSON = "application/x-ldjson"
	ContentTypeBinary = "application/octet-stream"
	ContentTypeText   = "text/plain"
)

var errUnsupportedBinaryBody = errors.New("binary body must be []byte, string, or io.Reader")

// A Request describes a logical request, before it is bound to a
// particular connection's database, headers and version.
type Request struct {
	// Method specifies the HTTP method (GET, POST, PUT, etc.). An empty
	// string means GET.
	Method string

	// Path holds the path components, joined with "/". A leading "/" is
	// added if missing.
	Path []string

	// Query is either a literal query string (used verbatim, without the
	// leading "?"), or a mapping of type url.Values, map[string]string or
	// map[string]any, which is percent-encoded with keys in sorted order.
	Query any

	// Body is the request body. See the package documentation for how
	// the various types are serialized.
	Body any

	// Header holds per-request headers. These override the connection's
	// default headers as well as the computed content type.
	Header http.Header

	// Binary sends the body as raw bytes and asks for the response body
	// to be delivered undecoded.
	Binary bool

	// JSONStream encodes a structured body as line-delimited JSON.
	JSONStream bool

	// Absolute disables the database path prefix for this request.
	Absolute bool
}

// EncodeOptions holds the connection-wide settings that apply to every
// encoded request.
type EncodeOptions struct {
	// DatabasePath is prepended to the path of every request that is not
	// absolute, for example "/_db/_system". It is empty for absolute
	// connections.
	DatabasePath string
	// DefaultHeaders are sent with every request.
	DefaultHeaders http.Header
	// Version is sent in the X-Arango-Version header.
	Version int
	// ExplicitContentLength adds a Content-Length header, computed from
	// the encoded body, to the descriptor's headers.
	ExplicitContentLength bool
}

// Encode builds the wire descriptor for the given request.
func Encode(req *Request, opts EncodeOptions) (*Wire, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	query, err := encodeQuery(req.Query)
	if err != nil {
		return nil, err
	}
	body, contentType, err := encodeBody(req.Body, req.Binary, req.JSONStream)
	if err != nil {
		return nil, err
	}

	path := joinPath(req.Path)
	if !req.Absolute {
		path = opts.DatabasePath + path
	}
	if query != "" {
		path += "?" + query
	}

	header := make(http.Header, len(opts.DefaultHeaders)+len(req.Header)+3)
	for key, values := range opts.DefaultHeaders {
		header[key] = append([]string(nil), values...)
	}
	header.Set(HeaderContentType, contentType)
	header.Set(HeaderVersion, strconv.Itoa(opts.Version))
	for key, values := range req.Header {
		header[http.CanonicalHeaderKey(key)] = append([]string(nil), values...)
	}
	if opts.ExplicitContentLength {
		header.Set(HeaderContentLength, strconv.Itoa(len(body)))
	}

	return &Wire{
		Method: method,
		Path:   path,
		Header: header,
		Body:   body,
	}, nil
}

func joinPath(components []string) string {
	joined := strings.Join(components, "/")
	if joined != "" && !strings.HasPrefix(joined, "/") {
		joined = "/" + joined
	}
	return joined
}

func encodeQuery(query any) (string, error) {
	switch query := query.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimPrefix(query, "?"), nil
	case url.Values:
		return query.Encode(), nil
	case map[string]string:
		values := make(url.Values, len(query))
		for key, value := range query {
			values.Set(key, value)
		}
		return values.Encode(), nil
	case map[string]any:
		values := make(url.Values, len(query))
		keys := make([]string, 0, len(query))
		for key := range query {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			values.Set(key, fmt.Sprint(query[key]))
		}
		return values.Encode(), nil
	default:
		return "", fmt.Errorf("unsupported query type %T", query)
	}
}

func encodeBody(body any, binary, stream bool) ([]byte, string, error) {
	switch {
	case binary:
		raw, err := binaryBody(body)
		if err != nil {
			return nil, "", err
		}
		return raw, ContentTypeBinary, nil
	case isStructured(body) && stream:
		raw, err := streamBody(body)
		if err != nil {
			return nil, "", err
		}
		return raw, ContentTypeLDJSON, nil
	case isStructured(body):
		raw, err := marshalJSON(body)
		if err != nil {
			return nil, "", err
		}
		return raw, ContentTypeJSON, nil
	default:
		return textBody(body), ContentTypeText, nil
	}
}

func binaryBody(body any) ([]byte, error) {
	switch body := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return body, nil
	case string:
		return []byte(body), nil
	case io.Reader:
		raw, err := io.ReadAll(body)
		if closer, ok := body.(io.Closer); ok {
			_ = closer.Close()
		}
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		return raw, nil
	default:
		return nil, fmt.Errorf("%w, got %T", errUnsupportedBinaryBody, body)
	}
}

func textBody(body any) []byte {
	switch body := body.(type) {
	case nil:
		return nil
	case []byte:
		return body
	case string:
		return []byte(body)
	default:
		return []byte(fmt.Sprint(body))
	}
}

// streamBody encodes every element of a slice or array as one JSON
// document, each followed by CRLF. Any other value is a single document.
func streamBody(body any) ([]byte, error) {
	var buf bytes.Buffer
	value := reflect.Indirect(reflect.ValueOf(body))
	kind := value.Kind()
	if (kind == reflect.Slice || kind == reflect.Array) && !isBytes(value.Type()) {
		for i := 0; i < value.Len(); i++ {
			doc, err := marshalJSON(value.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			if i > 0 {
				buf.WriteString("\r\n")
			}
			buf.Write(doc)
		}
	} else {
		doc, err := marshalJSON(body)
		if err != nil {
			return nil, err
		}
		buf.Write(doc)
	}
	buf.WriteString("\r\n")
	return buf.Bytes(), nil
}

// marshalJSON is json.Marshal without HTML escaping and without the
// trailing newline that json.Encoder adds.
func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// isStructured reports whether the given body is a non-scalar value that
// should be sent as JSON.
func isStructured(body any) bool {
	if body == nil {
		return false
	}
	if _, ok := body.(json.Marshaler); ok {
		return true
	}
	value := reflect.ValueOf(body)
	for value.Kind() == reflect.Pointer || value.Kind() == reflect.Interface {
		if value.IsNil() {
			return false
		}
		value = value.Elem()
	}
	switch value.Kind() {
	case reflect.Map, reflect.Struct, reflect.Array:
		return true
	case reflect.Slice:
		return !isBytes(value.Type())
	default:
		return false
	}
}

func isBytes(t reflect.Type) bool {
	return t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8
}
