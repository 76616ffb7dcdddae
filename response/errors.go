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

import "fmt"

// ApplicationError is an error reported by the database itself, in the
// body of a response.
type ApplicationError struct {
	IsError      bool   `json:"error"`
	Code         int    `json:"code"`
	ErrorNum     int    `json:"errorNum"`
	ErrorMessage string `json:"errorMessage"`
	// StatusCode is the HTTP status of the response, which may differ
	// from Code.
	StatusCode int       `json:"-"`
	Response   *Response `json:"-"`
}

func (e *ApplicationError) Error() string {
	return fmt.Sprintf("database error %d (code %d): %s", e.ErrorNum, e.Code, e.ErrorMessage)
}

// HTTPError is a response with a status code of 400 or higher that does
// not carry a database error.
type HTTPError struct {
	StatusCode int
	// Body is the decoded body, see Result.Body.
	Body any
	Raw  []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error: status %d", e.StatusCode)
}

// DecodeError is returned when a JSON response body could not be decoded
// and binary delivery was requested.
type DecodeError struct {
	Response *Response
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode response body (status %d): %v", e.Response.StatusCode, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
