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

// Package request turns logical database requests into wire-ready
// descriptors. A [Request] names a method, path components, an optional
// query and a body of (almost) any type. [Encode] resolves the final
// path, serializes the body, and computes the headers. The resulting
// [Wire] value is independent of any particular host, so the same
// descriptor can be sent again after a leader redirect.
//
// Bodies are serialized based on their type and the request flags:
//
//   - With Binary set, the body is sent as is, using the
//     "application/octet-stream" content type.
//   - Structured values (maps, slices, arrays, structs, and values that
//     implement [encoding/json.Marshaler]) are sent as JSON. With
//     JSONStream set, every element of a slice is encoded as one JSON
//     document per line ("application/x-ldjson").
//   - Everything else is sent as text ("text/plain").
package request
