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

// Package response classifies the responses of database requests. Every
// completed request ends in exactly one [Result], whose [Kind] is one of
// KindSuccess, KindApplicationError, KindHTTPError or KindTransportError.
//
// Responses are decoded based on their content type. A JSON body that
// has the shape of a database error, that is an object with all of the
// fields "error", "code", "errorMessage" and "errorNum", is classified
// as an application error regardless of the HTTP status code. Note that
// this is a heuristic: a user document that happens to have those four
// fields is indistinguishable from an error.
package response
