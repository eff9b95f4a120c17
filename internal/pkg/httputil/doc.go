// Package httputil provides shared HTTP response/request utilities for handlers.
//
// Every response body is a JSON object with a boolean "success" field.
// Errors carry a single "error" string. Messages for 5xx responses are
// always generic; the real error is logged server-side only.
package httputil
