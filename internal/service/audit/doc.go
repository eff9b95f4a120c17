// Package audit implements the append-only audit trail of egress
// transitions.
//
// Writes are best-effort: a failed insert is logged and counted but never
// changes the outcome of the transition it describes. Reads are cursor
// paginated newest-first, and a retention sweep removes entries past the
// retention window.
//
// The service depends on the Repository interface defined in repository.go
// and never imports database/sql directly.
package audit
