// Package storage provides key/value backends for session records: an
// in-process map, a Redis hash and a prefixed view that namespaces another
// backend.
package storage
