package query

import "errors"

// ErrInvalidInput is returned for malformed or out-of-range query
// parameters (spec §7 "InvalidInput").
var ErrInvalidInput = errors.New("query: invalid input")
