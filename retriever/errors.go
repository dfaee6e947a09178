package retriever

import "errors"

// ErrUpstreamUnavailable marks a failure of the external ETL subprocess or
// an upstream JSON-RPC call (spec §7 error taxonomy).
var ErrUpstreamUnavailable = errors.New("retriever: upstream unavailable")
