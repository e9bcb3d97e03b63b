// Package rescache implements a resilient key-value cache client that fails
// over transparently from a networked backend to an in-process bounded store.
//
// The client runs in exactly one of three modes:
//
//	single  - one backend node
//	cluster - a clustered backend
//	memory  - the in-process fallback (memstore)
//
// Single or cluster is chosen from configuration; memory is entered when no
// backend is configured, or when the connection retry budget is exhausted.
// A failed in-flight operation is served from the fallback for that one call
// without switching modes. Memory mode is sticky: the client returns to a
// backend only through an explicit Reconnect, never by the passage of time.
//
// With fallback enabled (the default) no operation fails because the backend
// is down - the worst case is a degraded answer from the short-TTL in-process
// store. Disable fallback to surface transport errors instead.
//
// Components:
//   - memstore: bounded FIFO store with lazy TTL expiry (the fallback).
//   - ratelimit: fixed-window request counters and net/http middleware,
//     built on the same lazy-expiry-map pattern.
//   - typed + codec: a typed view over the string KV surface with pluggable
//     serialization (JSON, msgpack, CBOR, protobuf).
//   - log/zap, log/logrus, log/slog: Logger adapters.
//   - hooks/async, sloghooks: non-blocking observability hooks.
package rescache
