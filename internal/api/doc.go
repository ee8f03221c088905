// Package api provides PowerMirror's local HTTP API.
//
// Presentation clients read the mirrored device registry, outlet
// positions, derived power summary, and system journal from here instead
// of talking to the upstream backend directly. The two write paths are
// outlet placement (local state) and relay control, which is proxied to
// the backend: control success records an optimistic desired state, and
// the authoritative relay state still arrives only via the live stream.
//
// The server follows the usual lifecycle:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
