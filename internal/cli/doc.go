// Package cli implements the pilot command-line interface.
//
// Each cobra command parses its flags into an options struct and hands off
// to an xxxCommand function that takes its collaborators explicitly, so
// commands can be exercised against a dev server in tests.
//
// # Command Structure
//
//	pilot watch [node-id...]  - Full-screen dashboard (JSON lines when not a TTY)
//	pilot stream <node-id>    - Frames as JSON lines
//	pilot nodes               - List nodes
//	pilot node <node-id>      - Node details, --rename, --snapshot
//	pilot export <node-id>    - Prometheus /metrics for one node
//	pilot devserver           - Local synthetic backend
//	pilot init                - Create .pilot.yaml
//	pilot config path|show|set
//	pilot doctor              - Check config, tunnel, backend and stream
//	pilot version, pilot completion
//
// # Backend
//
// Commands that talk to the backend build a backend value from the resolved
// config: the REST client, the stream options and, when server.ssh_tunnel is
// set, an SSH tunnel that carries both REST and websocket traffic. It must
// be closed to release the tunnel.
//
// # Flag Handling
//
// Global flags (--config, --server, --verbose, --no-color, --json) are
// defined on the root command. --server overrides server.url for a single
// invocation; --json switches nodes, node and doctor to the JSON envelope.
package cli
