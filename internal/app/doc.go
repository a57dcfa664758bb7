// Package app composes the token dashboard into a running application.
//
// The package wires the layers together and owns nothing domain-specific
// itself:
//
//	internal/app/
//	├── application.go      # Wiring and lifecycle
//	├── server.go           # HTTP listener as a managed service
//	├── session.go          # Shared chart session fed by refresh cycles
//	├── domain/market/      # Market domain models (pure data)
//	├── cache/              # Cache store interface, memory and redis backends
//	├── services/
//	│   ├── marketdata/     # Upstream DEX provider client and synthesis
//	│   └── orchestrator/   # Dataset derivation, caching, refresh cycles
//	├── httpapi/            # REST surface
//	├── ws/                 # Websocket push and interaction routing
//	├── metrics/            # Prometheus collectors
//	└── system/             # Service lifecycle manager
//
// Chart drawing lives outside the app tree under internal/chart so the
// rendering engine stays independent of transport and orchestration.
package app
