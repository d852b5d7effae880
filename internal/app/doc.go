// Package app composes the provenance layer's services into a running
// application.
//
// # Architecture Role
//
// The app package sits above the domain packages and wires them together.
// It carries no business logic of its own: validation, content addressing
// and the bundle pipeline live in internal/app/services/, persistence in
// internal/app/storage/.
//
// # Package Structure
//
//	internal/app/
//	├── application.go      # Application struct, wiring, and lifecycle
//	├── domain/             # Domain models (pure data structures)
//	│   ├── account/        # Accounts, permissions, access levels
//	│   └── entity/         # Assets, events, bundles, claims
//	├── services/
//	│   ├── accounts/       # Account lifecycle and permission queries
//	│   ├── entities/       # Asset/event validation and use cases
//	│   └── bundles/        # Bundle assembly, finalisation, scheduling
//	├── storage/            # Store interfaces and implementations
//	│   ├── interfaces.go   # AccountStore, EntityStore
//	│   ├── memory/         # In-memory implementation for tests and dev
//	│   └── postgres/       # PostgreSQL implementation for production
//	├── httpapi/            # HTTP handlers, middleware, audit trail
//	└── system/             # Lifecycle manager for background services
//
// # Responsibilities
//
// The app package is responsible for:
//
//   - Composing services with their stores, the node signing key and the
//     ledger proof uploader
//   - Registering background services (the bundle finalisation scheduler)
//     with the lifecycle manager
//   - Exposing the composed services to the HTTP layer and the commands
//
// Anything domain-specific belongs in the service packages, not here.
package app
