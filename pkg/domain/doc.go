// Package domain defines the core data model for the Planwalk workflow
// traversal engine.
//
// This package contains pure domain types with ZERO external dependencies
// outside the Go standard library. All types in this package are:
//
// - Independent of infrastructure (no file formats, CLI, telemetry, etc.)
// - Serializable to plain structured form (JSON) and back
// - Testable in isolation without mocks
//
// Other packages (graph, engine, library, storage) depend on these types.
// The dependency direction is always:
//
//	Infrastructure → Domain (CORRECT)
//	Domain → Infrastructure (FORBIDDEN)
//
// A GraphDefinition is immutable after loading and safely shared by
// reference across any number of traversals. A TraversalState is mutable
// and single-owner: exactly one caller holds and mutates it at a time.
package domain
