// Package vsdb is an embedded, disk-backed key-value store exposing a
// small family of standard-library-shaped collection types - Map,
// OrdMap, Vec, Orphan and SingleValue - all built on the lower-level
// RawMap and MultiKeyMap primitives in this module's pkg/ subpackages.
//
// A process talks to exactly one on-disk database, resolved once via
// pkg/engine.Open (base directory from VSDB_BASE_DIR, or SetBaseDir, or
// ${HOME}/.vsdb). Every collection constructor in this package takes that
// *engine.Engine and allocates its own namespace prefix inside it, so
// arbitrarily many collections can share one database file.
package vsdb
