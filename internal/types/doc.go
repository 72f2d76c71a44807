// Package types holds the shared data model for the habitat control-plane:
// PEA configuration and runtime status, alarms, topology, time-series
// points, and recipes. Nothing in this package performs I/O; it is pure
// data plus the small amount of logic (enum string/JSON conversion,
// PeaConfig validation, Clone/Has/Covers helpers) that every consumer
// would otherwise duplicate.
//
// Glossary:
//
//   - PEA — Process Equipment Asset: a logical, possibly virtual, piece
//     of industrial equipment exposing services.
//   - Service — a named unit of behavior on a PEA with a PackML-style
//     state machine.
//   - Procedure — a parameterized operation selectable within a service.
//   - Recipe — an operator-authored ordered sequence of service commands
//     spanning one or more PEAs.
//   - Topology — a directed graph over PEAs describing permitted
//     orchestration transitions.
//   - Blackout — a time window during which matching alarms are accepted
//     but immediately marked shelved.
package types
