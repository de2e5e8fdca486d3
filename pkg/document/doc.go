// Package document defines the input of a reconciliation run and reads it
// from YAML or TOML files.
//
// A Document pairs the declared Configuration (options, nodes, resource
// tree) with the observed Status (membership, per-node operation histories,
// tickets). The structs mirror the input format closely and carry no
// behaviour; the reconciler package interprets them.
package document
