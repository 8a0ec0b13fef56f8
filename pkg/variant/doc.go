// Package variant defines the pluggable capability contract for model
// implementations and the table that maps variant names to factories.
//
// A variant supplies the modelling logic (input, output, update) and its
// own state serialization (save, load, delete). The table is populated
// once at startup and is immutable for the process lifetime; the
// registry resolves variant names through it when creating or adopting
// instances.
package variant
