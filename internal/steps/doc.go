// Package steps defines the contract every executable flow step implements
// and the machinery that turns a part's generic property bag into a
// configured step instance.
//
// A step type is described by a Definition: its type identifier, default
// input/output counts, a constructor, and a binding table of Fields. Property
// values arrive as decoded JSON and are wrapped in Value, a small tagged union
// whose accessors perform the coercions fields need (string to duration,
// string to enum, number to int). Binding is best effort: unknown or
// mistyped properties are logged and skipped.
//
// Steps receive an *Args for each execution carrying the working file,
// variables, progress reporting, and the flow redirect hook.
package steps
