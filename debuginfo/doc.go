// Package debuginfo reports the debug metadata attached to an IR module:
// its compile units, subprograms, global variables and every type reachable
// from them. It neither compiles nor runs anything.
package debuginfo
