// Package inference loads the AutoVC conversion model, a vocoder and the
// speaker encoder into a long-lived Python process and exposes them as Go
// interfaces.
//
// The Python side is an embedded script run inside an AutoVC checkout. Go
// talks to it over stdin/stdout, one msgpack map per message. Every handle
// returned by Load is bound to the same process and device; nothing is kept
// in package state, so tests can substitute any of the interfaces.
package inference
