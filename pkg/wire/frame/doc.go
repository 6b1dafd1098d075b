// Package frame implements clipbridge's wire framing: a length-prefixed
// envelope carrying either a control message or an opaque data chunk over
// a single bidirectional stream.
package frame
