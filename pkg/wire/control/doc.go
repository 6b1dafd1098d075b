// Package control defines the clipbridge control protocol: a tagged union
// of JSON messages exchanged over control frames (frame.TypeControl),
// discriminated by a "type" field. Encode/Decode are the only entry points;
// callers never marshal the payload structs directly.
package control
