/*
Package log provides structured logging for clipbridge using zerolog.

Init configures the global Logger once at startup; components pull a
child logger via WithComponent and the WithXxxID helpers to tag log
lines with device, item, or session identifiers.
*/
package log
