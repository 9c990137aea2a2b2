// Package pcm converts between floating-point audio samples and the 16-bit
// little-endian PCM exchanged with the live model, and frames raw PCM as
// base64 for JSON transports.
//
// Every function in this package is pure: no I/O, no shared state.
package pcm
