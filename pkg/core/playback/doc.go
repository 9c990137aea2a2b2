// Package playback schedules decoded model audio back to back on an output
// clock.
//
// The Scheduler owns a single cursor, the earliest time the next chunk may
// start. Each chunk starts at max(now, cursor) and pushes the cursor to its own
// end, so chunks never overlap and, when audio arrives faster than it plays,
// never leave gaps. An interruption resets the cursor so fresh audio starts
// immediately.
//
// Outputs are "audio contexts": something with a clock that can play a chunk
// at a given time. Timeline is a software mixer usable in tests and headless
// runs; Device drives a Timeline from a miniaudio playback callback.
package playback
