// Package align maps received audio segments back to the text lines that were
// requested to be spoken, using the transcript the live model streams
// alongside its audio.
//
// The model separates spoken lines with language-code markers such as
// "[en-US]" (and sometimes plain newlines), and may sprinkle emotion markers
// such as "[laughing]" into the text. Transcript line i is assumed to describe
// audio segment i. That positional correspondence is inferred from observed
// model behaviour, not guaranteed by the protocol; every heuristic in this
// package errs toward leaving a segment unmatched rather than guessing.
package align
