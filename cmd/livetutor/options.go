package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
)

const (
	modeConversation = "conversation"
	modeTTS          = "tts"
	modeSTT          = "stt"
	modeReplay       = "replay"
)

const usage = `usage: livetutor [mode] [flags]

modes:
  conversation  talk with the model through the microphone (default)
  tts           speak the lines of -script and cache each line's audio
  stt           transcribe the microphone
  replay        play the cached lines in -dump-dir

flags:
  -script FILE   YAML script of lines (tts)
  -system TEXT   system instruction (conversation, stt)
  -voice NAME    prebuilt voice, overrides LIVETUTOR_VOICE and the script
  -no-speaker    discard model audio instead of playing it
  -dump-dir DIR  export cached lines after tts, or read them for replay
  -format FMT    export format: wav or mp3 (default wav)
  -watch         re-speak the script whenever it changes (tts)
  -env FILE      dotenv file to load (default .env)
  -debug         debug logging
`

type options struct {
	mode      string
	script    string
	system    string
	voice     string
	noSpeaker bool
	dumpDir   string
	format    string
	watch     bool
	envFile   string
	debug     bool
}

var errUsage = errors.New("invalid usage")

// parseOptions accepts the mode before or after the flags.
func parseOptions(args []string) (options, error) {
	opt := options{mode: modeConversation}
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		opt.mode = args[0]
		args = args[1:]
	}

	fs := flag.NewFlagSet("livetutor", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opt.script, "script", "", "YAML script of lines")
	fs.StringVar(&opt.system, "system", "", "system instruction")
	fs.StringVar(&opt.voice, "voice", "", "prebuilt voice name")
	fs.BoolVar(&opt.noSpeaker, "no-speaker", false, "discard model audio")
	fs.StringVar(&opt.dumpDir, "dump-dir", "", "line cache directory")
	fs.StringVar(&opt.format, "format", "wav", "export format: wav or mp3")
	fs.BoolVar(&opt.watch, "watch", false, "re-speak the script on change")
	fs.StringVar(&opt.envFile, "env", ".env", "dotenv file")
	fs.BoolVar(&opt.debug, "debug", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return options{}, fmt.Errorf("%w: %v", errUsage, err)
	}
	if rest := fs.Args(); len(rest) > 0 {
		if len(rest) > 1 || opt.mode != modeConversation {
			return options{}, fmt.Errorf("%w: unexpected arguments %q", errUsage, rest)
		}
		opt.mode = rest[0]
	}

	opt.format = strings.ToLower(strings.TrimSpace(opt.format))
	switch opt.format {
	case "wav", "mp3":
	default:
		return options{}, fmt.Errorf("%w: -format must be wav or mp3", errUsage)
	}

	switch opt.mode {
	case modeConversation, modeSTT:
	case modeTTS:
		if strings.TrimSpace(opt.script) == "" {
			return options{}, fmt.Errorf("%w: tts needs -script", errUsage)
		}
	case modeReplay:
		if strings.TrimSpace(opt.dumpDir) == "" {
			return options{}, fmt.Errorf("%w: replay needs -dump-dir", errUsage)
		}
	default:
		return options{}, fmt.Errorf("%w: unknown mode %q", errUsage, opt.mode)
	}
	if opt.watch && opt.mode != modeTTS {
		return options{}, fmt.Errorf("%w: -watch only applies to tts", errUsage)
	}
	return opt, nil
}
