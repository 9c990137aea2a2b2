package speech

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/braheezy/shine-mp3/pkg/mp3"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/rs/xid"
	"gopkg.in/yaml.v3"
)

// ManifestFile is the index written next to exported audio.
const ManifestFile = "index.yaml"

// mp3Rate is the MPEG-1 rate exported MP3 files are encoded at.
const mp3Rate = 48000

type manifest struct {
	SampleRate int             `yaml:"sample_rate"`
	Format     string          `yaml:"format"`
	Entries    []manifestEntry `yaml:"entries"`
}

type manifestEntry struct {
	ID   string `yaml:"id"`
	Key  string `yaml:"key"`
	Text string `yaml:"text"`
	Lang string `yaml:"lang,omitempty"`
	Line int    `yaml:"line"`
	File string `yaml:"file"`
}

// ExportWAV writes every entry as a 16-bit mono WAV file plus the manifest,
// and returns the audio file paths.
func (c *LineCache) ExportWAV(dir string) ([]string, error) {
	return c.export(dir, "wav", writeWAV)
}

// ExportMP3 writes every entry as an MP3 file plus the manifest, and returns
// the audio file paths.
func (c *LineCache) ExportMP3(dir string) ([]string, error) {
	return c.export(dir, "mp3", writeMP3)
}

func (c *LineCache) export(dir, format string, write func(path string, e *Entry) error) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("export %s: %w", format, err)
	}
	m := manifest{SampleRate: c.sampleRate, Format: format}
	var paths []string
	for i, e := range c.Entries() {
		name := fmt.Sprintf("%03d-%s.%s", i, e.ID.String(), format)
		path := filepath.Join(dir, name)
		if err := write(path, e); err != nil {
			return paths, fmt.Errorf("export %s: %s: %w", format, name, err)
		}
		paths = append(paths, path)
		m.Entries = append(m.Entries, manifestEntry{
			ID:   e.ID.String(),
			Key:  e.Key,
			Text: e.Text,
			Lang: e.Lang,
			Line: e.Line,
			File: name,
		})
	}
	data, err := yaml.Marshal(&m)
	if err != nil {
		return paths, fmt.Errorf("export %s: manifest: %w", format, err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), data, 0o644); err != nil {
		return paths, fmt.Errorf("export %s: manifest: %w", format, err)
	}
	return paths, nil
}

// LoadDir rebuilds a cache from a directory written by ExportWAV or ExportMP3.
func LoadDir(dir string) (*LineCache, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("load cache: %w", err)
	}
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("load cache: manifest: %w", err)
	}
	c := NewLineCache(m.SampleRate)
	for _, me := range m.Entries {
		path := filepath.Join(dir, me.File)
		var samples []int16
		switch strings.ToLower(filepath.Ext(me.File)) {
		case ".wav":
			samples, err = readWAV(path, c.sampleRate)
		case ".mp3":
			samples, err = readMP3(path, c.sampleRate)
		default:
			err = fmt.Errorf("unsupported file type")
		}
		if err != nil {
			return nil, fmt.Errorf("load cache: %s: %w", me.File, err)
		}
		id, err := xid.FromString(me.ID)
		if err != nil {
			id = xid.New()
		}
		c.put(&Entry{
			ID:         id,
			Key:        me.Key,
			Text:       me.Text,
			Lang:       me.Lang,
			Line:       me.Line,
			SampleRate: c.sampleRate,
			Samples:    samples,
		})
	}
	return c, nil
}

func writeWAV(path string, e *Entry) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := wav.NewEncoder(f, e.SampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: e.SampleRate},
		Data:           make([]int, len(e.Samples)),
		SourceBitDepth: 16,
	}
	for i, s := range e.Samples {
		buf.Data[i] = int(s)
	}
	if err := enc.Write(buf); err != nil {
		f.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func readWAV(path string, rate int) ([]int16, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, errors.New("invalid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, err
	}
	channels := int(dec.NumChans)
	if channels < 1 {
		channels = 1
	}
	shift := 0
	if dec.BitDepth > 16 {
		shift = int(dec.BitDepth) - 16
	}
	mono := make([]int16, len(buf.Data)/channels)
	for i := range mono {
		sum := 0
		for ch := 0; ch < channels; ch++ {
			sum += buf.Data[i*channels+ch] >> shift
		}
		mono[i] = int16(sum / channels)
	}
	return resample(mono, int(dec.SampleRate), rate), nil
}

// writeMP3 encodes at 48kHz mono, padding the last block with silence.
func writeMP3(path string, e *Entry) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	samples := resample(e.Samples, e.SampleRate, mp3Rate)
	const block = 1152
	if rem := len(samples) % block; rem != 0 || len(samples) == 0 {
		samples = append(samples, make([]int16, block-rem)...)
	}
	enc := mp3.NewEncoder(mp3Rate, 1)
	enc.Write(f, samples)
	return f.Close()
}

// readMP3 decodes to mono at rate. go-mp3 always yields 16-bit stereo.
func readMP3(path string, rate int) ([]int16, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec, err := gomp3.NewDecoder(f)
	if err != nil {
		return nil, err
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, err
	}
	frames := len(raw) / 4
	mono := make([]int16, frames)
	for i := 0; i < frames; i++ {
		l := int16(binary.LittleEndian.Uint16(raw[i*4:]))
		r := int16(binary.LittleEndian.Uint16(raw[i*4+2:]))
		mono[i] = int16((int(l) + int(r)) / 2)
	}
	return resample(mono, dec.SampleRate(), rate), nil
}

// resample converts by linear interpolation.
func resample(samples []int16, from, to int) []int16 {
	if from == to || from <= 0 || to <= 0 || len(samples) == 0 {
		return append([]int16(nil), samples...)
	}
	ratio := float64(from) / float64(to)
	n := int(float64(len(samples)) / ratio)
	out := make([]int16, n)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		if idx+1 < len(samples) {
			out[i] = int16(float64(samples[idx])*(1-frac) + float64(samples[idx+1])*frac)
		} else if idx < len(samples) {
			out[i] = samples[idx]
		}
	}
	return out
}
