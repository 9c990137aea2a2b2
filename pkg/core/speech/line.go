package speech

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vango-go/livetutor/pkg/core/align"
)

// Line is one line of text to speak.
type Line struct {
	Text  string `yaml:"text" json:"text"`
	Lang  string `yaml:"lang,omitempty" json:"lang,omitempty"`
	Voice string `yaml:"voice,omitempty" json:"voice,omitempty"`
	// CacheKey overrides the cache key derived from the text.
	CacheKey string `yaml:"cache_key,omitempty" json:"cache_key,omitempty"`
}

// Key returns the cache key for the line.
func (l Line) Key() string {
	if l.CacheKey != "" {
		return l.CacheKey
	}
	return align.Normalize(l.Text)
}

// Script is a YAML file of lines.
//
//	voice: Kore
//	lines:
//	  - text: Hola, ¿cómo estás?
//	    lang: es-ES
type Script struct {
	Voice string `yaml:"voice,omitempty"`
	Lines []Line `yaml:"lines"`
}

// ParseScript decodes a YAML script and validates it.
func ParseScript(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	if len(s.Lines) == 0 {
		return nil, errors.New("parse script: no lines")
	}
	for i, l := range s.Lines {
		if strings.TrimSpace(l.Text) == "" {
			return nil, fmt.Errorf("parse script: line %d has no text", i+1)
		}
	}
	return &s, nil
}

// LoadScript reads and parses a YAML script file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseScript(data)
}

// Texts returns the text of every line.
func Texts(lines []Line) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.Text
	}
	return out
}

// Instruction builds the system instruction that makes the model read lines
// verbatim when the user says "Play".
func Instruction(lines []Line) string {
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = fmt.Sprintf("[%s] %s", l.Lang, l.Text)
	}
	return `You are a professional Text-to-Speech engine. Your ONLY task is to read the following text aloud, exactly as written, when the user says "Play".
IMPORTANT RULES:
- Read EXACTLY what is written, character by character
- Speak each line clearly with a brief pause between lines
- Do NOT add any intro, outro, commentary, or acknowledgment
- Do NOT modify, translate, or interpret the text
- Just speak the text immediately
- Do NOT replace language codes with newlines.
TEXT TO READ:
` + strings.Join(parts, "\n\n")
}
