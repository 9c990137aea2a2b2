package geminiws

import (
	"strings"

	"github.com/vango-go/livetutor/pkg/core/live"
	"github.com/vango-go/livetutor/pkg/core/pcm"
)

// Client messages of the BidiGenerateContent protocol.

type clientMessage struct {
	Setup         *setupMessage         `json:"setup,omitempty"`
	RealtimeInput *realtimeInputMessage `json:"realtimeInput,omitempty"`
	ClientContent *clientContentMessage `json:"clientContent,omitempty"`
}

type setupMessage struct {
	Model                    string           `json:"model"`
	GenerationConfig         generationConfig `json:"generationConfig"`
	SystemInstruction        *content         `json:"systemInstruction,omitempty"`
	InputAudioTranscription  *struct{}        `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}        `json:"outputAudioTranscription,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type realtimeInputMessage struct {
	Audio *blob `json:"audio,omitempty"`
}

type clientContentMessage struct {
	Turns        []content `json:"turns"`
	TurnComplete bool      `json:"turnComplete"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string `json:"text,omitempty"`
	InlineData *blob  `json:"inlineData,omitempty"`
	Thought    bool   `json:"thought,omitempty"`
}

// blob carries base64 data as sent on the wire.
type blob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

// Server messages.

type serverMessage struct {
	SetupComplete *struct{}      `json:"setupComplete,omitempty"`
	ServerContent *serverContent `json:"serverContent,omitempty"`
	GoAway        *goAway        `json:"goAway,omitempty"`
	Error         *serverError   `json:"error,omitempty"`
}

type serverContent struct {
	ModelTurn           *content       `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	InputTranscription  *transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *transcription `json:"outputTranscription,omitempty"`
}

type transcription struct {
	Text string `json:"text"`
}

type goAway struct {
	TimeLeft string `json:"timeLeft"`
}

type serverError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func newSetup(cfg live.SessionConfig, voice string) *clientMessage {
	model := cfg.Model
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}
	modalities := make([]string, 0, len(cfg.Modalities))
	for _, m := range cfg.Modalities {
		modalities = append(modalities, string(m))
	}
	if len(modalities) == 0 {
		modalities = []string{string(live.ModalityAudio)}
	}
	if cfg.Voice != "" {
		voice = cfg.Voice
	}
	setup := &setupMessage{
		Model: model,
		GenerationConfig: generationConfig{
			ResponseModalities: modalities,
			SpeechConfig: &speechConfig{VoiceConfig: voiceConfig{
				PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: voice},
			}},
		},
	}
	if cfg.SystemInstruction != "" {
		setup.SystemInstruction = &content{Parts: []part{{Text: cfg.SystemInstruction}}}
	}
	if cfg.InputTranscription {
		setup.InputAudioTranscription = &struct{}{}
	}
	if cfg.OutputTranscription {
		setup.OutputAudioTranscription = &struct{}{}
	}
	return &clientMessage{Setup: setup}
}

func newRealtimeInput(frame live.MediaFrame) *clientMessage {
	return &clientMessage{RealtimeInput: &realtimeInputMessage{
		Audio: &blob{MIMEType: frame.MIMEType, Data: pcm.EncodeBase64(frame.Data)},
	}}
}

func newUserTurn(text string) *clientMessage {
	return &clientMessage{ClientContent: &clientContentMessage{
		Turns:        []content{{Role: "user", Parts: []part{{Text: text}}}},
		TurnComplete: true,
	}}
}

// translate maps server content onto handler messages. Audio parts whose data
// is not valid base64 are skipped and counted in bad.
func translate(sc *serverContent) (out []*live.ServerMessage, bad int) {
	if sc == nil {
		return nil, 0
	}
	var text strings.Builder
	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p.InlineData != nil {
				data, err := pcm.DecodeBase64(p.InlineData.Data)
				if err != nil {
					bad++
					continue
				}
				out = append(out, &live.ServerMessage{Audio: &live.AudioPayload{
					Data:     data,
					MIMEType: p.InlineData.MIMEType,
				}})
				continue
			}
			if p.Text != "" && !p.Thought {
				text.WriteString(p.Text)
			}
		}
	}
	tail := &live.ServerMessage{Interrupted: sc.Interrupted, TurnComplete: sc.TurnComplete}
	if sc.OutputTranscription != nil {
		tail.OutputTranscript = sc.OutputTranscription.Text
	}
	tail.OutputTranscript += text.String()
	if sc.InputTranscription != nil {
		tail.InputTranscript = sc.InputTranscription.Text
	}
	if tail.Interrupted || tail.TurnComplete || tail.OutputTranscript != "" || tail.InputTranscript != "" {
		out = append(out, tail)
	}
	return out, bad
}
