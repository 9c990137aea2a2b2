package geminiws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/livetutor/pkg/core/live"
	"github.com/vango-go/livetutor/pkg/core/pcm"
)

type recorder struct {
	mu     sync.Mutex
	events []string
	audio  [][]byte
	text   []string
	done   chan struct{}
}

func newRecorder() *recorder { return &recorder{done: make(chan struct{})} }

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) OnOpen() { r.add("open") }
func (r *recorder) OnMessage(m *live.ServerMessage) {
	r.mu.Lock()
	if m.Audio != nil {
		r.audio = append(r.audio, m.Audio.Data)
	}
	if m.OutputTranscript != "" {
		r.text = append(r.text, m.OutputTranscript)
	}
	r.mu.Unlock()
	r.add("message")
}
func (r *recorder) OnClose(string) { r.add("close"); close(r.done) }
func (r *recorder) OnError(error)  { r.add("error"); close(r.done) }

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func waitDone(t *testing.T, r *recorder) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(3 * time.Second):
		t.Fatalf("session did not finish, events = %v", r.snapshot())
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// fakeServer plays a scripted BidiGenerateContent exchange and reports what the
// client sent.
func fakeServer(t *testing.T, script func(conn *websocket.Conn, received chan<- map[string]json.RawMessage)) (*httptest.Server, chan map[string]json.RawMessage, chan string) {
	t.Helper()
	received := make(chan map[string]json.RawMessage, 16)
	keys := make(chan string, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys <- r.URL.Query().Get("key")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		script(conn, received)
	}))
	t.Cleanup(srv.Close)
	return srv, received, keys
}

func readClient(conn *websocket.Conn, received chan<- map[string]json.RawMessage) bool {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return false
	}
	var m map[string]json.RawMessage
	if json.Unmarshal(data, &m) != nil {
		return false
	}
	received <- m
	return true
}

func TestSessionExchange(t *testing.T) {
	audio := pcm.EncodeBase64([]byte{1, 0, 2, 0})
	srv, received, keys := fakeServer(t, func(conn *websocket.Conn, received chan<- map[string]json.RawMessage) {
		if !readClient(conn, received) {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"setupComplete":{}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"serverContent":{"modelTurn":{"parts":[{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"`+audio+`"}}]}}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"serverContent":{"outputTranscription":{"text":"Hola"},"turnComplete":true}}`))
		readClient(conn, received)
		readClient(conn, received)
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
		time.Sleep(100 * time.Millisecond)
	})

	rec := newRecorder()
	tr := New(Config{Endpoint: wsURL(srv), APIKey: "secret"}, nil)
	s, err := tr.Connect(context.Background(), live.SessionConfig{
		Model:               "gemini-test",
		SystemInstruction:   "be brief",
		OutputTranscription: true,
	}, rec)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if k := <-keys; k != "secret" {
		t.Fatalf("api key = %q", k)
	}

	setup := <-received
	var sm setupMessage
	if err := json.Unmarshal(setup["setup"], &sm); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if sm.Model != "models/gemini-test" || sm.SystemInstruction == nil || sm.OutputAudioTranscription == nil {
		t.Fatalf("setup = %+v", sm)
	}
	if sm.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName != "Kore" {
		t.Fatalf("voice = %+v", sm.GenerationConfig.SpeechConfig)
	}

	if err := s.SendRealtimeInput(context.Background(), live.MediaFrame{Data: []byte{9, 9}, MIMEType: "audio/pcm;rate=16000"}); err != nil {
		t.Fatalf("SendRealtimeInput: %v", err)
	}
	if err := s.SendText(context.Background(), "Play"); err != nil {
		t.Fatalf("SendText: %v", err)
	}

	rt := <-received
	var in realtimeInputMessage
	if err := json.Unmarshal(rt["realtimeInput"], &in); err != nil || in.Audio == nil {
		t.Fatalf("realtimeInput = %s (%v)", rt["realtimeInput"], err)
	}
	if data, _ := pcm.DecodeBase64(in.Audio.Data); string(data) != string([]byte{9, 9}) {
		t.Fatalf("audio data = %v", data)
	}
	cc := <-received
	var turn clientContentMessage
	if err := json.Unmarshal(cc["clientContent"], &turn); err != nil {
		t.Fatalf("clientContent: %v", err)
	}
	if !turn.TurnComplete || turn.Turns[0].Parts[0].Text != "Play" {
		t.Fatalf("clientContent = %+v", turn)
	}

	waitDone(t, rec)
	got := rec.snapshot()
	want := []string{"open", "message", "message", "close"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("events = %v, want %v", got, want)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.audio) != 1 || string(rec.audio[0]) != string([]byte{1, 0, 2, 0}) {
		t.Fatalf("audio = %v", rec.audio)
	}
	if len(rec.text) != 1 || rec.text[0] != "Hola" {
		t.Fatalf("text = %v", rec.text)
	}
}

func TestServerErrorIsReported(t *testing.T) {
	srv, received, _ := fakeServer(t, func(conn *websocket.Conn, received chan<- map[string]json.RawMessage) {
		readClient(conn, received)
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":{"code":400,"status":"INVALID_ARGUMENT","message":"bad model"}}`))
		time.Sleep(100 * time.Millisecond)
	})
	rec := newRecorder()
	if _, err := New(Config{Endpoint: wsURL(srv)}, nil).Connect(context.Background(), live.SessionConfig{Model: "x"}, rec); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	<-received
	waitDone(t, rec)
	if got := rec.snapshot(); len(got) != 1 || got[0] != "error" {
		t.Fatalf("events = %v", got)
	}
}

func TestLocalCloseReportsClose(t *testing.T) {
	srv, received, _ := fakeServer(t, func(conn *websocket.Conn, received chan<- map[string]json.RawMessage) {
		readClient(conn, received)
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"setupComplete":{}}`))
		for readClient(conn, received) {
		}
	})
	rec := newRecorder()
	s, err := New(Config{Endpoint: wsURL(srv)}, nil).Connect(context.Background(), live.SessionConfig{Model: "x"}, rec)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	<-received
	deadline := time.Now().Add(2 * time.Second)
	for len(rec.snapshot()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	_ = s.Close()
	_ = s.Close()
	waitDone(t, rec)
	if got := strings.Join(rec.snapshot(), ","); got != "open,close" {
		t.Fatalf("events = %v", got)
	}
	if err := s.SendText(context.Background(), "late"); err != live.ErrSessionClosed {
		t.Fatalf("send after close = %v", err)
	}
}

func TestTranslateSkipsInvalidAudio(t *testing.T) {
	msgs, bad := translate(&serverContent{
		ModelTurn: &content{Parts: []part{
			{InlineData: &blob{MIMEType: "audio/pcm", Data: "!!!"}},
			{InlineData: &blob{MIMEType: "audio/pcm", Data: pcm.EncodeBase64([]byte{1, 0})}},
		}},
		Interrupted: true,
	})
	if bad != 1 {
		t.Fatalf("bad = %d", bad)
	}
	if len(msgs) != 2 || msgs[0].Audio == nil || !msgs[1].Interrupted {
		t.Fatalf("msgs = %+v", msgs)
	}
}

func TestDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()
	_, err := New(Config{Endpoint: wsURL(srv)}, nil).Connect(context.Background(), live.SessionConfig{Model: "x"}, newRecorder())
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("err = %v", err)
	}
}
