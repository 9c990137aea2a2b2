// Package live runs real-time duplex audio sessions with a Gemini Live model.
//
// A Controller owns one session at a time. Captured microphone frames are
// encoded to 16-bit PCM and queued for the remote session; model audio is
// decoded and handed to a playback.Scheduler so chunks play back to back.
//
// # State Machine
//
//	IDLE --start--> CONNECTING --open--> ACTIVE --close--> IDLE
//	                    │                   │
//	                    └──── error ────────┴──> ERROR --start/stop--> CONNECTING/IDLE
//
// Messages and interruptions keep an ACTIVE session ACTIVE. Every path out of
// CONNECTING or ACTIVE runs the same teardown.
//
// # Deferred Sends
//
// The remote handle is only known once Connect returns, so every outbound
// frame goes through a bounded FIFO queue drained by a sender goroutine that
// waits for the handle. Frames captured or sent while connecting are
// delivered in order; overflow is logged and counted.
//
// # Usage
//
//	ctrl := live.New(live.DefaultConfig(), transport, capture.NewMalgoSource(logger),
//	    live.WithLogger(logger),
//	    live.WithCallbacks(live.Callbacks{
//	        OnStateChange: func(e *live.StateChangedEvent) { fmt.Println(e.To) },
//	        OnError:       func(e *live.ErrorEvent) { fmt.Println(e.Message) },
//	    }),
//	)
//	if err := ctrl.Start(ctx, live.StartOptions{SystemInstruction: prompt}); err != nil {
//	    return err
//	}
//	defer ctrl.Stop()
//
// Transports live in the gemini (google.golang.org/genai SDK) and geminiws
// (raw websocket) subpackages.
package live
