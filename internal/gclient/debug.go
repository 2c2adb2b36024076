package gclient

import (
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// debugThinking enables verbose tracing of thinking-enabled model traffic
// for diagnosing a missing or malformed thinkingConfig round-trip.
// Enable with DEBUG_THINKING=1 (adapted from a Claude-specific debug
// tracer to this proxy's single Gemini upstream).
var debugThinking = os.Getenv("DEBUG_THINKING") == "1"

// thinkingTraceLine is one thinking-trace log line, recorded off the hot
// path: a streaming response can carry hundreds of envelopes per request,
// and this tracer must not add logging latency to each one.
type thinkingTraceLine struct {
	log     *logrus.Entry
	model   string
	level   logrus.Level
	message string
}

// thinkingTracer is a small single-worker async log sink: logThinkingRequest
// and LogThinkingEnvelope enqueue a line and return immediately, and a
// background goroutine drains the queue into logrus so neither function
// ever blocks a request on log I/O.
type thinkingTracer struct {
	queue chan thinkingTraceLine
}

func newThinkingTracer() *thinkingTracer {
	t := &thinkingTracer{queue: make(chan thinkingTraceLine, 256)}
	go t.run()
	return t
}

func (t *thinkingTracer) run() {
	for line := range t.queue {
		entry := line.log.WithField("model", line.model)
		if line.level == logrus.WarnLevel {
			entry.Warn(line.message)
		} else {
			entry.Debug(line.message)
		}
	}
}

// record enqueues line, dropping it instead of blocking if the queue is
// saturated — a lost debug line is preferable to stalling the hot path.
func (t *thinkingTracer) record(line thinkingTraceLine) {
	select {
	case t.queue <- line:
	default:
	}
}

var (
	tracerOnce sync.Once
	tracer     *thinkingTracer
)

func traceRecorder() *thinkingTracer {
	tracerOnce.Do(func() { tracer = newThinkingTracer() })
	return tracer
}

// logThinkingRequest logs an outbound request payload when it targets a
// thinking-capable model, flagging whether thinkingConfig made it onto
// the wire.
func logThinkingRequest(log *logrus.Entry, payload []byte, model string) {
	if !debugThinking {
		return
	}
	if strings.Contains(string(payload), "thinkingConfig") {
		traceRecorder().record(thinkingTraceLine{log, model, logrus.DebugLevel, "thinking_trace: request carries thinkingConfig"})
	} else {
		traceRecorder().record(thinkingTraceLine{log, model, logrus.WarnLevel, "thinking_trace: request missing thinkingConfig"})
	}
}

// LogThinkingEnvelope logs a raw upstream SSE payload when it mentions
// thought content, for diagnosing thought-part loss. Exported so the API
// layer can wire it into the SSE parser's raw-line hook.
func LogThinkingEnvelope(log *logrus.Entry, raw []byte, model string) {
	if !debugThinking {
		return
	}
	s := string(raw)
	if strings.Contains(s, "\"thought\"") || strings.Contains(s, "thoughtSignature") {
		traceRecorder().record(thinkingTraceLine{log, model, logrus.DebugLevel, "thinking_trace: envelope carries thought content"})
	}
}
