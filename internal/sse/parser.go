// Package sse decodes a Gemini Code Assist streamGenerateContent response
// body — a text/event-stream of JSON-encoded envelopes — into a sequence
// of geminiapi.StreamEnvelope values.
package sse

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/kairos-labs/gca-proxy/internal/geminiapi"
)

const dataPrefix = "data: "

// Parser decodes one SSE byte stream into envelopes, one Next() call at a
// time. It is not safe for concurrent use and is not restartable.
type Parser struct {
	scanner     *bufio.Scanner
	accumulator strings.Builder
	log         *logrus.Entry
	done        bool

	// RawHook, if set, observes each envelope's raw JSON text before it
	// is parsed (the thinking-trace diagnostics hook into this).
	RawHook func(raw []byte)
}

// New wraps r as a lazy envelope source. log may be nil, in which case a
// discard-level entry is used for parse-failure logging.
func New(r io.Reader, log *logrus.Entry) *Parser {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	if log == nil {
		logger := logrus.New()
		logger.SetOutput(io.Discard)
		log = logrus.NewEntry(logger)
	}
	return &Parser{scanner: scanner, log: log}
}

// Next returns the next decoded envelope. ok is false once the stream is
// exhausted; err is non-nil only on an underlying I/O failure (a
// malformed envelope is logged and skipped, not surfaced here).
func (p *Parser) Next() (geminiapi.StreamEnvelope, bool, error) {
	for !p.done {
		if !p.scanner.Scan() {
			p.done = true
			if err := p.scanner.Err(); err != nil {
				return geminiapi.StreamEnvelope{}, false, err
			}
			if env, ok := p.flush(); ok {
				return env, true, nil
			}
			return geminiapi.StreamEnvelope{}, false, nil
		}

		line := p.scanner.Text()
		switch {
		case line == "":
			if env, ok := p.flush(); ok {
				return env, true, nil
			}
			// Blank line with an empty accumulator: keep reading.
		case strings.HasPrefix(line, dataPrefix):
			p.accumulator.WriteString(strings.TrimPrefix(line, dataPrefix))
		case strings.HasPrefix(line, "event:"):
			// Event-type lines (e.g. keep-alive pings) carry no payload
			// for this wire format; ignored.
		default:
			// Comments, id: lines, etc. are ignored.
		}
	}
	return geminiapi.StreamEnvelope{}, false, nil
}

// flush parses the accumulator as one JSON envelope if non-empty,
// resetting it regardless of success.
func (p *Parser) flush() (geminiapi.StreamEnvelope, bool) {
	raw := p.accumulator.String()
	p.accumulator.Reset()
	if strings.TrimSpace(raw) == "" {
		return geminiapi.StreamEnvelope{}, false
	}
	if raw == "[DONE]" {
		return geminiapi.StreamEnvelope{}, false
	}
	if p.RawHook != nil {
		p.RawHook([]byte(raw))
	}

	var env geminiapi.StreamEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		p.log.WithError(err).WithField("payload_len", len(raw)).Warn("sse: dropping malformed envelope")
		return geminiapi.StreamEnvelope{}, false
	}
	return env, true
}

// ExtractUsage is a defensive fast-path accessor that reads usage
// metadata without decoding the full envelope struct (the same
// gjson-based probing the upstream client uses for onboarding responses).
func ExtractUsage(raw []byte) (prompt, completion, thoughts int, ok bool) {
	result := gjson.GetBytes(raw, "response.usageMetadata")
	if !result.Exists() {
		return 0, 0, 0, false
	}
	return int(result.Get("promptTokenCount").Int()),
		int(result.Get("candidatesTokenCount").Int()),
		int(result.Get("thoughtsTokenCount").Int()),
		true
}
