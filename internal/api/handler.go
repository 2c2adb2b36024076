package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kairos-labs/gca-proxy/internal/gclient"
	"github.com/kairos-labs/gca-proxy/internal/geminiapi"
	"github.com/kairos-labs/gca-proxy/internal/openai"
	"github.com/kairos-labs/gca-proxy/internal/sse"
	"github.com/kairos-labs/gca-proxy/internal/stream"
	"github.com/kairos-labs/gca-proxy/internal/util"
)

// keepAliveInterval is how often an SSE comment line (": ping") is written
// while waiting on the first byte of the upstream response, matching
// the dvcrn proxy's keep-alive pinger so intermediary proxies don't
// time out an idle connection.
const keepAliveInterval = 10 * time.Second

func (s *Server) handleChatCompletions(c *gin.Context) {
	var req openai.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}

	project, err := s.resolveProject(c.Request.Context())
	if err != nil {
		s.log.WithError(err).Error("project onboarding failed")
		writeError(c, http.StatusInternalServerError, "api_error", "could not resolve a Code Assist project")
		return
	}

	greq := s.translator.Translate(project, &req)

	if req.Stream {
		s.handleStream(c, greq)
		return
	}
	s.handleNonStream(c, &req, greq)
}

func (s *Server) resolveProject(ctx context.Context) (string, error) {
	if project := s.config.Get().GoogleCloudProject; project != "" {
		return project, nil
	}
	return s.client.ResolveProject(ctx)
}

func (s *Server) handleNonStream(c *gin.Context, req *openai.ChatRequest, greq *geminiapi.Request) {
	ctx := c.Request.Context()
	model := greq.Model
	streamID := "chatcmpl-" + uuid.NewString()
	created := time.Now().Unix()

	result, err := s.coordinator.RunNonStreaming(model, func(attemptModel string) ([]byte, error) {
		greq.Model = attemptModel
		return s.client.CallEndpoint(ctx, "generateContent", greq)
	})
	if err != nil {
		writeUpstreamError(c, err)
		return
	}

	var envelope geminiapi.StreamEnvelope
	if err := sonic.Unmarshal(result.Response, &envelope); err != nil {
		s.log.WithError(err).Error("failed to decode upstream response")
		writeError(c, http.StatusBadGateway, "api_error", "malformed upstream response")
		return
	}

	resp := assembleResponse(streamID, result.Model, created, envelope, s.cache)
	if result.Notice != "" {
		prependNotice(&resp, result.Notice)
	}
	if resp.Usage == nil && len(resp.Choices) > 0 && resp.Choices[0].Message != nil {
		promptTokens, totalTokens := util.EstimateTokens(result.Model, req, resp.Choices[0].Message.Content)
		resp.Usage = &openai.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: totalTokens - promptTokens,
			TotalTokens:      totalTokens,
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleStream(c *gin.Context, greq *geminiapi.Request) {
	ctx := c.Request.Context()
	model := greq.Model
	streamID := "chatcmpl-" + uuid.NewString()
	created := time.Now().Unix()

	noticeSent := false
	body, err := s.openStreamGuarded(ctx, model, greq)
	if err != nil {
		attempt, eligible := s.coordinator.DecideStreamFallback(model, err)
		if !eligible {
			writeUpstreamError(c, err)
			return
		}
		model = attempt.Model
		greq.Model = model
		body, err = s.openStreamGuarded(ctx, model, greq)
		if err != nil {
			writeUpstreamError(c, err)
			return
		}
		noticeSent = s.writeSSEPreamble(c, attempt.Notice, streamID, model, created)
	} else {
		s.writeSSEHeaders(c)
	}
	defer body.Close()

	flusher, _ := c.Writer.(http.Flusher)
	w := c.Writer

	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	go s.pingLoop(pingCtx, w, flusher)

	log := s.log.WithField("stream_id", streamID)
	parser := sse.New(body, log)
	parser.RawHook = func(raw []byte) { gclient.LogThinkingEnvelope(log, raw, model) }
	transformer := stream.New(streamID, model, created, s.cache)
	if noticeSent {
		transformer.SkipRoleFrame()
	}

	first := true
	for {
		envelope, ok, err := parser.Next()
		if first {
			cancelPing()
			first = false
		}
		if err != nil {
			log.WithError(err).Warn("sse stream ended with error")
			break
		}
		if !ok {
			break
		}
		for _, chunk := range transformer.ProcessEnvelope(envelope) {
			if writeErr := writeChunk(w, chunk); writeErr != nil {
				return
			}
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	writeChunk(w, transformer.Finish())
	io.WriteString(w, "data: [DONE]\n\n")
	if flusher != nil {
		flusher.Flush()
	}
}

func (s *Server) openStream(ctx context.Context, greq *geminiapi.Request) (io.ReadCloser, error) {
	return s.client.StreamEndpoint(ctx, "streamGenerateContent", greq)
}

// openStreamGuarded runs openStream through model's circuit breaker, so a
// model that is already failing fast-fails into the fallback decision
// below instead of letting every request pay the latency of a doomed
// upstream round trip.
func (s *Server) openStreamGuarded(ctx context.Context, model string, greq *geminiapi.Request) (io.ReadCloser, error) {
	var body io.ReadCloser
	err := s.coordinator.Execute(model, func() error {
		var openErr error
		body, openErr = s.openStream(ctx, greq)
		return openErr
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (s *Server) writeSSEHeaders(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	if flusher, ok := c.Writer.(http.Flusher); ok {
		flusher.Flush()
	}
}

// writeSSEPreamble sends the SSE headers plus a single synthetic chunk
// carrying the fallback notice as visible content, before the re-driven
// stream's own chunks follow. Reports whether it wrote a role-bearing
// chunk, so the caller's transformer knows not to stamp delta.role again
// on its own first chunk.
func (s *Server) writeSSEPreamble(c *gin.Context, notice, streamID, model string, created int64) bool {
	s.writeSSEHeaders(c)
	if notice == "" {
		return false
	}
	content := notice
	chunk := openai.ChunkResponse{
		ID:      streamID,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   model,
		Choices: []openai.Choice{{
			Index: 0,
			Delta: &openai.Delta{Role: "assistant", Content: &content},
		}},
	}
	writeChunk(c.Writer, chunk)
	if flusher, ok := c.Writer.(http.Flusher); ok {
		flusher.Flush()
	}
	return true
}

func (s *Server) pingLoop(ctx context.Context, w io.Writer, flusher http.Flusher) {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

func writeChunk(w io.Writer, chunk openai.ChunkResponse) error {
	data, err := sonic.Marshal(chunk)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

func writeUpstreamError(c *gin.Context, err error) {
	if upstreamErr, ok := err.(*gclient.UpstreamError); ok {
		writeError(c, upstreamErr.StatusCode(), "api_error", upstreamErr.Error())
		return
	}
	if _, ok := err.(*gclient.OnboardingTimeout); ok {
		writeError(c, http.StatusGatewayTimeout, "api_error", err.Error())
		return
	}
	writeError(c, http.StatusBadGateway, "api_error", err.Error())
}

func writeError(c *gin.Context, status int, errType, message string) {
	c.JSON(status, openai.ErrorBody{Error: openai.ErrorDetail{Message: message, Type: errType}})
}

func prependNotice(resp *openai.ChatResponse, notice string) {
	if len(resp.Choices) == 0 || resp.Choices[0].Message == nil {
		return
	}
	resp.Choices[0].Message.Content = notice + resp.Choices[0].Message.Content
}
