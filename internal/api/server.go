// Package api is the thin gin wrapper exposing the caller-facing
// endpoints: POST /v1/chat/completions and GET /healthz. All
// translation, transport, and fallback logic lives in
// internal/translator, internal/gclient, internal/stream and
// internal/fallback; this package only wires HTTP onto them.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/kairos-labs/gca-proxy/internal/buildinfo"
	"github.com/kairos-labs/gca-proxy/internal/config"
	"github.com/kairos-labs/gca-proxy/internal/fallback"
	"github.com/kairos-labs/gca-proxy/internal/gclient"
	"github.com/kairos-labs/gca-proxy/internal/sigcache"
	"github.com/kairos-labs/gca-proxy/internal/translator"
)

// Server holds the dependencies the chat-completions handler delegates
// to: request translator, upstream client, signature cache, fallback
// coordinator and the live config store. The SSE parser and streaming
// transformer are built per request.
type Server struct {
	engine      *gin.Engine
	translator  *translator.Translator
	client      *gclient.Client
	cache       *sigcache.Cache
	coordinator *fallback.Coordinator
	config      *config.Store
	log         *logrus.Entry
}

// New builds a Server with routes registered. cfgStore is read on every
// request via resolveProject, so a hot config reload's project id takes
// effect without restarting the server; a store whose current
// GoogleCloudProject is empty falls back to the onboarding handshake.
func New(client *gclient.Client, cache *sigcache.Cache, coordinator *fallback.Coordinator, cfgStore *config.Store, log *logrus.Entry) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine:      engine,
		translator:  translator.New(cache),
		client:      client,
		cache:       cache,
		coordinator: coordinator,
		config:      cfgStore,
		log:         log,
	}

	engine.POST("/v1/chat/completions", s.handleChatCompletions)
	engine.GET("/healthz", s.handleHealthz)

	return s
}

// Handler returns the underlying http.Handler for use with any
// net/http.Server (the routing collaborator owns listener lifecycle).
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": buildinfo.Version})
}
