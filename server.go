package lnurlbridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// nodeCallTimeout bounds node calls made on behalf of a request. The
	// calls are detached from the request so a disconnecting wallet does
	// not abort work its token already paid for.
	nodeCallTimeout = 60 * time.Second

	shutdownTimeout = 10 * time.Second
)

var ginModeOnce sync.Once

type ServerConfig struct {
	// Identity is advertised in channel requests.
	Identity NodeIdentity

	// PublicURL is the externally reachable base of the callbacks.
	PublicURL string

	Node      LightningNode
	Tokens    TokenStore
	Payments  PaymentSubmitter
	Publisher EventPublisher
	Metrics   *Metrics
	Clock     clock.Clock
}

// Server serves the LNURL channel, withdraw and auth endpoints.
type Server struct {
	cfg    ServerConfig
	router *gin.Engine
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Publisher == nil {
		cfg.Publisher = noopPublisher{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}
	cfg.PublicURL = strings.TrimSuffix(cfg.PublicURL, "/")

	s := &Server{cfg: cfg}
	s.router = s.setupRouter()

	return s
}

func (s *Server) setupRouter() *gin.Engine {
	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	// LUD-02
	router.GET("/request-channel", s.requestChannel)
	router.GET("/open-channel", s.openChannel)

	// LUD-03
	router.GET("/request-withdraw", s.requestWithdraw)
	router.GET("/withdraw", s.withdraw)

	// LUD-04
	router.GET("/auth-challenge", s.authChallenge)
	router.GET("/auth-response", s.authResponse)

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
		s.cfg.Metrics.Registry(), promhttp.HandlerOpts{},
	)))

	return router
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is done and then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Infof("Listening on %s", addr)
		errChan <- srv.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("serving http: %w", err)

	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(), shutdownTimeout,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	if err := <-errChan; !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *Server) callbackURL(path string) string {
	return s.cfg.PublicURL + "/" + path
}

// nodeContext derives the context for node calls of a request.
func (s *Server) nodeContext(c *gin.Context) (context.Context,
	context.CancelFunc) {

	return context.WithTimeout(
		context.WithoutCancel(c.Request.Context()), nodeCallTimeout,
	)
}

// issueToken writes a 500 response and returns false if no token could be
// issued.
func (s *Server) issueToken(c *gin.Context, flow string) (Token, bool) {
	token, err := s.cfg.Tokens.Issue(c.Request.Context())
	if err != nil {
		log.Errorf("Issuing %s token: %v", flow, err)
		c.JSON(http.StatusInternalServerError,
			errorResponse("Failed to issue k1: %v", err))
		return "", false
	}
	s.cfg.Metrics.tokensIssued.WithLabelValues(flow).Inc()

	return token, true
}

// consumeToken writes a 400 response with reason and returns false unless the
// token was outstanding.
func (s *Server) consumeToken(c *gin.Context, flow, k1, reason string) bool {
	ok, err := s.cfg.Tokens.Consume(c.Request.Context(), Token(k1))
	if err != nil {
		log.Errorf("Consuming %s token: %v", flow, err)
		c.JSON(http.StatusInternalServerError,
			errorResponse("Failed to check k1: %v", err))
		return false
	}
	if !ok {
		s.cfg.Metrics.tokensRejected.WithLabelValues(flow).Inc()
		c.JSON(http.StatusBadRequest, errorResponse("%s", reason))
		return false
	}

	return true
}

// bindQuery writes a 400 response if the query misses required parameters.
func bindQuery(c *gin.Context, q any) bool {
	if err := c.ShouldBindQuery(q); err != nil {
		c.JSON(http.StatusBadRequest,
			errorResponse("Invalid request: %v", err))
		return false
	}

	return true
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Debugf("%s %s -> %d (%v)", c.Request.Method,
			c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
