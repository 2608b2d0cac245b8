package lnurlbridge

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const reasonInvalidAuthK1 = "Invalid or expired k1"

func (s *Server) authChallenge(c *gin.Context) {
	k1, ok := s.issueToken(c, flowAuth)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, AuthChallengeResponse{K1: string(k1)})
}

func (s *Server) authResponse(c *gin.Context) {
	var q authResponseQuery
	if !bindQuery(c, &q) {
		return
	}

	if !s.consumeToken(c, flowAuth, q.K1, reasonInvalidAuthK1) {
		return
	}

	pub, err := ParsePubKey(q.PubKey)
	if err != nil {
		c.JSON(http.StatusBadRequest,
			errorResponse("Invalid pubkey: %v", err))
		return
	}

	// Only the zbase32 encoding is accepted, DER-hex fails here.
	sig, err := ParseZbaseSignature(q.Signature)
	if err != nil {
		c.JSON(http.StatusBadRequest,
			errorResponse("Invalid signature: %v", err))
		return
	}

	ctx, cancel := s.nodeContext(c)
	defer cancel()

	verified, err := s.cfg.Node.VerifyMessage(ctx, []byte(q.K1), sig, pub)
	switch {
	case err != nil:
		log.Errorf("Verifying auth signature of %s: %v", q.PubKey, err)
		c.JSON(http.StatusInternalServerError,
			errorResponse("Verification error: %v", err))
		return

	case !verified:
		c.JSON(http.StatusUnauthorized,
			errorResponse("Signature verification failed"))
		return
	}

	ev := LoginEvent{
		PubKey: q.PubKey,
		Event:  EventLoggedIn,
		At:     s.cfg.Clock.Now(),
	}
	if err := s.cfg.Publisher.PublishLogin(ctx, ev); err != nil {
		log.Warnf("Publishing login of %s: %v", q.PubKey, err)
	}

	log.Infof("Authenticated %s", q.PubKey)

	c.JSON(http.StatusOK, AuthResponse{
		StatusResponse: StatusResponse{Status: StatusOK},
		Event:          EventLoggedIn,
	})
}
