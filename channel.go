package lnurlbridge

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const reasonInvalidChannelK1 = "Invalid or already used k1"

func (s *Server) requestChannel(c *gin.Context) {
	k1, ok := s.issueToken(c, flowChannel)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, ChannelRequestResponse{
		URI:      s.cfg.Identity.URI(),
		Callback: s.callbackURL("open-channel"),
		K1:       string(k1),
		Tag:      TagChannelRequest,
	})
}

func (s *Server) openChannel(c *gin.Context) {
	var q openChannelQuery
	if !bindQuery(c, &q) {
		return
	}

	// The token is burned before anything else is looked at.
	if !s.consumeToken(c, flowChannel, q.K1, reasonInvalidChannelK1) {
		return
	}

	remote, err := ParsePubKey(q.RemoteID)
	if err != nil {
		c.JSON(http.StatusBadRequest,
			errorResponse("Invalid node id: %v", err))
		return
	}

	private := false
	if q.Private != "" {
		if private, err = strconv.ParseBool(q.Private); err != nil {
			c.JSON(http.StatusBadRequest,
				errorResponse("Invalid private flag: %v", err))
			return
		}
	}

	ctx, cancel := s.nodeContext(c)
	defer cancel()

	log.Infof("Opening %v channel to %s (private=%v)",
		ChannelFundingAmount, q.RemoteID, private)

	res, err := s.cfg.Node.FundChannel(
		ctx, remote, ChannelFundingAmount, !private,
	)
	if err != nil {
		log.Errorf("Opening channel to %s: %v", q.RemoteID, err)
		c.JSON(http.StatusInternalServerError,
			errorResponse("Failed to open channel: %v", err))
		return
	}

	c.JSON(http.StatusOK, OpenChannelResponse{
		StatusResponse:    StatusResponse{Status: StatusOK},
		FundChannelResult: res,
	})
}
