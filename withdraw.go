package lnurlbridge

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const reasonInvalidWithdrawK1 = "Invalid or already used k1"

func (s *Server) requestWithdraw(c *gin.Context) {
	k1, ok := s.issueToken(c, flowWithdraw)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, WithdrawRequestResponse{
		Callback:           s.callbackURL("withdraw"),
		K1:                 string(k1),
		Tag:                TagWithdrawRequest,
		DefaultDescription: DefaultWithdrawDescription,
		MinWithdrawable:    uint64(WithdrawBounds.Min),
		MaxWithdrawable:    uint64(WithdrawBounds.Max),
	})
}

// withdraw accepts an invoice for payment. "OK" only means the payment was
// queued, its outcome is never reported back to the wallet.
func (s *Server) withdraw(c *gin.Context) {
	var q withdrawQuery
	if !bindQuery(c, &q) {
		return
	}

	if !s.consumeToken(c, flowWithdraw, q.K1, reasonInvalidWithdrawK1) {
		return
	}

	ctx, cancel := s.nodeContext(c)
	defer cancel()

	invoice, err := s.cfg.Node.DecodeInvoice(ctx, q.PR)
	if err != nil {
		c.JSON(http.StatusBadRequest,
			errorResponse("Invalid invoice: %v", err))
		return
	}

	if invoice.AmountMsat == nil {
		c.JSON(http.StatusBadRequest,
			errorResponse("Invoice has no amount"))
		return
	}

	amount := *invoice.AmountMsat
	if reason := WithdrawBounds.Check(amount); reason != "" {
		c.JSON(http.StatusBadRequest, errorResponse("%s", reason))
		return
	}

	job := PaymentJob{
		ID:      uuid.NewString(),
		Invoice: q.PR,
		Amount:  amount,
	}

	err = s.cfg.Payments.Submit(job)
	switch {
	case errors.Is(err, ErrQueueFull):
		log.Warnf("Rejecting withdrawal of %v: queue full", amount)
		c.JSON(http.StatusInternalServerError,
			errorResponse("Withdrawal queue is full"))
		return

	case err != nil:
		c.JSON(http.StatusInternalServerError,
			errorResponse("Failed to queue withdrawal: %v", err))
		return
	}

	log.Infof("Accepted withdrawal %s of %v to %s", job.ID, amount,
		invoice.Destination)

	c.JSON(http.StatusOK, StatusResponse{Status: StatusOK})
}
