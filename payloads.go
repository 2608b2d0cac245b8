package lnurlbridge

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/go-playground/validator/v10"
	"github.com/lightningnetwork/lnd/lnwire"
)

var validate = validator.New()

const (
	TagChannelRequest  = "channelRequest"
	TagWithdrawRequest = "withdrawRequest"

	StatusOK    = "OK"
	StatusError = "ERROR"

	EventLoggedIn = "LOGGEDIN"

	DefaultWithdrawDescription = "Withdrawal from service"

	// ChannelFundingAmount is the size of every channel opened through
	// the channel flow.
	ChannelFundingAmount btcutil.Amount = 100_000
)

// WithdrawBounds are both advertised and enforced.
var WithdrawBounds = AmountBounds{Min: 1_000, Max: 1_000_000}

// AmountBounds is an inclusive msat range.
type AmountBounds struct {
	Min lnwire.MilliSatoshi
	Max lnwire.MilliSatoshi
}

// Check returns the rejection reason for amt, or "" if it is in range.
func (b AmountBounds) Check(amt lnwire.MilliSatoshi) string {
	switch {
	case amt < b.Min:
		return fmt.Sprintf("Amount %d msat below minimum %d msat",
			uint64(amt), uint64(b.Min))

	case amt > b.Max:
		return fmt.Sprintf("Amount %d msat exceeds maximum %d msat",
			uint64(amt), uint64(b.Max))
	}

	return ""
}

type StatusResponse struct {
	Status string `json:"status" validate:"required,oneof=OK ERROR"`
	Reason string `json:"reason,omitempty"`
}

func errorResponse(format string, args ...any) StatusResponse {
	return StatusResponse{
		Status: StatusError,
		Reason: fmt.Sprintf(format, args...),
	}
}

type ChannelRequestResponse struct {
	URI      string `json:"uri" validate:"required"`
	Callback string `json:"callback" validate:"required,url"`
	K1       string `json:"k1" validate:"required,hexadecimal"`
	Tag      string `json:"tag" validate:"eq=channelRequest"`
}

type OpenChannelResponse struct {
	StatusResponse
	*FundChannelResult
}

type WithdrawRequestResponse struct {
	Callback           string `json:"callback" validate:"required,url"`
	K1                 string `json:"k1" validate:"required,hexadecimal"`
	Tag                string `json:"tag" validate:"eq=withdrawRequest"`
	DefaultDescription string `json:"defaultDescription"`
	MinWithdrawable    uint64 `json:"minWithdrawable"`
	MaxWithdrawable    uint64 `json:"maxWithdrawable" validate:"gtefield=MinWithdrawable,gt=0"`
}

type AuthChallengeResponse struct {
	K1 string `json:"k1" validate:"required,hexadecimal"`
}

type AuthResponse struct {
	StatusResponse
	Event string `json:"event,omitempty"`
}

// Query parameters of the callbacks.

type openChannelQuery struct {
	RemoteID string `form:"remoteid" binding:"required"`
	K1       string `form:"k1" binding:"required"`
	Private  string `form:"private"`
}

type withdrawQuery struct {
	K1 string `form:"k1" binding:"required"`
	PR string `form:"pr" binding:"required"`
}

type authResponseQuery struct {
	K1        string `form:"k1" binding:"required"`
	Signature string `form:"signature" binding:"required"`
	PubKey    string `form:"pubkey" binding:"required"`
}
