package lnurlbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/lnwire"
)

const (
	// withdrawInvoiceExpiry bounds how long the client waits for a
	// withdrawal to arrive.
	withdrawInvoiceExpiry = 10 * time.Minute

	fallbackWithdrawDescription = "LNURL withdraw"

	maxResponseSize = 1 << 20
)

// remoteIDLen is the hex length of a compressed pubkey.
const remoteIDLen = 2 * btcec.PubKeyBytesLenCompressed

type ClientConfig struct {
	Node LightningNode

	// NodeAddress is the host:port other nodes reach us at. If empty the
	// first URI reported by the node is used.
	NodeAddress string

	HTTPClient *http.Client
	Clock      clock.Clock
}

// Client drives the wallet side of the LNURL flows. Every method runs its
// steps strictly in order and stops at the first failure.
type Client struct {
	cfg ClientConfig
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}

	return &Client{cfg: cfg}
}

func (c *Client) Close() error {
	return c.cfg.Node.Close()
}

func (c *Client) GetNodeInfo(ctx context.Context) (NodeInfoResponse, error) {
	return c.cfg.Node.GetIdentity(ctx)
}

// ownURI returns pubkey@host:port of the local node.
func (c *Client) ownURI(ctx context.Context) (string, error) {
	info, err := c.cfg.Node.GetIdentity(ctx)
	if err != nil {
		return "", fmt.Errorf("getting own identity: %w", err)
	}

	switch {
	case c.cfg.NodeAddress != "":
		return info.PubKey + "@" + c.cfg.NodeAddress, nil

	case len(info.URIs) > 0:
		return info.URIs[0], nil
	}

	return info.PubKey, nil
}

// RequestChannel asks the service at baseURL to open a channel to us.
func (c *Client) RequestChannel(ctx context.Context,
	baseURL string) (*OpenChannelResponse, error) {

	uri, err := c.ownURI(ctx)
	if err != nil {
		return nil, err
	}

	var req ChannelRequestResponse
	if err := c.getJSON(ctx, endpoint(baseURL, "request-channel"), nil,
		&req); err != nil {

		return nil, err
	}
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid channel request: %w", err)
	}

	remote, err := ParseNodeURI(req.URI)
	if err != nil {
		return nil, err
	}

	log.Infof("Connecting to %s", req.URI)
	err = c.cfg.Node.ConnectPeer(ctx, remote.PubKey, remote.Host, remote.Port)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", req.URI, err)
	}

	if len(uri) < remoteIDLen {
		return nil, fmt.Errorf("own node URI %q is shorter than a pubkey",
			uri)
	}

	var resp OpenChannelResponse
	err = c.getJSON(ctx, req.Callback, url.Values{
		"remoteid": {uri[:remoteIDLen]},
		"k1":       {req.K1},
		"private":  {"0"},
	}, &resp)
	if err != nil {
		return nil, err
	}

	return &resp, nil
}

// RequestWithdraw withdraws the maximum the service offers and waits until
// our invoice is paid.
func (c *Client) RequestWithdraw(ctx context.Context,
	baseURL string) (*InvoiceSettlement, error) {

	var req WithdrawRequestResponse
	if err := c.getJSON(ctx, endpoint(baseURL, "request-withdraw"), nil,
		&req); err != nil {

		return nil, err
	}
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid withdraw request: %w", err)
	}

	description := req.DefaultDescription
	if description == "" {
		description = fallbackWithdrawDescription
	}

	label := fmt.Sprintf("lnurl-withdraw-%d", c.cfg.Clock.Now().UnixNano())
	invoice, err := c.cfg.Node.CreateInvoice(ctx, InvoiceRequest{
		Amount:      lnwire.MilliSatoshi(req.MaxWithdrawable),
		Label:       label,
		Description: description,
		Expiry:      withdrawInvoiceExpiry,
	})
	if err != nil {
		return nil, fmt.Errorf("creating invoice: %w", err)
	}

	var resp StatusResponse
	err = c.getJSON(ctx, req.Callback, url.Values{
		"k1": {req.K1},
		"pr": {invoice},
	}, &resp)
	if err != nil {
		return nil, err
	}

	log.Infof("Withdrawal of %d msat accepted, waiting for payment of %s",
		req.MaxWithdrawable, label)

	settlement, err := c.cfg.Node.WaitInvoice(ctx, label)
	if err != nil {
		return nil, fmt.Errorf("waiting for invoice %s: %w", label, err)
	}

	return settlement, nil
}

// Auth proves ownership of the node key to the service at baseURL.
func (c *Client) Auth(ctx context.Context, baseURL string) (*AuthResponse,
	error) {

	info, err := c.cfg.Node.GetIdentity(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting own identity: %w", err)
	}

	var challenge AuthChallengeResponse
	if err := c.getJSON(ctx, endpoint(baseURL, "auth-challenge"), nil,
		&challenge); err != nil {

		return nil, err
	}
	if err := validate.Struct(challenge); err != nil {
		return nil, fmt.Errorf("invalid auth challenge: %w", err)
	}

	sig, err := c.cfg.Node.SignMessage(ctx, []byte(challenge.K1))
	if err != nil {
		return nil, fmt.Errorf("signing challenge: %w", err)
	}

	var resp AuthResponse
	err = c.getJSON(ctx, endpoint(baseURL, "auth-response"), url.Values{
		"k1":        {challenge.K1},
		"signature": {string(sig.Zbase)},
		"pubkey":    {info.PubKey},
	}, &resp)
	if err != nil {
		return nil, err
	}

	return &resp, nil
}

func endpoint(baseURL, path string) string {
	return strings.TrimRight(baseURL, "/") + "/" + path
}

// getJSON performs a GET and decodes the body into v. Responses carrying
// status ERROR are returned as *RemoteStatusError.
func (c *Client) getJSON(ctx context.Context, rawURL string, query url.Values,
	v any) error {

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parsing url %q: %w", rawURL, err)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vals := range query {
			q[k] = vals
		}
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, u.String(), nil,
	)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	log.Debugf("GET %s", u.Redacted())

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", u.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("reading %s response: %w", u.Path, err)
	}

	var status StatusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		return fmt.Errorf("decoding %s response (%d): %w", u.Path,
			resp.StatusCode, err)
	}
	if status.Status == StatusError || resp.StatusCode != http.StatusOK {
		return &RemoteStatusError{
			Endpoint: u.Path,
			Code:     resp.StatusCode,
			Reason:   status.Reason,
		}
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decoding %s response: %w", u.Path, err)
	}

	return nil
}
