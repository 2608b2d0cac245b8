package lnurlbridge

import (
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lnd/lnwire"
)

type LnSigner interface {
	// SignMessage signs a message with the node's private key and returns
	// the signature in every encoding the node produces.
	SignMessage(ctx context.Context, msg []byte) (*MessageSignature, error)
}

type LnVerifier interface {
	// VerifyMessage reports whether sig is a valid node signature over msg
	// made by pub. Only the zbase32 encoding is accepted.
	VerifyMessage(ctx context.Context, msg []byte, sig ZbaseSignature,
		pub *btcec.PublicKey) (bool, error)
}

type LightningNode interface {
	// Close closes the connection to the Lightning node.
	Close() error

	// GetIdentity returns the pubkey and the advertised addresses of the
	// connected node.
	GetIdentity(ctx context.Context) (NodeInfoResponse, error)

	// ConnectPeer connects to a remote node. Being connected already is
	// not an error.
	ConnectPeer(ctx context.Context, pub *btcec.PublicKey, host string,
		port uint16) error

	// FundChannel opens a channel of amt to an already connected peer.
	FundChannel(ctx context.Context, peer *btcec.PublicKey,
		amt btcutil.Amount, announce bool) (*FundChannelResult, error)

	// DecodeInvoice parses a BOLT-11 payment request.
	DecodeInvoice(ctx context.Context, invoice string) (*DecodedInvoice, error)

	// CreateInvoice adds an invoice and remembers it under req.Label.
	CreateInvoice(ctx context.Context, req InvoiceRequest) (string, error)

	// WaitInvoice blocks until the invoice created under label is paid.
	WaitInvoice(ctx context.Context, label string) (*InvoiceSettlement, error)

	// PayInvoice pays a BOLT-11 invoice and blocks until the payment
	// reached a final state.
	PayInvoice(ctx context.Context, req PaymentRequest) (*PaymentResult, error)

	LnSigner
	LnVerifier
}

type NodeInfoResponse struct {
	PubKey string   `json:"pubkey"`
	URIs   []string `json:"uris"`
}

type FundChannelResult struct {
	MinDepth  uint32 `json:"mindepth"`
	ChannelID string `json:"channel_id"`
	OutNum    uint32 `json:"outnum"`
	Tx        string `json:"tx"`
	TxID      string `json:"txid"`
}

type DecodedInvoice struct {
	PaymentHash string `json:"payment_hash"`
	Destination string `json:"destination"`

	// AmountMsat is nil for invoices without an amount.
	AmountMsat *lnwire.MilliSatoshi `json:"amount_msat,omitempty"`
}

type InvoiceRequest struct {
	Amount      lnwire.MilliSatoshi
	Label       string
	Description string
	Expiry      time.Duration
}

type InvoiceSettlement struct {
	Label      string              `json:"label"`
	AmountPaid lnwire.MilliSatoshi `json:"amount_paid_msat"`
	SettledAt  time.Time           `json:"settled_at"`
}

type PaymentRequest struct {
	Invoice  string
	FeeLimit lnwire.MilliSatoshi
	Timeout  time.Duration
}

type PaymentResult struct {
	PaymentHash string              `json:"payment_hash"`
	Preimage    string              `json:"preimage"`
	Amount      lnwire.MilliSatoshi `json:"amount_msat"`
	Fee         lnwire.MilliSatoshi `json:"fee_msat"`
}

// NodeIdentity is the identity a server advertises to wallets. It is
// resolved once at startup and never changes afterwards.
type NodeIdentity struct {
	PubKey *btcec.PublicKey
	Host   string
	Port   uint16
}

// PubKeyHex returns the compressed pubkey as hex.
func (n NodeIdentity) PubKeyHex() string {
	return hex.EncodeToString(n.PubKey.SerializeCompressed())
}

// URI renders the identity as pubkey@host:port.
func (n NodeIdentity) URI() string {
	return n.PubKeyHex() + "@" + net.JoinHostPort(
		n.Host, strconv.Itoa(int(n.Port)),
	)
}

// ResolveIdentity builds the identity of node. If address is empty the first
// URI the node advertises is used.
func ResolveIdentity(ctx context.Context, node LightningNode,
	address string) (NodeIdentity, error) {

	info, err := node.GetIdentity(ctx)
	if err != nil {
		return NodeIdentity{}, fmt.Errorf("getting node identity: %w", err)
	}

	pub, err := ParsePubKey(info.PubKey)
	if err != nil {
		return NodeIdentity{}, fmt.Errorf("invalid node pubkey: %w", err)
	}

	if address != "" {
		host, port, err := ParseHostPort(address)
		if err != nil {
			return NodeIdentity{}, fmt.Errorf("invalid node address: "+
				"%w", err)
		}
		return NodeIdentity{PubKey: pub, Host: host, Port: port}, nil
	}

	if len(info.URIs) == 0 {
		return NodeIdentity{}, fmt.Errorf("node %s advertises no "+
			"address, configure one", info.PubKey)
	}

	identity, err := ParseNodeURI(info.URIs[0])
	if err != nil {
		return NodeIdentity{}, err
	}
	if !identity.PubKey.IsEqual(pub) {
		return NodeIdentity{}, fmt.Errorf("node URI %s does not match "+
			"pubkey %s", info.URIs[0], info.PubKey)
	}

	return identity, nil
}

// ParsePubKey parses a hex encoded compressed or uncompressed pubkey.
func ParsePubKey(s string) (*btcec.PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding hex: %w", err)
	}

	return btcec.ParsePubKey(b)
}

// ParseNodeURI parses a pubkey@host:port node URI.
func ParseNodeURI(uri string) (NodeIdentity, error) {
	pub, addr, ok := strings.Cut(uri, "@")
	if !ok || strings.Contains(addr, "@") {
		return NodeIdentity{}, fmt.Errorf("invalid node URI: %s", uri)
	}

	pubKey, err := ParsePubKey(pub)
	if err != nil {
		return NodeIdentity{}, fmt.Errorf("invalid node URI pubkey: %w", err)
	}

	host, port, err := ParseHostPort(addr)
	if err != nil {
		return NodeIdentity{}, fmt.Errorf("invalid node URI address: %w", err)
	}

	return NodeIdentity{PubKey: pubKey, Host: host, Port: port}, nil
}

// ParseHostPort splits host:port and validates the port.
func ParseHostPort(addr string) (string, uint16, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	if host == "" {
		return "", 0, fmt.Errorf("missing host in %s", addr)
	}

	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil || port == 0 {
		return "", 0, fmt.Errorf("invalid port %q", portStr)
	}

	return host, uint16(port), nil
}
