package lnurlbridge

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
)

// ErrNotInteractive is returned by LnInteractive for every operation that
// needs a live node.
var ErrNotInteractive = errors.New("operation not supported by interactive " +
	"node, configure lnd")

// LnInteractive is a node that only knows its pubkey. Messages are signed by
// the operator, who pastes the zbase32 signature produced by their node
// (lncli signmessage). This is enough for the auth flow.
type LnInteractive struct {
	pubKey string
	in     *bufio.Reader
	out    io.Writer
}

func NewLnInteractive(pubKey string, in io.Reader,
	out io.Writer) *LnInteractive {

	return &LnInteractive{
		pubKey: pubKey,
		in:     bufio.NewReader(in),
		out:    out,
	}
}

func (l *LnInteractive) Close() error {
	return nil
}

func (l *LnInteractive) GetIdentity(_ context.Context) (NodeInfoResponse,
	error) {

	return NodeInfoResponse{PubKey: l.pubKey}, nil
}

func (l *LnInteractive) ConnectPeer(context.Context, *btcec.PublicKey, string,
	uint16) error {

	return ErrNotInteractive
}

func (l *LnInteractive) FundChannel(context.Context, *btcec.PublicKey,
	btcutil.Amount, bool) (*FundChannelResult, error) {

	return nil, ErrNotInteractive
}

func (l *LnInteractive) DecodeInvoice(context.Context,
	string) (*DecodedInvoice, error) {

	return nil, ErrNotInteractive
}

func (l *LnInteractive) CreateInvoice(context.Context,
	InvoiceRequest) (string, error) {

	return "", ErrNotInteractive
}

func (l *LnInteractive) WaitInvoice(context.Context,
	string) (*InvoiceSettlement, error) {

	return nil, ErrNotInteractive
}

func (l *LnInteractive) PayInvoice(context.Context,
	PaymentRequest) (*PaymentResult, error) {

	return nil, ErrNotInteractive
}

func (l *LnInteractive) SignMessage(_ context.Context,
	msg []byte) (*MessageSignature, error) {

	// Printing the message to be signed and reading the signature back.
	fmt.Fprintf(l.out, "\nPlease sign the following message with your "+
		"Lightning node:\n%s\n\nEnter the signature here: ", msg)

	line, err := l.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return nil, fmt.Errorf("reading signature: %w", err)
	}
	fmt.Fprintln(l.out)

	sig, err := ParseZbaseSignature(strings.TrimSpace(line))
	if err != nil {
		return nil, fmt.Errorf("invalid signature: %w", err)
	}

	pub, err := ParsePubKey(l.pubKey)
	if err != nil {
		return nil, fmt.Errorf("invalid configured pubkey: %w", err)
	}

	// Catch a signature of the wrong node before the service does.
	if ok, err := VerifyZbaseMessage(msg, sig, pub); err != nil || !ok {
		return nil, fmt.Errorf("signature was not made by %s", l.pubKey)
	}

	return NewMessageSignature(sig)
}

func (l *LnInteractive) VerifyMessage(_ context.Context, msg []byte,
	sig ZbaseSignature, pub *btcec.PublicKey) (bool, error) {

	return VerifyZbaseMessage(msg, sig, pub)
}

var _ LightningNode = (*LnInteractive)(nil)
