package lnurlbridge

import (
	"context"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
)

// SerialNode wraps a LightningNode so that at most one call reaches the node
// at a time. Handlers and payment workers share one SerialNode.
type SerialNode struct {
	mu   sync.Mutex
	node LightningNode
}

func NewSerialNode(node LightningNode) *SerialNode {
	return &SerialNode{node: node}
}

func (s *SerialNode) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.node.Close()
}

func (s *SerialNode) GetIdentity(ctx context.Context) (NodeInfoResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.node.GetIdentity(ctx)
}

func (s *SerialNode) ConnectPeer(ctx context.Context, pub *btcec.PublicKey,
	host string, port uint16) error {

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.node.ConnectPeer(ctx, pub, host, port)
}

func (s *SerialNode) FundChannel(ctx context.Context, peer *btcec.PublicKey,
	amt btcutil.Amount, announce bool) (*FundChannelResult, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.node.FundChannel(ctx, peer, amt, announce)
}

func (s *SerialNode) DecodeInvoice(ctx context.Context,
	invoice string) (*DecodedInvoice, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.node.DecodeInvoice(ctx, invoice)
}

func (s *SerialNode) CreateInvoice(ctx context.Context,
	req InvoiceRequest) (string, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.node.CreateInvoice(ctx, req)
}

func (s *SerialNode) WaitInvoice(ctx context.Context,
	label string) (*InvoiceSettlement, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.node.WaitInvoice(ctx, label)
}

func (s *SerialNode) PayInvoice(ctx context.Context,
	req PaymentRequest) (*PaymentResult, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.node.PayInvoice(ctx, req)
}

func (s *SerialNode) SignMessage(ctx context.Context,
	msg []byte) (*MessageSignature, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.node.SignMessage(ctx, msg)
}

func (s *SerialNode) VerifyMessage(ctx context.Context, msg []byte,
	sig ZbaseSignature, pub *btcec.PublicKey) (bool, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.node.VerifyMessage(ctx, msg, sig, pub)
}

var _ LightningNode = (*SerialNode)(nil)
