package lnurlbridge

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/stretchr/testify/require"
)

// invoiceLedger plays the role of the network: invoices created by one fake
// node can be decoded and paid by another.
type invoiceLedger struct {
	mu       sync.Mutex
	next     int
	invoices map[string]*fakeInvoice
}

type fakeInvoice struct {
	amount lnwire.MilliSatoshi
	paid   chan struct{}
	once   sync.Once
}

func newInvoiceLedger() *invoiceLedger {
	return &invoiceLedger{invoices: make(map[string]*fakeInvoice)}
}

// add creates an invoice, amount 0 means no amount.
func (l *invoiceLedger) add(amount lnwire.MilliSatoshi) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.next++
	pr := fmt.Sprintf("lnbcrt%dfake%d", uint64(amount), l.next)
	l.invoices[pr] = &fakeInvoice{amount: amount, paid: make(chan struct{})}

	return pr
}

func (l *invoiceLedger) get(pr string) (*fakeInvoice, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	inv, ok := l.invoices[pr]
	return inv, ok
}

type fundCall struct {
	peer     string
	amount   btcutil.Amount
	announce bool
}

type connectCall struct {
	peer string
	host string
	port uint16
}

type fakeNode struct {
	t      *testing.T
	key    *btcec.PrivateKey
	uris   []string
	ledger *invoiceLedger

	fundErr error
	payErr  error

	// payGate, if set, blocks payments until it is closed.
	payGate chan struct{}

	mu        sync.Mutex
	connected []connectCall
	funded    []fundCall
	payments  []PaymentRequest
	labels    map[string]string
}

func newFakeNode(t *testing.T, ledger *invoiceLedger) *fakeNode {
	t.Helper()

	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	return &fakeNode{
		t:      t,
		key:    key,
		ledger: ledger,
		labels: make(map[string]string),
	}
}

func (f *fakeNode) pubKeyHex() string {
	return hex.EncodeToString(f.key.PubKey().SerializeCompressed())
}

func (f *fakeNode) identity(host string, port uint16) NodeIdentity {
	return NodeIdentity{PubKey: f.key.PubKey(), Host: host, Port: port}
}

func (f *fakeNode) fundCalls() []fundCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]fundCall(nil), f.funded...)
}

func (f *fakeNode) connectCalls() []connectCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]connectCall(nil), f.connected...)
}

func (f *fakeNode) paymentCalls() []PaymentRequest {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]PaymentRequest(nil), f.payments...)
}

func (f *fakeNode) Close() error {
	return nil
}

func (f *fakeNode) GetIdentity(context.Context) (NodeInfoResponse, error) {
	return NodeInfoResponse{PubKey: f.pubKeyHex(), URIs: f.uris}, nil
}

func (f *fakeNode) ConnectPeer(_ context.Context, pub *btcec.PublicKey,
	host string, port uint16) error {

	f.mu.Lock()
	defer f.mu.Unlock()

	f.connected = append(f.connected, connectCall{
		peer: hex.EncodeToString(pub.SerializeCompressed()),
		host: host,
		port: port,
	})

	return nil
}

func (f *fakeNode) FundChannel(_ context.Context, peer *btcec.PublicKey,
	amt btcutil.Amount, announce bool) (*FundChannelResult, error) {

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fundErr != nil {
		return nil, f.fundErr
	}

	f.funded = append(f.funded, fundCall{
		peer:     hex.EncodeToString(peer.SerializeCompressed()),
		amount:   amt,
		announce: announce,
	})

	return &FundChannelResult{
		MinDepth:  DefaultMinDepth,
		ChannelID: "ab" + f.pubKeyHex()[2:64],
		OutNum:    1,
		Tx:        "0200000001",
		TxID:      "cd" + f.pubKeyHex()[2:64],
	}, nil
}

func (f *fakeNode) DecodeInvoice(_ context.Context,
	invoice string) (*DecodedInvoice, error) {

	inv, ok := f.ledger.get(invoice)
	if !ok {
		return nil, errors.New("invalid bech32 string")
	}

	res := &DecodedInvoice{PaymentHash: invoice}
	if inv.amount > 0 {
		amt := inv.amount
		res.AmountMsat = &amt
	}

	return res, nil
}

func (f *fakeNode) CreateInvoice(_ context.Context,
	req InvoiceRequest) (string, error) {

	pr := f.ledger.add(req.Amount)

	f.mu.Lock()
	f.labels[req.Label] = pr
	f.mu.Unlock()

	return pr, nil
}

func (f *fakeNode) WaitInvoice(ctx context.Context,
	label string) (*InvoiceSettlement, error) {

	f.mu.Lock()
	pr, ok := f.labels[label]
	f.mu.Unlock()
	if !ok {
		return nil, ErrInvoiceNotFound
	}

	inv, _ := f.ledger.get(pr)

	select {
	case <-inv.paid:
		return &InvoiceSettlement{
			Label:      label,
			AmountPaid: inv.amount,
			SettledAt:  time.Now(),
		}, nil

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeNode) PayInvoice(ctx context.Context,
	req PaymentRequest) (*PaymentResult, error) {

	if f.payGate != nil {
		select {
		case <-f.payGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	f.payments = append(f.payments, req)
	payErr := f.payErr
	f.mu.Unlock()

	if payErr != nil {
		return nil, payErr
	}

	inv, ok := f.ledger.get(req.Invoice)
	if !ok {
		return nil, errors.New("invoice not found")
	}
	inv.once.Do(func() { close(inv.paid) })

	return &PaymentResult{
		PaymentHash: req.Invoice,
		Amount:      inv.amount,
		Fee:         1,
	}, nil
}

func (f *fakeNode) SignMessage(_ context.Context,
	msg []byte) (*MessageSignature, error) {

	return SignZbaseMessage(f.key, msg)
}

func (f *fakeNode) VerifyMessage(_ context.Context, msg []byte,
	sig ZbaseSignature, pub *btcec.PublicKey) (bool, error) {

	return VerifyZbaseMessage(msg, sig, pub)
}

var _ LightningNode = (*fakeNode)(nil)
