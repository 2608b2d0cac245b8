package lnurlbridge

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lnrpc/invoicesrpc"
	"github.com/lightningnetwork/lnd/lnrpc/routerrpc"
	"github.com/lightningnetwork/lnd/lnwire"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/status"
)

// DefaultMinDepth is the confirmation depth reported for new channels when
// the adapter is not configured otherwise. It matches lnd's default for
// small channels.
const DefaultMinDepth uint32 = 3

// MacaroonCredential implements the credentials.PerRPCCredentials interface
type MacaroonCredential struct {
	MacaroonHex string
}

func (m *MacaroonCredential) GetRequestMetadata(ctx context.Context,
	uri ...string) (map[string]string, error) {

	return map[string]string{
		"macaroon": m.MacaroonHex,
	}, nil
}

func (m *MacaroonCredential) RequireTransportSecurity() bool {
	return true
}

type LND struct {
	conn     *grpc.ClientConn
	client   lnrpc.LightningClient
	router   routerrpc.RouterClient
	invoices invoicesrpc.InvoicesClient

	minDepth uint32

	mu sync.Mutex
	// payment hashes of the invoices we created, keyed by label
	labels map[string][]byte
}

// LNDConfig holds the LND node connection settings
type LNDConfig struct {
	Host         string `yaml:"host" validate:"required"`
	Port         int    `yaml:"port" validate:"required,min=1,max=65535"`
	TLSCertPath  string `yaml:"tls_cert_path" validate:"required"`
	MacaroonPath string `yaml:"macaroon_path" validate:"required"`

	// MinDepth is reported to wallets for new channels.
	MinDepth uint32 `yaml:"min_depth"`
}

func NewLND(cfg LNDConfig) (*LND, error) {
	tlsCert, err := credentials.NewClientTLSFromFile(cfg.TLSCertPath, "")
	if err != nil {
		return nil, fmt.Errorf("reading TLS cert: %w", err)
	}

	macBytes, err := os.ReadFile(cfg.MacaroonPath)
	if err != nil {
		return nil, fmt.Errorf("reading macaroon: %w", err)
	}

	conn, err := grpc.NewClient(
		net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		grpc.WithTransportCredentials(tlsCert),
		grpc.WithPerRPCCredentials(&MacaroonCredential{
			MacaroonHex: hex.EncodeToString(macBytes),
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("creating gRPC channel to LND: %w", err)
	}

	minDepth := cfg.MinDepth
	if minDepth == 0 {
		minDepth = DefaultMinDepth
	}

	return &LND{
		conn:     conn,
		client:   lnrpc.NewLightningClient(conn),
		router:   routerrpc.NewRouterClient(conn),
		invoices: invoicesrpc.NewInvoicesClient(conn),
		minDepth: minDepth,
		labels:   make(map[string][]byte),
	}, nil
}

func (l *LND) Close() error {
	return l.conn.Close()
}

func (l *LND) GetIdentity(ctx context.Context) (NodeInfoResponse, error) {
	info, err := l.client.GetInfo(ctx, &lnrpc.GetInfoRequest{})
	if err != nil {
		return NodeInfoResponse{}, fmt.Errorf("lnd getting node info: %w", err)
	}

	return NodeInfoResponse{
		PubKey: info.IdentityPubkey,
		URIs:   info.Uris,
	}, nil
}

func (l *LND) ConnectPeer(ctx context.Context, pub *btcec.PublicKey,
	host string, port uint16) error {

	_, err := l.client.ConnectPeer(ctx, &lnrpc.ConnectPeerRequest{
		Addr: &lnrpc.LightningAddress{
			Pubkey: hex.EncodeToString(pub.SerializeCompressed()),
			Host:   net.JoinHostPort(host, strconv.Itoa(int(port))),
		},
	})
	if err == nil {
		return nil
	}

	if s, ok := status.FromError(err); ok &&
		strings.Contains(s.Message(), "already connected") {

		return nil
	}

	return fmt.Errorf("lnd connecting peer: %w", err)
}

func (l *LND) FundChannel(ctx context.Context, peer *btcec.PublicKey,
	amt btcutil.Amount, announce bool) (*FundChannelResult, error) {

	point, err := l.client.OpenChannelSync(ctx, &lnrpc.OpenChannelRequest{
		NodePubkey:         peer.SerializeCompressed(),
		LocalFundingAmount: int64(amt),
		Private:            !announce,
	})
	if err != nil {
		return nil, fmt.Errorf("lnd opening channel: %w", err)
	}

	txid, err := chainhash.NewHash(point.GetFundingTxidBytes())
	if err != nil {
		return nil, fmt.Errorf("lnd funding txid: %w", err)
	}

	return &FundChannelResult{
		MinDepth:  l.minDepth,
		ChannelID: channelID(*txid, point.OutputIndex),
		OutNum:    point.OutputIndex,
		Tx:        l.rawTransaction(ctx, txid.String()),
		TxID:      txid.String(),
	}, nil
}

// rawTransaction looks up the funding transaction in the wallet. The channel
// is already being funded at this point, so a failed lookup only leaves the
// field empty.
func (l *LND) rawTransaction(ctx context.Context, txid string) string {
	resp, err := l.client.GetTransactions(
		ctx, &lnrpc.GetTransactionsRequest{},
	)
	if err != nil {
		log.Warnf("Unable to fetch funding tx %s: %v", txid, err)
		return ""
	}

	for _, tx := range resp.Transactions {
		if tx.TxHash == txid {
			return tx.RawTxHex
		}
	}

	log.Warnf("Funding tx %s not found in wallet", txid)
	return ""
}

// channelID is the BOLT-2 channel id of the funding output.
func channelID(txid chainhash.Hash, index uint32) string {
	return lnwire.NewChanIDFromOutPoint(wire.OutPoint{
		Hash:  txid,
		Index: index,
	}).String()
}

func (l *LND) DecodeInvoice(ctx context.Context,
	invoice string) (*DecodedInvoice, error) {

	req, err := l.client.DecodePayReq(ctx, &lnrpc.PayReqString{
		PayReq: invoice,
	})
	if err != nil {
		return nil, fmt.Errorf("lnd decoding invoice: %w", err)
	}

	res := &DecodedInvoice{
		PaymentHash: req.PaymentHash,
		Destination: req.Destination,
	}
	if req.NumMsat > 0 {
		amt := lnwire.MilliSatoshi(req.NumMsat)
		res.AmountMsat = &amt
	}

	return res, nil
}

func (l *LND) CreateInvoice(ctx context.Context,
	req InvoiceRequest) (string, error) {

	resp, err := l.client.AddInvoice(ctx, &lnrpc.Invoice{
		Memo:      req.Description,
		ValueMsat: int64(req.Amount),
		Expiry:    int64(req.Expiry / time.Second),
	})
	if err != nil {
		return "", fmt.Errorf("lnd adding invoice: %w", err)
	}

	l.mu.Lock()
	l.labels[req.Label] = resp.RHash
	l.mu.Unlock()

	return resp.PaymentRequest, nil
}

func (l *LND) WaitInvoice(ctx context.Context,
	label string) (*InvoiceSettlement, error) {

	l.mu.Lock()
	rHash, ok := l.labels[label]
	l.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvoiceNotFound, label)
	}

	stream, err := l.invoices.SubscribeSingleInvoice(
		ctx, &invoicesrpc.SubscribeSingleInvoiceRequest{RHash: rHash},
	)
	if err != nil {
		return nil, fmt.Errorf("lnd subscribing invoice: %w", err)
	}

	for {
		invoice, err := stream.Recv()
		if err != nil {
			return nil, fmt.Errorf("lnd receiving invoice update: %w",
				err)
		}

		switch invoice.State {
		case lnrpc.Invoice_SETTLED:
			l.mu.Lock()
			delete(l.labels, label)
			l.mu.Unlock()

			return &InvoiceSettlement{
				Label: label,
				AmountPaid: lnwire.MilliSatoshi(
					invoice.AmtPaidMsat,
				),
				SettledAt: time.Unix(invoice.SettleDate, 0),
			}, nil

		case lnrpc.Invoice_CANCELED:
			return nil, fmt.Errorf("%w: %s", ErrInvoiceCanceled, label)
		}
	}
}

func (l *LND) PayInvoice(ctx context.Context,
	req PaymentRequest) (*PaymentResult, error) {

	stream, err := l.router.SendPaymentV2(ctx, &routerrpc.SendPaymentRequest{
		PaymentRequest: req.Invoice,
		FeeLimitMsat:   int64(req.FeeLimit),
		TimeoutSeconds: int32(req.Timeout / time.Second),
	})
	if err != nil {
		return nil, fmt.Errorf("lnd sending payment: %w", err)
	}

	for {
		payment, err := stream.Recv()
		if err != nil {
			return nil, fmt.Errorf("lnd receiving payment update: %w",
				err)
		}

		switch payment.Status {
		case lnrpc.Payment_SUCCEEDED:
			return &PaymentResult{
				PaymentHash: payment.PaymentHash,
				Preimage:    payment.PaymentPreimage,
				Amount:      lnwire.MilliSatoshi(payment.ValueMsat),
				Fee:         lnwire.MilliSatoshi(payment.FeeMsat),
			}, nil

		case lnrpc.Payment_FAILED:
			return nil, errors.New(payment.FailureReason.String())
		}
	}
}

func (l *LND) SignMessage(ctx context.Context,
	msg []byte) (*MessageSignature, error) {

	resp, err := l.client.SignMessage(ctx, &lnrpc.SignMessageRequest{
		Msg: msg,
	})
	if err != nil {
		return nil, fmt.Errorf("lnd signing message: %w", err)
	}

	return NewMessageSignature(ZbaseSignature(resp.GetSignature()))
}

// VerifyMessage recovers the signer locally. lnd's own VerifyMessage only
// knows keys of nodes in its channel graph.
func (l *LND) VerifyMessage(_ context.Context, msg []byte, sig ZbaseSignature,
	pub *btcec.PublicKey) (bool, error) {

	return VerifyZbaseMessage(msg, sig, pub)
}

// compile-time check to ensure LND implements the LightningNode interface
var _ LightningNode = (*LND)(nil)
