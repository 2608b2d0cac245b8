package lnurlbridge

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/tv42/zbase32"
)

var (
	// Prefix used by lnd.
	signedMsgPrefix = []byte("Lightning Signed Message:")
)

// compactSigLen is the length of a recoverable signature: one header byte
// followed by R and S.
const compactSigLen = 1 + 32 + 32

// ZbaseSignature is a recoverable node signature encoded with zbase32. This
// is the only encoding accepted by LnVerifier.
type ZbaseSignature string

// DERSignature is the hex encoded DER serialization of a node signature.
type DERSignature string

// MessageSignature holds both serializations of one signature. They are not
// interchangeable.
type MessageSignature struct {
	Zbase ZbaseSignature `json:"zbase"`
	DER   DERSignature   `json:"signature"`
	RecID byte           `json:"recid"`
}

// ParseZbaseSignature validates that s is a zbase32 encoded compact
// signature. DER-hex strings are rejected.
func ParseZbaseSignature(s string) (ZbaseSignature, error) {
	b, err := zbase32.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("decoding zbase32: %w", err)
	}
	if len(b) != compactSigLen {
		return "", fmt.Errorf("expected %d byte compact signature, got %d",
			compactSigLen, len(b))
	}

	return ZbaseSignature(s), nil
}

// NewMessageSignature derives the DER form of a zbase signature.
func NewMessageSignature(sig ZbaseSignature) (*MessageSignature, error) {
	b, err := zbase32.DecodeString(string(sig))
	if err != nil {
		return nil, fmt.Errorf("decoding zbase32: %w", err)
	}
	if len(b) != compactSigLen {
		return nil, fmt.Errorf("invalid compact signature length %d", len(b))
	}

	var r, s btcec.ModNScalar
	if overflow := r.SetByteSlice(b[1:33]); overflow {
		return nil, errors.New("signature R overflows curve order")
	}
	if overflow := s.SetByteSlice(b[33:65]); overflow {
		return nil, errors.New("signature S overflows curve order")
	}

	// The header is 27 + recovery id, plus 4 for compressed keys.
	recID := (b[0] - 27) & 3

	return &MessageSignature{
		Zbase: sig,
		DER: DERSignature(hex.EncodeToString(
			ecdsa.NewSignature(&r, &s).Serialize(),
		)),
		RecID: recID,
	}, nil
}

// signedMessageHash returns the digest lnd signs for msg.
func signedMessageHash(msg []byte) []byte {
	data := make([]byte, 0, len(signedMsgPrefix)+len(msg))
	data = append(data, signedMsgPrefix...)
	data = append(data, msg...)

	return chainhash.DoubleHashB(data)
}

// RecoverMessagePubKey returns the key that produced sig over msg.
func RecoverMessagePubKey(msg []byte, sig ZbaseSignature) (*btcec.PublicKey,
	error) {

	s, err := zbase32.DecodeString(string(sig))
	if err != nil {
		return nil, fmt.Errorf("decoding zbase32: %w", err)
	}

	pubKey, _, err := ecdsa.RecoverCompact(s, signedMessageHash(msg))
	if err != nil {
		return nil, fmt.Errorf("recovering pubkey: %w", err)
	}

	return pubKey, nil
}

// VerifyZbaseMessage checks sig against the expected key. A signature from
// which no key can be recovered is reported as invalid, not as an error.
func VerifyZbaseMessage(msg []byte, sig ZbaseSignature,
	pub *btcec.PublicKey) (bool, error) {

	s, err := zbase32.DecodeString(string(sig))
	if err != nil {
		return false, fmt.Errorf("decoding zbase32: %w", err)
	}

	recovered, _, err := ecdsa.RecoverCompact(s, signedMessageHash(msg))
	if err != nil {
		return false, nil
	}

	return recovered.IsEqual(pub), nil
}

// SignZbaseMessage signs msg the way lnd does. It is used by nodes that hold
// their key in process.
func SignZbaseMessage(key *btcec.PrivateKey, msg []byte) (*MessageSignature,
	error) {

	compact := ecdsa.SignCompact(key, signedMessageHash(msg), true)

	return NewMessageSignature(ZbaseSignature(zbase32.EncodeToString(compact)))
}
