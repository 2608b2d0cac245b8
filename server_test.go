package lnurlbridge

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/stretchr/testify/require"
)

const testPublicURL = "https://lnurl.example.com/"

type recordingSubmitter struct {
	mu   sync.Mutex
	jobs []PaymentJob
	err  error
}

func (r *recordingSubmitter) Submit(job PaymentJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return r.err
	}
	r.jobs = append(r.jobs, job)

	return nil
}

func (r *recordingSubmitter) submitted() []PaymentJob {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]PaymentJob(nil), r.jobs...)
}

type serverHarness struct {
	server   *Server
	node     *fakeNode
	payments *recordingSubmitter
}

func newServerHarness(t *testing.T) *serverHarness {
	t.Helper()

	node := newFakeNode(t, newInvoiceLedger())
	payments := &recordingSubmitter{}

	server := NewServer(ServerConfig{
		Identity:  node.identity("203.0.113.7", 9735),
		PublicURL: testPublicURL,
		Node:      node,
		Tokens: NewMemoryStore(MemoryStoreConfig{
			SweepTicker: ticker.NewForce(time.Hour),
		}),
		Payments: payments,
	})

	return &serverHarness{
		server:   server,
		node:     node,
		payments: payments,
	}
}

// get calls path on the server and decodes the JSON body into a map.
func (h *serverHarness) get(t *testing.T, path string,
	query url.Values) (int, map[string]any) {

	t.Helper()

	target := path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(
		rec, httptest.NewRequest(http.MethodGet, target, nil),
	)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	return rec.Code, body
}

func (h *serverHarness) issue(t *testing.T, path string) string {
	t.Helper()

	code, body := h.get(t, path, nil)
	require.Equal(t, http.StatusOK, code)

	k1, ok := body["k1"].(string)
	require.True(t, ok)
	require.Len(t, k1, 2*tokenLen)

	return k1
}

func requireError(t *testing.T, body map[string]any, reason string) {
	t.Helper()

	require.Equal(t, StatusError, body["status"])
	require.Equal(t, reason, body["reason"])
}

func newWalletKey(t *testing.T) (*btcec.PrivateKey, string) {
	t.Helper()

	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	return key, NodeIdentity{PubKey: key.PubKey()}.PubKeyHex()
}

func TestRequestChannel(t *testing.T) {
	t.Parallel()

	h := newServerHarness(t)

	code, body := h.get(t, "/request-channel", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, TagChannelRequest, body["tag"])
	require.Equal(t, h.node.pubKeyHex()+"@203.0.113.7:9735", body["uri"])
	require.Equal(t, "https://lnurl.example.com/open-channel",
		body["callback"])
	require.Len(t, body["k1"], 2*tokenLen)

	// Every request gets a fresh token.
	_, again := h.get(t, "/request-channel", nil)
	require.NotEqual(t, body["k1"], again["k1"])
}

func TestOpenChannel(t *testing.T) {
	t.Parallel()

	_, remoteID := newWalletKey(t)

	tests := []struct {
		name     string
		private  string
		announce bool
	}{
		{name: "default public", announce: true},
		{name: "explicit public", private: "0", announce: true},
		{name: "private", private: "1", announce: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h := newServerHarness(t)
			k1 := h.issue(t, "/request-channel")

			query := url.Values{"remoteid": {remoteID}, "k1": {k1}}
			if tc.private != "" {
				query.Set("private", tc.private)
			}

			code, body := h.get(t, "/open-channel", query)
			require.Equal(t, http.StatusOK, code)
			require.Equal(t, StatusOK, body["status"])
			require.EqualValues(t, DefaultMinDepth, body["mindepth"])
			require.EqualValues(t, 1, body["outnum"])
			require.NotEmpty(t, body["channel_id"])
			require.NotEmpty(t, body["txid"])

			calls := h.node.fundCalls()
			require.Len(t, calls, 1)
			require.Equal(t, remoteID, calls[0].peer)
			require.Equal(t, ChannelFundingAmount, calls[0].amount)
			require.Equal(t, tc.announce, calls[0].announce)
		})
	}
}

func TestOpenChannelRejections(t *testing.T) {
	t.Parallel()

	_, remoteID := newWalletKey(t)

	t.Run("unknown k1", func(t *testing.T) {
		h := newServerHarness(t)

		code, body := h.get(t, "/open-channel", url.Values{
			"remoteid": {remoteID}, "k1": {strings.Repeat("ab", 32)},
		})
		require.Equal(t, http.StatusBadRequest, code)
		requireError(t, body, reasonInvalidChannelK1)
		require.Empty(t, h.node.fundCalls())
	})

	t.Run("replay", func(t *testing.T) {
		h := newServerHarness(t)
		k1 := h.issue(t, "/request-channel")
		query := url.Values{"remoteid": {remoteID}, "k1": {k1}}

		code, _ := h.get(t, "/open-channel", query)
		require.Equal(t, http.StatusOK, code)

		code, body := h.get(t, "/open-channel", query)
		require.Equal(t, http.StatusBadRequest, code)
		requireError(t, body, reasonInvalidChannelK1)
		require.Len(t, h.node.fundCalls(), 1)
	})

	t.Run("invalid node id burns token", func(t *testing.T) {
		h := newServerHarness(t)
		k1 := h.issue(t, "/request-channel")

		code, body := h.get(t, "/open-channel", url.Values{
			"remoteid": {"not-a-key"}, "k1": {k1},
		})
		require.Equal(t, http.StatusBadRequest, code)
		require.Equal(t, StatusError, body["status"])
		require.Contains(t, body["reason"], "Invalid node id")

		code, body = h.get(t, "/open-channel", url.Values{
			"remoteid": {remoteID}, "k1": {k1},
		})
		require.Equal(t, http.StatusBadRequest, code)
		requireError(t, body, reasonInvalidChannelK1)
		require.Empty(t, h.node.fundCalls())
	})

	t.Run("missing parameters", func(t *testing.T) {
		h := newServerHarness(t)

		code, body := h.get(t, "/open-channel", url.Values{
			"remoteid": {remoteID},
		})
		require.Equal(t, http.StatusBadRequest, code)
		require.Equal(t, StatusError, body["status"])
		require.Contains(t, body["reason"], "Invalid request")
	})

	t.Run("funding error", func(t *testing.T) {
		h := newServerHarness(t)
		h.node.fundErr = errors.New("not enough witness outputs")
		k1 := h.issue(t, "/request-channel")

		code, body := h.get(t, "/open-channel", url.Values{
			"remoteid": {remoteID}, "k1": {k1},
		})
		require.Equal(t, http.StatusInternalServerError, code)
		requireError(t, body,
			"Failed to open channel: not enough witness outputs")
	})
}

func TestOpenChannelConcurrentReplay(t *testing.T) {
	t.Parallel()

	const numCallers = 16

	h := newServerHarness(t)
	_, remoteID := newWalletKey(t)
	k1 := h.issue(t, "/request-channel")
	target := "/open-channel?" + url.Values{
		"remoteid": {remoteID}, "k1": {k1},
	}.Encode()

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		start     = make(chan struct{})
	)
	for i := 0; i < numCallers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start

			rec := httptest.NewRecorder()
			h.server.Handler().ServeHTTP(rec, httptest.NewRequest(
				http.MethodGet, target, nil,
			))
			if rec.Code == http.StatusOK {
				successes.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.EqualValues(t, 1, successes.Load())
	require.Len(t, h.node.fundCalls(), 1)
}

func TestRequestWithdraw(t *testing.T) {
	t.Parallel()

	h := newServerHarness(t)

	code, body := h.get(t, "/request-withdraw", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, TagWithdrawRequest, body["tag"])
	require.Equal(t, "https://lnurl.example.com/withdraw", body["callback"])
	require.Equal(t, DefaultWithdrawDescription, body["defaultDescription"])
	require.EqualValues(t, 1_000, body["minWithdrawable"])
	require.EqualValues(t, 1_000_000, body["maxWithdrawable"])
}

func TestWithdrawBounds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		amount lnwire.MilliSatoshi
		reason string
	}{
		{amount: 999, reason: "Amount 999 msat below minimum 1000 msat"},
		{amount: 1_000},
		{amount: 1_000_000},
		{
			amount: 1_000_001,
			reason: "Amount 1000001 msat exceeds maximum 1000000 msat",
		},
	}

	for _, tc := range tests {
		h := newServerHarness(t)
		k1 := h.issue(t, "/request-withdraw")
		pr := h.node.ledger.add(tc.amount)

		code, body := h.get(t, "/withdraw", url.Values{
			"k1": {k1}, "pr": {pr},
		})

		if tc.reason != "" {
			require.Equal(t, http.StatusBadRequest, code, tc.amount)
			requireError(t, body, tc.reason)
			require.Empty(t, h.payments.submitted())
			continue
		}

		require.Equal(t, http.StatusOK, code, tc.amount)
		require.Equal(t, StatusOK, body["status"])

		jobs := h.payments.submitted()
		require.Len(t, jobs, 1)
		require.Equal(t, pr, jobs[0].Invoice)
		require.Equal(t, tc.amount, jobs[0].Amount)
		require.NotEmpty(t, jobs[0].ID)
	}
}

func TestWithdrawRejections(t *testing.T) {
	t.Parallel()

	t.Run("no amount", func(t *testing.T) {
		h := newServerHarness(t)
		k1 := h.issue(t, "/request-withdraw")

		code, body := h.get(t, "/withdraw", url.Values{
			"k1": {k1}, "pr": {h.node.ledger.add(0)},
		})
		require.Equal(t, http.StatusBadRequest, code)
		requireError(t, body, "Invoice has no amount")
	})

	t.Run("undecodable invoice", func(t *testing.T) {
		h := newServerHarness(t)
		k1 := h.issue(t, "/request-withdraw")

		code, body := h.get(t, "/withdraw", url.Values{
			"k1": {k1}, "pr": {"lnbc1garbage"},
		})
		require.Equal(t, http.StatusBadRequest, code)
		requireError(t, body, "Invalid invoice: invalid bech32 string")
	})

	t.Run("replay", func(t *testing.T) {
		h := newServerHarness(t)
		k1 := h.issue(t, "/request-withdraw")
		query := url.Values{"k1": {k1}, "pr": {h.node.ledger.add(5_000)}}

		code, _ := h.get(t, "/withdraw", query)
		require.Equal(t, http.StatusOK, code)

		code, body := h.get(t, "/withdraw", query)
		require.Equal(t, http.StatusBadRequest, code)
		requireError(t, body, reasonInvalidWithdrawK1)
		require.Len(t, h.payments.submitted(), 1)
	})

	t.Run("channel token", func(t *testing.T) {
		h := newServerHarness(t)

		// Tokens are shared between the flows but remain single-use.
		k1 := h.issue(t, "/request-channel")
		query := url.Values{"k1": {k1}, "pr": {h.node.ledger.add(5_000)}}

		code, _ := h.get(t, "/withdraw", query)
		require.Equal(t, http.StatusOK, code)

		_, remoteID := newWalletKey(t)
		code, _ = h.get(t, "/open-channel", url.Values{
			"remoteid": {remoteID}, "k1": {k1},
		})
		require.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("queue full", func(t *testing.T) {
		h := newServerHarness(t)
		h.payments.err = ErrQueueFull
		k1 := h.issue(t, "/request-withdraw")

		code, body := h.get(t, "/withdraw", url.Values{
			"k1": {k1}, "pr": {h.node.ledger.add(5_000)},
		})
		require.Equal(t, http.StatusInternalServerError, code)
		requireError(t, body, "Withdrawal queue is full")
	})

	t.Run("executor stopped", func(t *testing.T) {
		h := newServerHarness(t)
		h.payments.err = ErrExecutorStopped
		k1 := h.issue(t, "/request-withdraw")

		code, body := h.get(t, "/withdraw", url.Values{
			"k1": {k1}, "pr": {h.node.ledger.add(5_000)},
		})
		require.Equal(t, http.StatusInternalServerError, code)
		require.Equal(t, StatusError, body["status"])
		require.Contains(t, body["reason"], "Failed to queue withdrawal")
	})
}

func TestAuth(t *testing.T) {
	t.Parallel()

	h := newServerHarness(t)
	key, pubKey := newWalletKey(t)

	k1 := h.issue(t, "/auth-challenge")
	sig, err := SignZbaseMessage(key, []byte(k1))
	require.NoError(t, err)

	query := url.Values{
		"k1":        {k1},
		"signature": {string(sig.Zbase)},
		"pubkey":    {pubKey},
	}

	code, body := h.get(t, "/auth-response", query)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, StatusOK, body["status"])
	require.Equal(t, EventLoggedIn, body["event"])

	code, body = h.get(t, "/auth-response", query)
	require.Equal(t, http.StatusBadRequest, code)
	requireError(t, body, reasonInvalidAuthK1)
}

func TestAuthRejections(t *testing.T) {
	t.Parallel()

	key, pubKey := newWalletKey(t)
	_, otherPubKey := newWalletKey(t)

	tests := []struct {
		name   string
		query  func(k1 string, sig *MessageSignature) url.Values
		code   int
		reason string
	}{
		{
			name: "other pubkey",
			query: func(k1 string, sig *MessageSignature) url.Values {
				return url.Values{
					"k1":        {k1},
					"signature": {string(sig.Zbase)},
					"pubkey":    {otherPubKey},
				}
			},
			code:   http.StatusUnauthorized,
			reason: "Signature verification failed",
		},
		{
			name: "der signature",
			query: func(k1 string, sig *MessageSignature) url.Values {
				return url.Values{
					"k1":        {k1},
					"signature": {string(sig.DER)},
					"pubkey":    {pubKey},
				}
			},
			code: http.StatusBadRequest,
		},
		{
			name: "invalid pubkey",
			query: func(k1 string, sig *MessageSignature) url.Values {
				return url.Values{
					"k1":        {k1},
					"signature": {string(sig.Zbase)},
					"pubkey":    {"02abcd"},
				}
			},
			code: http.StatusBadRequest,
		},
		{
			name: "unknown k1",
			query: func(_ string, sig *MessageSignature) url.Values {
				return url.Values{
					"k1":        {strings.Repeat("cd", 32)},
					"signature": {string(sig.Zbase)},
					"pubkey":    {pubKey},
				}
			},
			code:   http.StatusBadRequest,
			reason: reasonInvalidAuthK1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h := newServerHarness(t)
			k1 := h.issue(t, "/auth-challenge")

			sig, err := SignZbaseMessage(key, []byte(k1))
			require.NoError(t, err)

			code, body := h.get(t, "/auth-response", tc.query(k1, sig))
			require.Equal(t, tc.code, code)
			require.Equal(t, StatusError, body["status"])
			if tc.reason != "" {
				require.Equal(t, tc.reason, body["reason"])
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	h := newServerHarness(t)
	h.issue(t, "/auth-challenge")

	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(
		rec, httptest.NewRequest(http.MethodGet, "/metrics", nil),
	)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(),
		`lnurl_tokens_issued_total{flow="auth"} 1`)
}
