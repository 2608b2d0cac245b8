package lnurlbridge

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
)

const (
	DefaultTokenTTL            = 10 * time.Minute
	DefaultMaxOutstanding      = 10_000
	DefaultTokenSweepInterval  = time.Minute
	maxTokenGenerationAttempts = 8
)

type MemoryStoreConfig struct {
	// TTL after which an unused token is treated as never issued.
	TTL time.Duration

	// MaxOutstanding caps the number of live tokens. Issuing beyond it
	// evicts the oldest token.
	MaxOutstanding int

	// SweepTicker drives removal of expired tokens in Run.
	SweepTicker ticker.Ticker

	Clock clock.Clock

	// Generate is used to create tokens, NewToken if nil.
	Generate func() (Token, error)
}

type tokenEntry struct {
	token   Token
	expires time.Time
}

// MemoryStore is an in-process TokenStore. Tokens are lost on restart.
type MemoryStore struct {
	cfg MemoryStoreConfig

	mu     sync.Mutex
	tokens map[Token]*list.Element
	// issue order, oldest at the front
	order *list.List
}

func NewMemoryStore(cfg MemoryStoreConfig) *MemoryStore {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTokenTTL
	}
	if cfg.MaxOutstanding <= 0 {
		cfg.MaxOutstanding = DefaultMaxOutstanding
	}
	if cfg.SweepTicker == nil {
		cfg.SweepTicker = ticker.New(DefaultTokenSweepInterval)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}
	if cfg.Generate == nil {
		cfg.Generate = NewToken
	}

	return &MemoryStore{
		cfg:    cfg,
		tokens: make(map[Token]*list.Element),
		order:  list.New(),
	}
}

func (s *MemoryStore) Issue(_ context.Context) (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.cfg.Clock.Now()

	var token Token
	for attempt := 0; ; attempt++ {
		if attempt == maxTokenGenerationAttempts {
			return "", errTokenCollision
		}

		t, err := s.cfg.Generate()
		if err != nil {
			return "", err
		}

		// Regenerate on collision with a live token.
		if el, exists := s.tokens[t]; exists &&
			!s.expired(el.Value.(*tokenEntry), now) {

			continue
		}
		s.removeLocked(t)
		token = t
		break
	}

	for len(s.tokens) >= s.cfg.MaxOutstanding {
		oldest := s.order.Front()
		entry := oldest.Value.(*tokenEntry)
		log.Debugf("Token store full, evicting token issued at %v",
			entry.expires.Add(-s.cfg.TTL))
		s.removeLocked(entry.token)
	}

	s.tokens[token] = s.order.PushBack(&tokenEntry{
		token:   token,
		expires: now.Add(s.cfg.TTL),
	})

	return token, nil
}

func (s *MemoryStore) Consume(_ context.Context, token Token) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, exists := s.tokens[token]
	if !exists {
		return false, nil
	}
	s.removeLocked(token)

	return !s.expired(el.Value.(*tokenEntry), s.cfg.Clock.Now()), nil
}

// Len returns the number of outstanding tokens, expired ones included until
// the next sweep.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.tokens)
}

// Sweep drops all expired tokens and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.cfg.Clock.Now()

	var removed int
	for el := s.order.Front(); el != nil; el = s.order.Front() {
		entry := el.Value.(*tokenEntry)
		if !s.expired(entry, now) {
			break
		}
		s.removeLocked(entry.token)
		removed++
	}

	return removed
}

// Run sweeps expired tokens on every tick until ctx is done.
func (s *MemoryStore) Run(ctx context.Context) error {
	s.cfg.SweepTicker.Resume()
	defer s.cfg.SweepTicker.Stop()

	for {
		select {
		case <-s.cfg.SweepTicker.Ticks():
			if n := s.Sweep(); n > 0 {
				log.Debugf("Swept %d expired tokens", n)
			}

		case <-ctx.Done():
			return nil
		}
	}
}

func (s *MemoryStore) expired(entry *tokenEntry, now time.Time) bool {
	return !now.Before(entry.expires)
}

func (s *MemoryStore) removeLocked(token Token) {
	el, exists := s.tokens[token]
	if !exists {
		return
	}
	s.order.Remove(el)
	delete(s.tokens, token)
}

var _ TokenStore = (*MemoryStore)(nil)
