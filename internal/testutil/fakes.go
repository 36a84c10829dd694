package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dom/pack-minter/internal/content"
	"github.com/dom/pack-minter/internal/domain"
	"github.com/dom/pack-minter/internal/repository"
	"github.com/dom/pack-minter/internal/repository/memory"
)

// FakePublisher hands out deterministic content URIs. FailImageAt and
// FailJSONAt make the n-th call of that kind fail (1-based, 0 never).
type FakePublisher struct {
	FailImageAt int
	FailJSONAt  int

	mu         sync.Mutex
	imageCalls int
	jsonCalls  int
	docs       map[string]any
}

func NewFakePublisher() *FakePublisher {
	return &FakePublisher{docs: make(map[string]any)}
}

func (p *FakePublisher) PublishImage(ctx context.Context, data []byte, filename string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.imageCalls++
	if p.imageCalls == p.FailImageAt {
		return "", fmt.Errorf("%w: image upload refused", domain.ErrPublish)
	}
	return fmt.Sprintf("ipfs://images/%d/%s", p.imageCalls, filename), nil
}

func (p *FakePublisher) PublishJSON(ctx context.Context, doc any, name string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jsonCalls++
	if p.jsonCalls == p.FailJSONAt {
		return "", fmt.Errorf("%w: metadata upload refused", domain.ErrPublish)
	}
	p.docs[name] = doc
	return "ipfs://metadata/" + name, nil
}

func (p *FakePublisher) ImageCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.imageCalls
}

func (p *FakePublisher) JSONCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.jsonCalls
}

// Document returns the last document published under name.
func (p *FakePublisher) Document(name string) (any, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	doc, ok := p.docs[name]
	return doc, ok
}

type MintCall struct {
	Recipient   string
	TokenID     uint64
	MetadataURI string
}

// FakeMinter confirms every mint instantly unless FailAt names the failing
// call, which then returns Err (an ErrChain revert when Err is nil). OnMint,
// if set, runs after each call is recorded and before it returns.
type FakeMinter struct {
	FailAt          int
	Err             error
	RejectRecipient bool
	Delay           time.Duration
	OnMint          func(tokenID uint64)

	mu    sync.Mutex
	calls []MintCall
}

func (m *FakeMinter) ValidateRecipient(recipient string) error {
	if m.RejectRecipient {
		return fmt.Errorf("%w: %s", domain.ErrInvalidRecipient, recipient)
	}
	return nil
}

func (m *FakeMinter) Mint(ctx context.Context, recipient string, tokenID uint64, metadataURI string) (string, error) {
	if m.Delay > 0 {
		time.Sleep(m.Delay)
	}

	m.mu.Lock()
	m.calls = append(m.calls, MintCall{Recipient: recipient, TokenID: tokenID, MetadataURI: metadataURI})
	n := len(m.calls)
	m.mu.Unlock()

	if m.OnMint != nil {
		m.OnMint(tokenID)
	}
	if n == m.FailAt {
		if m.Err != nil {
			return "", m.Err
		}
		return "", fmt.Errorf("%w: execution reverted", domain.ErrChain)
	}
	return TxHash(tokenID), nil
}

func (m *FakeMinter) Calls() []MintCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MintCall(nil), m.calls...)
}

// TxHash is the hash FakeMinter reports for tokenID.
func TxHash(tokenID uint64) string {
	return fmt.Sprintf("0x%064x", tokenID)
}

// RecordingLocker wraps a Locker and keeps every lease it hands out.
type RecordingLocker struct {
	repository.Locker

	mu     sync.Mutex
	leases []*repository.Lease
}

func NewRecordingLocker() *RecordingLocker {
	return &RecordingLocker{Locker: memory.NewLocker()}
}

func (l *RecordingLocker) Lock(ctx context.Context, key string) (*repository.Lease, error) {
	lease, err := l.Locker.Lock(ctx, key)
	if err == nil {
		l.mu.Lock()
		l.leases = append(l.leases, lease)
		l.mu.Unlock()
	}
	return lease, err
}

// Current returns the most recent lease, or nil.
func (l *RecordingLocker) Current() *repository.Lease {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.leases) == 0 {
		return nil
	}
	return l.leases[len(l.leases)-1]
}

// MemoryCounter is a CounterStore held in memory.
type MemoryCounter struct {
	PeekErr    error
	AdvanceErr error

	mu       sync.Mutex
	value    uint64
	advances []uint64
}

func NewMemoryCounter(start uint64) *MemoryCounter {
	return &MemoryCounter{value: start}
}

func (c *MemoryCounter) Peek(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.PeekErr != nil {
		return 0, c.PeekErr
	}
	return c.value, nil
}

func (c *MemoryCounter) Advance(ctx context.Context, value uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advances = append(c.advances, value)
	if c.AdvanceErr != nil {
		return c.AdvanceErr
	}
	if value > c.value {
		c.value = value
	}
	return nil
}

func (c *MemoryCounter) Value() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// MemoryNFTRepository is an NFTRepository held in memory. CreateErr fails
// every Create.
type MemoryNFTRepository struct {
	CreateErr error

	mu   sync.Mutex
	nfts map[uint64]*domain.NFT
}

func NewMemoryNFTRepository() *MemoryNFTRepository {
	return &MemoryNFTRepository{nfts: make(map[uint64]*domain.NFT)}
}

func (r *MemoryNFTRepository) Create(ctx context.Context, nft *domain.NFT) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.CreateErr != nil {
		return r.CreateErr
	}
	if _, ok := r.nfts[nft.NFTID]; ok {
		return domain.ErrDuplicateRecord
	}
	r.nfts[nft.NFTID] = nft
	return nil
}

// FailCreates sets CreateErr while other goroutines may be using the repo.
func (r *MemoryNFTRepository) FailCreates(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CreateErr = err
}

func (r *MemoryNFTRepository) GetByID(ctx context.Context, tokenID uint64) (*domain.NFT, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	nft, ok := r.nfts[tokenID]
	if !ok {
		return nil, fmt.Errorf("nft %d not found", tokenID)
	}
	return nft, nil
}

func (r *MemoryNFTRepository) GetByIDs(ctx context.Context, tokenIDs []uint64) ([]*domain.NFT, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var nfts []*domain.NFT
	for _, id := range tokenIDs {
		if nft, ok := r.nfts[id]; ok {
			nfts = append(nfts, nft)
		}
	}
	sort.Slice(nfts, func(i, j int) bool { return nfts[i].NFTID < nfts[j].NFTID })
	return nfts, nil
}

func (r *MemoryNFTRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.nfts)
}

// MemoryWalletRepository is a WalletRepository held in memory. AppendErr
// fails every AppendToken.
type MemoryWalletRepository struct {
	AppendErr error

	mu      sync.Mutex
	wallets map[string]*domain.Wallet
}

func NewMemoryWalletRepository() *MemoryWalletRepository {
	return &MemoryWalletRepository{wallets: make(map[string]*domain.Wallet)}
}

func (r *MemoryWalletRepository) AppendToken(ctx context.Context, address string, tokenID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.AppendErr != nil {
		return r.AppendErr
	}
	w, ok := r.wallets[address]
	if !ok {
		w = &domain.Wallet{WalletAddress: address, OwnedTokenIDs: []uint64{}, CreatedAt: time.Now()}
		r.wallets[address] = w
	}
	for _, id := range w.OwnedTokenIDs {
		if id == tokenID {
			return nil
		}
	}
	w.OwnedTokenIDs = append(w.OwnedTokenIDs, tokenID)
	w.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryWalletRepository) IncrementWins(ctx context.Context, address string) (*domain.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[address]
	if !ok {
		return nil, domain.ErrWalletNotFound
	}
	w.Wins++
	copied := *w
	return &copied, nil
}

func (r *MemoryWalletRepository) GetByAddress(ctx context.Context, address string) (*domain.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[address]
	if !ok {
		return nil, domain.ErrWalletNotFound
	}
	copied := *w
	copied.OwnedTokenIDs = append([]uint64{}, w.OwnedTokenIDs...)
	return &copied, nil
}

func (r *MemoryWalletRepository) TopByWins(ctx context.Context, limit int) ([]*domain.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wallets := make([]*domain.Wallet, 0, len(r.wallets))
	for _, w := range r.wallets {
		copied := *w
		wallets = append(wallets, &copied)
	}
	sort.Slice(wallets, func(i, j int) bool {
		if wallets[i].Wins != wallets[j].Wins {
			return wallets[i].Wins > wallets[j].Wins
		}
		return wallets[i].WalletAddress < wallets[j].WalletAddress
	})
	if len(wallets) > limit {
		wallets = wallets[:limit]
	}
	return wallets, nil
}

// Put stores a wallet directly.
func (r *MemoryWalletRepository) Put(w *domain.Wallet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wallets[w.WalletAddress] = w
}

// MemoryQueue is a ReconciliationQueue held in memory.
type MemoryQueue struct {
	EnqueueErr error

	mu    sync.Mutex
	items []*domain.ReconciliationItem
}

func (q *MemoryQueue) Enqueue(ctx context.Context, item *domain.ReconciliationItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.EnqueueErr != nil {
		return q.EnqueueErr
	}
	q.items = append(q.items, item)
	return nil
}

func (q *MemoryQueue) List(ctx context.Context) ([]*domain.ReconciliationItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*domain.ReconciliationItem(nil), q.items...), nil
}

func (q *MemoryQueue) Update(ctx context.Context, resolved []string, retried []*domain.ReconciliationItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	drop := make(map[string]bool, len(resolved))
	for _, id := range resolved {
		drop[id] = true
	}
	replace := make(map[string]*domain.ReconciliationItem, len(retried))
	for _, item := range retried {
		replace[item.ID] = item
	}
	kept := q.items[:0]
	for _, item := range q.items {
		if drop[item.ID] {
			continue
		}
		if r, ok := replace[item.ID]; ok {
			item = r
		}
		kept = append(kept, item)
	}
	q.items = kept
	return nil
}

// StaticImages is an image policy backed by a single temp file. The first
// MissFor resolutions report no matching asset.
type StaticImages struct {
	MissFor int

	asset content.Asset
	pools domain.TraitPools

	mu       sync.Mutex
	resolved int
}

func NewStaticImages(t *testing.T) *StaticImages {
	t.Helper()
	path := filepath.Join(t.TempDir(), "card.png")
	if err := os.WriteFile(path, []byte("\x89PNG\r\n\x1a\ncard"), 0o644); err != nil {
		t.Fatalf("failed to write card image: %v", err)
	}
	return &StaticImages{
		asset: content.Asset{Path: path, Name: "card.png"},
		pools: domain.AuraPools(),
	}
}

func (s *StaticImages) Pools() domain.TraitPools { return s.pools }

func (s *StaticImages) Resolve(card domain.Card) (content.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolved++
	if s.resolved <= s.MissFor {
		return content.Asset{}, fmt.Errorf("%w: %s", domain.ErrNoMatchingAsset, card.Character)
	}
	return s.asset, nil
}

func (s *StaticImages) Resolutions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolved
}

// EventRecorder collects published mint events.
type EventRecorder struct {
	mu     sync.Mutex
	events []domain.MintEvent
}

func (r *EventRecorder) Publish(wallet string, event domain.MintEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *EventRecorder) Types() []domain.MintEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]domain.MintEventType, len(r.events))
	for i, e := range r.events {
		types[i] = e.Type
	}
	return types
}
