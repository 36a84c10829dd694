package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dom/pack-minter/internal/content"
	"github.com/dom/pack-minter/internal/domain"
	"github.com/dom/pack-minter/internal/metrics"
	"github.com/dom/pack-minter/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ContentPublisher interface {
	PublishImage(ctx context.Context, data []byte, filename string) (string, error)
	PublishJSON(ctx context.Context, doc any, name string) (string, error)
}

// ImagePolicy chooses the art for a card and the trait pools that art covers.
type ImagePolicy interface {
	Pools() domain.TraitPools
	Resolve(card domain.Card) (content.Asset, error)
}

type ChainMinter interface {
	ValidateRecipient(recipient string) error
	Mint(ctx context.Context, recipient string, tokenID uint64, metadataURI string) (string, error)
}

type Ledger interface {
	RecordMint(ctx context.Context, card domain.MintedCard) error
	AppendOwnedToken(ctx context.Context, wallet string, tokenID uint64) error
}

type Reconciler interface {
	Enqueue(ctx context.Context, item *domain.ReconciliationItem) error
}

type EventPublisher interface {
	Publish(wallet string, event domain.MintEvent)
}

type MintRequest struct {
	Recipient string
	PackType  string
}

// MintResult describes a pack run. Minted holds cards that reached the
// ledger; Unrecorded holds cards confirmed on chain whose ledger write failed
// and was queued for reconciliation.
type MintResult struct {
	RunID              string
	PackType           string
	Recipient          string
	Minted             []domain.MintedCard
	Unrecorded         []domain.MintedCard
	Failure            *domain.StepError
	PendingTransaction string
}

type MintDeps struct {
	Counter    repository.CounterStore
	Locker     repository.Locker
	Sampler    *TraitSampler
	Images     ImagePolicy
	Publisher  ContentPublisher
	Minter     ChainMinter
	Ledger     Ledger
	Reconciler Reconciler
	Events     EventPublisher
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
}

type MintOptions struct {
	CollectionName string
	CounterName    string
	SampleAttempts int
	LockWait       time.Duration
}

type MintService struct {
	counter        repository.CounterStore
	locker         repository.Locker
	sampler        *TraitSampler
	images         ImagePolicy
	publisher      ContentPublisher
	minter         ChainMinter
	ledger         Ledger
	reconciler     Reconciler
	events         EventPublisher
	metrics        *metrics.Metrics
	logger         *zap.Logger
	collection     string
	lockKey        string
	sampleAttempts int
	lockWait       time.Duration

	mu       sync.Mutex
	draining bool
	runs     sync.WaitGroup
}

func NewMintService(deps MintDeps, opts MintOptions) *MintService {
	s := &MintService{
		counter:        deps.Counter,
		locker:         deps.Locker,
		sampler:        deps.Sampler,
		images:         deps.Images,
		publisher:      deps.Publisher,
		minter:         deps.Minter,
		ledger:         deps.Ledger,
		reconciler:     deps.Reconciler,
		events:         deps.Events,
		metrics:        deps.Metrics,
		logger:         deps.Logger.Named("service.mint"),
		collection:     opts.CollectionName,
		lockKey:        "mint:" + opts.CounterName,
		sampleAttempts: opts.SampleAttempts,
		lockWait:       opts.LockWait,
	}
	if s.sampler == nil {
		s.sampler = NewRandomTraitSampler()
	}
	if s.events == nil {
		s.events = noopEvents{}
	}
	if s.metrics == nil {
		s.metrics = metrics.New(nil)
	}
	if s.sampleAttempts < 1 {
		s.sampleAttempts = 1
	}
	if s.lockWait <= 0 {
		s.lockWait = 5 * time.Minute
	}
	return s
}

type noopEvents struct{}

func (noopEvents) Publish(string, domain.MintEvent) {}

// packRun is the state shared by the cards of one request.
type packRun struct {
	id        string
	tier      domain.PackTier
	recipient string
	// images memoizes published image URIs by asset path.
	images map[string]string
	logger *zap.Logger
}

type cardJob struct {
	tokenID     uint64
	rarity      domain.Rarity
	state       domain.CardState
	card        domain.Card
	imageURI    string
	metadata    domain.CardMetadata
	metadataURI string
	txHash      string
}

func (j *cardJob) minted(recipient string) domain.MintedCard {
	return domain.MintedCard{
		TokenID:         j.tokenID,
		Rarity:          j.rarity,
		Recipient:       recipient,
		MetadataURI:     j.metadataURI,
		ImageURI:        j.imageURI,
		TransactionHash: j.txHash,
		Metadata:        j.metadata,
	}
}

func (s *MintService) validate(req MintRequest) (string, domain.PackTier, error) {
	if strings.TrimSpace(req.Recipient) == "" || strings.TrimSpace(req.PackType) == "" {
		return "", domain.PackTier{}, fmt.Errorf("%w: recipient and packType are required", domain.ErrMissingParameter)
	}
	tier, err := domain.ResolvePackTier(req.PackType)
	if err != nil {
		return "", domain.PackTier{}, err
	}
	recipient, err := domain.NormalizeAddress(req.Recipient)
	if err != nil {
		return "", domain.PackTier{}, fmt.Errorf("%w: %q", domain.ErrInvalidRecipient, req.Recipient)
	}
	if err := s.minter.ValidateRecipient(recipient); err != nil {
		return "", domain.PackTier{}, err
	}
	return recipient, tier, nil
}

// Mint opens one pack. Validation errors are returned with a nil result.
// After validation the result is always returned, and err is the reason the
// run stopped early, if it did.
//
// The counter lock is held for the whole run, so ids within a run are
// contiguous and never shared with another run. A card's id is written to the
// counter only after its transaction is confirmed.
func (s *MintService) Mint(ctx context.Context, req MintRequest) (*MintResult, error) {
	if !s.begin() {
		return nil, domain.ErrShuttingDown
	}
	defer s.runs.Done()

	recipient, tier, err := s.validate(req)
	if err != nil {
		s.metrics.PackRequests.WithLabelValues(packLabel(req.PackType), "invalid").Inc()
		return nil, err
	}

	run := &packRun{
		id:        uuid.NewString(),
		tier:      tier,
		recipient: recipient,
		images:    make(map[string]string),
	}
	run.logger = s.logger.With(
		zap.String("run_id", run.id),
		zap.String("pack", tier.Name),
		zap.String("recipient", recipient),
	)
	result := &MintResult{
		RunID:      run.id,
		PackType:   tier.Name,
		Recipient:  recipient,
		Minted:     []domain.MintedCard{},
		Unrecorded: []domain.MintedCard{},
	}

	lockCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	lease, err := s.locker.Lock(lockCtx, s.lockKey)
	cancel()
	if err != nil {
		s.metrics.PackRequests.WithLabelValues(tier.Name, "failed").Inc()
		run.logger.Error("mint lock unavailable", zap.Error(err))
		return result, fmt.Errorf("%w: acquire mint lock: %v", domain.ErrCounterUnavailable, err)
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			run.logger.Error("release mint lock", zap.Error(err))
		}
	}()

	counter, err := s.counter.Peek(ctx)
	if err != nil {
		s.metrics.PackRequests.WithLabelValues(tier.Name, "failed").Inc()
		run.logger.Error("counter unavailable", zap.Error(err))
		return result, fmt.Errorf("%w: %v", domain.ErrCounterUnavailable, err)
	}

	run.logger.Info("pack started", zap.Uint64("counter", counter), zap.Int("cards", tier.TotalCards))
	s.publish(run, domain.MintEvent{Type: domain.EventPackStarted, Total: tier.TotalCards})

	for _, rarity := range tier.Slots() {
		job := &cardJob{tokenID: counter + 1, rarity: rarity, state: domain.CardPending}
		if err := s.mayContinue(lease); err != nil {
			return result, s.fail(run, result, job, err)
		}
		err := s.runCard(ctx, run, job)

		switch job.state {
		case domain.CardRecorded:
			counter = job.tokenID
			card := job.minted(recipient)
			result.Minted = append(result.Minted, card)
			s.publish(run, domain.MintEvent{
				Type:    domain.EventCardMinted,
				Card:    &card,
				Rarity:  rarity,
				TokenID: job.tokenID,
				Minted:  len(result.Minted),
				Total:   tier.TotalCards,
			})
		case domain.CardMinted:
			counter = job.tokenID
			result.Unrecorded = append(result.Unrecorded, job.minted(recipient))
		}

		if err != nil {
			return result, s.fail(run, result, job, err)
		}
	}

	s.metrics.PackRequests.WithLabelValues(tier.Name, "ok").Inc()
	run.logger.Info("pack completed", zap.Int("minted", len(result.Minted)), zap.Uint64("counter", counter))
	s.publish(run, domain.MintEvent{
		Type:   domain.EventPackCompleted,
		Minted: len(result.Minted),
		Total:  tier.TotalCards,
	})
	return result, nil
}

func (s *MintService) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draining {
		return false
	}
	s.runs.Add(1)
	return true
}

// Drain refuses new runs and waits for the ones in flight. Runs stop before
// their next card, so the wait is bounded by one card's publish and
// confirmation.
func (s *MintService) Drain(ctx context.Context) error {
	s.mu.Lock()
	s.draining = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("mint runs still in flight: %w", ctx.Err())
	}
}

// mayContinue is checked before each card.
func (s *MintService) mayContinue(lease *repository.Lease) error {
	if err := lease.Held(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draining {
		return domain.ErrShuttingDown
	}
	return nil
}

func (s *MintService) fail(run *packRun, result *MintResult, job *cardJob, err error) error {
	stepErr := &domain.StepError{Step: job.state, Rarity: job.rarity, TokenID: job.tokenID, Err: err}
	result.Failure = stepErr

	var timeout *domain.ChainTimeoutError
	if errors.As(err, &timeout) {
		result.PendingTransaction = timeout.TxHash
	}

	outcome := "failed"
	if len(result.Minted)+len(result.Unrecorded) > 0 {
		outcome = "partial"
	}
	s.metrics.PackRequests.WithLabelValues(run.tier.Name, outcome).Inc()
	s.metrics.StepFailures.WithLabelValues(string(job.state)).Inc()

	run.logger.Error("pack stopped",
		zap.Uint64("token_id", job.tokenID),
		zap.String("rarity", string(job.rarity)),
		zap.String("after", string(job.state)),
		zap.Int("minted", len(result.Minted)),
		zap.Int("unrecorded", len(result.Unrecorded)),
		zap.Error(err))
	s.publish(run, domain.MintEvent{
		Type:    domain.EventCardFailed,
		Rarity:  job.rarity,
		TokenID: job.tokenID,
		Minted:  len(result.Minted),
		Total:   run.tier.TotalCards,
		Error:   stepErr.Error(),
	})
	return stepErr
}

// runCard drives one card through Sampled, AssetPublished, MetadataPublished,
// Minted and Recorded. job.state is the last state reached.
func (s *MintService) runCard(ctx context.Context, run *packRun, job *cardJob) error {
	pools := s.images.Pools()
	card, asset, err := s.sample(pools)
	if err != nil {
		return err
	}
	job.card = card
	job.state = domain.CardSampled

	imageURI, err := s.publishImage(ctx, run, asset)
	if err != nil {
		return err
	}
	job.imageURI = imageURI
	job.state = domain.CardAssetPublished

	job.metadata = domain.BuildMetadata(s.collection, job.tokenID, run.tier.Name, card, pools.EffectType, job.rarity, imageURI)
	metadataURI, err := s.publisher.PublishJSON(ctx, job.metadata, strconv.FormatUint(job.tokenID, 10))
	if err != nil {
		return err
	}
	job.metadataURI = metadataURI
	job.state = domain.CardMetadataPublished

	start := time.Now()
	txHash, err := s.minter.Mint(ctx, run.recipient, job.tokenID, metadataURI)
	if err != nil {
		return err
	}
	s.metrics.ChainConfirmSeconds.Observe(time.Since(start).Seconds())
	s.metrics.CardsMinted.WithLabelValues(string(job.rarity)).Inc()
	job.txHash = txHash
	job.state = domain.CardMinted

	// The token exists on chain now; the remaining writes must not be cut
	// short by the caller going away.
	persistCtx := context.WithoutCancel(ctx)

	advanceErr := s.counter.Advance(persistCtx, job.tokenID)
	if advanceErr != nil {
		run.logger.Error("counter advance failed",
			zap.Uint64("token_id", job.tokenID),
			zap.String("tx", txHash),
			zap.Error(advanceErr))
	}

	minted := job.minted(run.recipient)
	if err := s.record(persistCtx, minted); err != nil {
		s.queueReconciliation(persistCtx, run, minted, err)
		return err
	}
	job.state = domain.CardRecorded

	run.logger.Info("card recorded",
		zap.Uint64("token_id", job.tokenID),
		zap.String("rarity", string(job.rarity)),
		zap.String("tx", txHash),
		zap.String("metadata_uri", metadataURI))

	if advanceErr != nil {
		return fmt.Errorf("%w: advance to %d: %v", domain.ErrCounterUnavailable, job.tokenID, advanceErr)
	}
	return nil
}

// sample draws cards until the image policy has art for one.
func (s *MintService) sample(pools domain.TraitPools) (domain.Card, content.Asset, error) {
	var lastErr error
	for attempt := 0; attempt < s.sampleAttempts; attempt++ {
		card := s.sampler.Sample(pools)
		asset, err := s.images.Resolve(card)
		if err == nil {
			return card, asset, nil
		}
		if !errors.Is(err, domain.ErrNoMatchingAsset) {
			return domain.Card{}, content.Asset{}, err
		}
		lastErr = err
	}
	return domain.Card{}, content.Asset{}, fmt.Errorf("after %d draws: %w", s.sampleAttempts, lastErr)
}

func (s *MintService) publishImage(ctx context.Context, run *packRun, asset content.Asset) (string, error) {
	if uri, ok := run.images[asset.Path]; ok {
		return uri, nil
	}
	data, err := asset.Read()
	if err != nil {
		return "", err
	}
	uri, err := s.publisher.PublishImage(ctx, data, asset.Name)
	if err != nil {
		return "", err
	}
	run.images[asset.Path] = uri
	return uri, nil
}

func (s *MintService) record(ctx context.Context, card domain.MintedCard) error {
	if err := s.ledger.RecordMint(ctx, card); err != nil {
		return fmt.Errorf("%w: record token %d: %w", domain.ErrLedger, card.TokenID, err)
	}
	if err := s.ledger.AppendOwnedToken(ctx, card.Recipient, card.TokenID); err != nil {
		return fmt.Errorf("%w: append token %d to %s: %w", domain.ErrLedger, card.TokenID, card.Recipient, err)
	}
	return nil
}

func (s *MintService) queueReconciliation(ctx context.Context, run *packRun, card domain.MintedCard, cause error) {
	now := time.Now()
	item := &domain.ReconciliationItem{
		ID:        uuid.NewString(),
		RunID:     run.id,
		Card:      card,
		Recipient: card.Recipient,
		Metadata:  card.Metadata,
		LastError: cause.Error(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	fields := []zap.Field{
		zap.String("event", "reconciliation_item"),
		zap.String("item_id", item.ID),
		zap.Uint64("token_id", card.TokenID),
		zap.String("tx", card.TransactionHash),
		zap.String("metadata_uri", card.MetadataURI),
		zap.Error(cause),
	}
	if s.reconciler == nil {
		run.logger.Error("minted card not recorded, no reconciliation queue", append(fields, zap.Any("card", item))...)
		return
	}
	if err := s.reconciler.Enqueue(ctx, item); err != nil {
		run.logger.Error("minted card not recorded, enqueue failed",
			append(fields, zap.Any("card", item), zap.NamedError("enqueue_error", err))...)
		return
	}
	run.logger.Error("minted card not recorded, queued for reconciliation", fields...)
}

func (s *MintService) publish(run *packRun, event domain.MintEvent) {
	event.RunID = run.id
	event.PackType = run.tier.Name
	event.Recipient = run.recipient
	s.events.Publish(run.recipient, event)
}

// packLabel keeps metric cardinality bounded for unknown pack names.
func packLabel(name string) string {
	if _, err := domain.ResolvePackTier(name); err != nil {
		return "unknown"
	}
	return name
}
