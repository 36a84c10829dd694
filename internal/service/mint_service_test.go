package service_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dom/pack-minter/internal/domain"
	"github.com/dom/pack-minter/internal/service"
	"github.com/dom/pack-minter/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mint(t *testing.T, svc *service.MintService, recipient, pack string) (*service.MintResult, error) {
	t.Helper()
	return svc.Mint(context.Background(), service.MintRequest{Recipient: recipient, PackType: pack})
}

func TestMintService_BronzePack(t *testing.T) {
	h := testutil.NewMintHarness(t, 0)
	svc := h.Service()
	recipient := testutil.TestAddress(1)

	result, err := mint(t, svc, recipient, "Bronze")
	require.NoError(t, err)

	testutil.AssertTokenIDs(t, result.Minted, 1, 2, 3)
	testutil.AssertRarities(t, result.Minted, domain.RarityCommon, domain.RarityCommon, domain.RarityRare)
	assert.Empty(t, result.Unrecorded)
	assert.Nil(t, result.Failure)
	assert.Equal(t, "Bronze", result.PackType)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, uint64(3), h.Counter.Value())

	// One pinned image per run, one metadata document per card.
	assert.Equal(t, 1, h.Publisher.ImageCalls())
	assert.Equal(t, 3, h.Publisher.JSONCalls())

	calls := h.Minter.Calls()
	require.Len(t, calls, 3)
	for i, call := range calls {
		assert.Equal(t, recipient, call.Recipient)
		assert.Equal(t, uint64(i+1), call.TokenID)
		assert.Equal(t, result.Minted[i].MetadataURI, call.MetadataURI)
		assert.Equal(t, testutil.TxHash(call.TokenID), result.Minted[i].TransactionHash)
	}

	assert.Equal(t, 3, h.NFTs.Len())
	wallet, err := h.Wallets.GetByAddress(context.Background(), recipient)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, []uint64(wallet.OwnedTokenIDs))

	assert.Equal(t, []domain.MintEventType{
		domain.EventPackStarted,
		domain.EventCardMinted,
		domain.EventCardMinted,
		domain.EventCardMinted,
		domain.EventPackCompleted,
	}, h.Events.Types())
}

func TestMintService_MetadataDocument(t *testing.T) {
	h := testutil.NewMintHarness(t, 41)
	svc := h.Service()

	result, err := mint(t, svc, testutil.TestAddress(1), "Bronze")
	require.NoError(t, err)
	require.Len(t, result.Minted, 3)

	doc, ok := h.Publisher.Document("42")
	require.True(t, ok)
	meta, ok := doc.(domain.CardMetadata)
	require.True(t, ok)

	assert.Equal(t, "SegaUNLEASHED #42", meta.Name)
	assert.Equal(t, result.Minted[0].ImageURI, meta.Image)
	assert.Equal(t, "Common", meta.Attribute("Rarity"))
	assert.Contains(t, domain.AuraPools().Effects, meta.Attribute("Aura"))
	assert.Contains(t, domain.AuraPools().Characters, meta.Attribute("Character"))
}

func TestMintService_ValidationHasNoSideEffects(t *testing.T) {
	tests := []struct {
		name      string
		recipient string
		pack      string
		reject    bool
		wantErr   error
	}{
		{
			name:      "unknown pack",
			recipient: testutil.TestAddress(1),
			pack:      "Platinum",
			wantErr:   domain.ErrUnknownPackTier,
		},
		{
			name:      "pack names are case sensitive",
			recipient: testutil.TestAddress(1),
			pack:      "gold",
			wantErr:   domain.ErrUnknownPackTier,
		},
		{
			name:    "missing recipient",
			pack:    "Gold",
			wantErr: domain.ErrMissingParameter,
		},
		{
			name:      "missing pack",
			recipient: testutil.TestAddress(1),
			wantErr:   domain.ErrMissingParameter,
		},
		{
			name:      "malformed recipient",
			recipient: "not-an-address",
			pack:      "Gold",
			wantErr:   domain.ErrInvalidRecipient,
		},
		{
			name:      "recipient rejected by chain",
			recipient: testutil.TestAddress(1),
			pack:      "Gold",
			reject:    true,
			wantErr:   domain.ErrInvalidRecipient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := testutil.NewMintHarness(t, 5)
			h.Minter.RejectRecipient = tt.reject
			svc := h.Service()

			result, err := mint(t, svc, tt.recipient, tt.pack)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, domain.IsValidation(err))
			assert.Nil(t, result)

			assert.Zero(t, h.Publisher.ImageCalls())
			assert.Zero(t, h.Publisher.JSONCalls())
			assert.Empty(t, h.Minter.Calls())
			assert.Equal(t, uint64(5), h.Counter.Value())
			assert.Empty(t, h.Events.Types())
		})
	}
}

func TestMintService_ChainFailureStopsRun(t *testing.T) {
	h := testutil.NewMintHarness(t, 10)
	h.Minter.FailAt = 2
	svc := h.Service()

	result, err := mint(t, svc, testutil.TestAddress(2), "Gold")
	require.Error(t, err)
	require.NotNil(t, result)
	assert.ErrorIs(t, err, domain.ErrChain)

	testutil.AssertTokenIDs(t, result.Minted, 11)
	assert.Equal(t, uint64(11), h.Counter.Value())
	assert.Empty(t, result.PendingTransaction)

	var stepErr *domain.StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, domain.CardMetadataPublished, stepErr.Step)
	assert.Equal(t, uint64(12), stepErr.TokenID)
	assert.Equal(t, domain.RarityCommon, stepErr.Rarity)
	assert.Equal(t, stepErr, result.Failure)

	// No further cards are attempted.
	assert.Len(t, h.Minter.Calls(), 2)
	assert.Equal(t, 2, h.Publisher.JSONCalls())
	assert.Equal(t, 1, h.NFTs.Len())

	types := h.Events.Types()
	assert.Equal(t, domain.EventCardFailed, types[len(types)-1])
}

func TestMintService_NextRunResumesAfterLastConfirmed(t *testing.T) {
	h := testutil.NewMintHarness(t, 10)
	h.Minter.FailAt = 2
	svc := h.Service()

	_, err := mint(t, svc, testutil.TestAddress(2), "Gold")
	require.Error(t, err)

	h.Minter.FailAt = 0
	result, err := mint(t, svc, testutil.TestAddress(2), "Bronze")
	require.NoError(t, err)
	testutil.AssertTokenIDs(t, result.Minted, 12, 13, 14)
}

func TestMintService_PublishFailures(t *testing.T) {
	tests := []struct {
		name        string
		failImageAt int
		failJSONAt  int
		wantStep    domain.CardState
		wantMinted  []uint64
	}{
		{
			name:        "image upload",
			failImageAt: 1,
			wantStep:    domain.CardSampled,
		},
		{
			name:       "metadata upload on second card",
			failJSONAt: 2,
			wantStep:   domain.CardAssetPublished,
			wantMinted: []uint64{1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := testutil.NewMintHarness(t, 0)
			h.Publisher.FailImageAt = tt.failImageAt
			h.Publisher.FailJSONAt = tt.failJSONAt
			svc := h.Service()

			result, err := mint(t, svc, testutil.TestAddress(3), "Silver")
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrPublish)

			var stepErr *domain.StepError
			require.True(t, errors.As(err, &stepErr))
			assert.Equal(t, tt.wantStep, stepErr.Step)

			testutil.AssertTokenIDs(t, result.Minted, tt.wantMinted...)
			assert.Equal(t, uint64(len(tt.wantMinted)), h.Counter.Value())
			assert.Len(t, h.Minter.Calls(), len(tt.wantMinted))
		})
	}
}

func TestMintService_ChainTimeoutReportsPendingTransaction(t *testing.T) {
	h := testutil.NewMintHarness(t, 0)
	h.Minter.FailAt = 2
	h.Minter.Err = &domain.ChainTimeoutError{TxHash: "0xpending"}
	svc := h.Service()

	result, err := mint(t, svc, testutil.TestAddress(4), "Bronze")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrChainTimeout)
	assert.Equal(t, "0xpending", result.PendingTransaction)
	testutil.AssertTokenIDs(t, result.Minted, 1)
	// The pending id is not claimed until it is confirmed.
	assert.Equal(t, uint64(1), h.Counter.Value())
}

func TestMintService_LedgerFailureQueuesReconciliation(t *testing.T) {
	h := testutil.NewMintHarness(t, 0)
	h.NFTs.CreateErr = errors.New("connection refused")
	svc := h.Service()
	recipient := testutil.TestAddress(5)

	result, err := mint(t, svc, recipient, "Bronze")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLedger)

	var stepErr *domain.StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, domain.CardMinted, stepErr.Step)

	assert.Empty(t, result.Minted)
	testutil.AssertTokenIDs(t, result.Unrecorded, 1)
	// On chain, so the id is spent.
	assert.Equal(t, uint64(1), h.Counter.Value())

	items, err := h.Reconcile.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, uint64(1), items[0].Card.TokenID)
	assert.Equal(t, recipient, items[0].Recipient)
	assert.Equal(t, result.RunID, items[0].RunID)
	assert.Contains(t, items[0].LastError, "connection refused")

	h.NFTs.CreateErr = nil
	report, err := h.Reconcile.ReplayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, service.ReplayReport{Resolved: 1, Remaining: 0}, report)

	wallet, err := h.Wallets.GetByAddress(context.Background(), recipient)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, []uint64(wallet.OwnedTokenIDs))

	result, err = mint(t, svc, recipient, "Bronze")
	require.NoError(t, err)
	testutil.AssertTokenIDs(t, result.Minted, 2, 3, 4)
}

func TestMintService_CounterFailures(t *testing.T) {
	t.Run("peek", func(t *testing.T) {
		h := testutil.NewMintHarness(t, 0)
		h.Counter.PeekErr = errors.New("redis down")
		svc := h.Service()

		result, err := mint(t, svc, testutil.TestAddress(6), "Bronze")
		assert.ErrorIs(t, err, domain.ErrCounterUnavailable)
		require.NotNil(t, result)
		assert.Empty(t, result.Minted)
		assert.Zero(t, h.Publisher.ImageCalls())
		assert.Empty(t, h.Minter.Calls())
	})

	t.Run("advance", func(t *testing.T) {
		h := testutil.NewMintHarness(t, 0)
		h.Counter.AdvanceErr = errors.New("redis down")
		svc := h.Service()

		result, err := mint(t, svc, testutil.TestAddress(6), "Bronze")
		assert.ErrorIs(t, err, domain.ErrCounterUnavailable)
		// The confirmed card is still recorded; the run stops before reusing
		// an id the counter could not store.
		testutil.AssertTokenIDs(t, result.Minted, 1)
		assert.Len(t, h.Minter.Calls(), 1)
		assert.Equal(t, 1, h.NFTs.Len())
	})
}

func TestMintService_ResamplesUntilAssetExists(t *testing.T) {
	h := testutil.NewMintHarness(t, 0)
	h.Images.MissFor = 2
	svc := h.Service()

	result, err := mint(t, svc, testutil.TestAddress(7), "Bronze")
	require.NoError(t, err)
	testutil.AssertTokenIDs(t, result.Minted, 1, 2, 3)
	assert.Equal(t, 5, h.Images.Resolutions())
}

func TestMintService_NoMatchingAsset(t *testing.T) {
	h := testutil.NewMintHarness(t, 0)
	h.Images.MissFor = 1000
	svc := h.Service()

	result, err := mint(t, svc, testutil.TestAddress(7), "Bronze")
	assert.ErrorIs(t, err, domain.ErrNoMatchingAsset)

	var stepErr *domain.StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, domain.CardPending, stepErr.Step)
	assert.Empty(t, result.Minted)
	assert.Zero(t, h.Publisher.ImageCalls())
	assert.Zero(t, h.Counter.Value())
}

func TestMintService_ConcurrentRunsNeverShareIDs(t *testing.T) {
	h := testutil.NewMintHarness(t, 100)
	svc := h.Service()

	const runs = 6
	var wg sync.WaitGroup
	var mu sync.Mutex
	var ids []uint64

	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := mint(t, svc, testutil.TestAddress(i), "Bronze")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			for j, card := range result.Minted {
				if j > 0 {
					assert.Equal(t, result.Minted[j-1].TokenID+1, card.TokenID, "ids within a run are contiguous")
				}
				ids = append(ids, card.TokenID)
			}
		}(i)
	}
	wg.Wait()

	require.Len(t, ids, runs*3)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for i, id := range ids {
		assert.Equal(t, uint64(101+i), id)
	}
	assert.Equal(t, uint64(100+runs*3), h.Counter.Value())
}

func TestMintService_StopsWhenMintLockIsLost(t *testing.T) {
	h := testutil.NewMintHarness(t, 0)
	locker := testutil.NewRecordingLocker()
	h.Minter.OnMint = func(tokenID uint64) {
		if tokenID == 1 {
			locker.Current().Lose(errors.New("lock refresh refused"))
		}
	}
	svc := h.ServiceWith(h.Counter, locker)

	result, err := mint(t, svc, testutil.TestAddress(1), "Bronze")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMintLockLost)

	testutil.AssertTokenIDs(t, result.Minted, 1)
	var stepErr *domain.StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, domain.CardPending, stepErr.Step)
	assert.Equal(t, uint64(2), stepErr.TokenID)

	// Nothing is sent to the chain without the lock.
	assert.Len(t, h.Minter.Calls(), 1)
	assert.Equal(t, uint64(1), h.Counter.Value())

	h.Minter.OnMint = nil
	result, err = mint(t, svc, testutil.TestAddress(1), "Bronze")
	require.NoError(t, err)
	testutil.AssertTokenIDs(t, result.Minted, 2, 3, 4)
}

func TestMintService_DrainFinishesCardInFlight(t *testing.T) {
	h := testutil.NewMintHarness(t, 0)
	entered := make(chan struct{})
	proceed := make(chan struct{})
	h.Minter.OnMint = func(tokenID uint64) {
		if tokenID == 1 {
			close(entered)
			<-proceed
		}
	}
	svc := h.Service()

	type outcome struct {
		result *service.MintResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := svc.Mint(context.Background(), service.MintRequest{Recipient: testutil.TestAddress(1), PackType: "Gold"})
		done <- outcome{result, err}
	}()
	<-entered

	// The run is waiting on the chain, so a short drain times out.
	shortCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, svc.Drain(shortCtx), context.DeadlineExceeded)

	refused, err := mint(t, svc, testutil.TestAddress(2), "Bronze")
	assert.Nil(t, refused)
	assert.ErrorIs(t, err, domain.ErrShuttingDown)

	close(proceed)
	out := <-done
	require.NotNil(t, out.result)
	assert.ErrorIs(t, out.err, domain.ErrShuttingDown)
	testutil.AssertTokenIDs(t, out.result.Minted, 1)
	assert.Empty(t, out.result.Unrecorded)

	// The card that was on chain is fully recorded before the run stops.
	assert.Equal(t, uint64(1), h.Counter.Value())
	assert.Equal(t, 1, h.NFTs.Len())
	assert.Len(t, h.Minter.Calls(), 1)

	assert.NoError(t, svc.Drain(context.Background()))
}
