package chain_test

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dom/pack-minter/internal/chain"
	"github.com/dom/pack-minter/internal/domain"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const contractAddress = "0x00000000000000000000000000000000000c0de1"

// fakeBackend accepts every transaction and reports receipts on demand.
type fakeBackend struct {
	mu            sync.Mutex
	sent          []*types.Transaction
	sendErr       error
	noReceipt     bool
	receiptStatus uint64
}

func (b *fakeBackend) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (b *fakeBackend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return nil, nil
}

func (b *fakeBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(1), BaseFee: big.NewInt(1_000_000_000)}, nil
}

func (b *fakeBackend) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return []byte{0x60}, nil
}

func (b *fakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return uint64(len(b.sent)), nil
}

func (b *fakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(2_000_000_000), nil
}

func (b *fakeBackend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (b *fakeBackend) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return 150_000, nil
}

func (b *fakeBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		return b.sendErr
	}
	b.sent = append(b.sent, tx)
	return nil
}

func (b *fakeBackend) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func (b *fakeBackend) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return nil, errors.New("not supported")
}

func (b *fakeBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.noReceipt {
		return nil, ethereum.NotFound
	}
	return &types.Receipt{
		Status:      b.receiptStatus,
		TxHash:      txHash,
		BlockNumber: big.NewInt(2),
		GasUsed:     90_000,
	}, nil
}

func (b *fakeBackend) sentCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sent)
}

func newMinter(t *testing.T, backend *fakeBackend) *chain.Minter {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	m, err := chain.NewMinter(backend, key, big.NewInt(1337), chain.Config{
		ContractAddress: contractAddress,
		SubmitTimeout:   time.Second,
		ConfirmTimeout:  200 * time.Millisecond,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return m
}

func TestMinter_Mint(t *testing.T) {
	backend := &fakeBackend{receiptStatus: types.ReceiptStatusSuccessful}
	minter := newMinter(t, backend)
	recipient := "0x00000000000000000000000000000000000abc01"

	txHash, err := minter.Mint(context.Background(), recipient, 42, "ipfs://metadata/42")
	require.NoError(t, err)

	require.Equal(t, 1, backend.sentCount())
	tx := backend.sent[0]
	assert.Equal(t, tx.Hash().Hex(), txHash)
	assert.Equal(t, common.HexToAddress(contractAddress), *tx.To())

	parsed, err := abi.JSON(strings.NewReader(`[{"type":"function","name":"safeMint","stateMutability":"nonpayable",` +
		`"inputs":[{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"},{"name":"uri","type":"string"}],"outputs":[]}]`))
	require.NoError(t, err)
	method := parsed.Methods["safeMint"]
	assert.Equal(t, method.ID, tx.Data()[:4])

	args, err := method.Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(recipient), args[0])
	assert.Equal(t, big.NewInt(42), args[1])
	assert.Equal(t, "ipfs://metadata/42", args[2])
}

func TestMinter_SequentialNonces(t *testing.T) {
	backend := &fakeBackend{receiptStatus: types.ReceiptStatusSuccessful}
	minter := newMinter(t, backend)

	for id := uint64(1); id <= 3; id++ {
		_, err := minter.Mint(context.Background(), "0x00000000000000000000000000000000000abc01", id, "uri")
		require.NoError(t, err)
	}
	for i, tx := range backend.sent {
		assert.Equal(t, uint64(i), tx.Nonce())
	}
}

func TestMinter_Failures(t *testing.T) {
	tests := []struct {
		name        string
		backend     *fakeBackend
		recipient   string
		wantErr     error
		wantTimeout bool
		wantSent    int
	}{
		{
			name:      "invalid recipient",
			backend:   &fakeBackend{receiptStatus: types.ReceiptStatusSuccessful},
			recipient: "0x1234",
			wantErr:   domain.ErrInvalidRecipient,
		},
		{
			name:      "submit rejected",
			backend:   &fakeBackend{sendErr: errors.New("insufficient funds")},
			recipient: "0x00000000000000000000000000000000000abc01",
			wantErr:   domain.ErrChain,
		},
		{
			name:      "reverted",
			backend:   &fakeBackend{receiptStatus: types.ReceiptStatusFailed},
			recipient: "0x00000000000000000000000000000000000abc01",
			wantErr:   domain.ErrChain,
			wantSent:  1,
		},
		{
			name:        "no receipt in time",
			backend:     &fakeBackend{noReceipt: true},
			recipient:   "0x00000000000000000000000000000000000abc01",
			wantErr:     domain.ErrChainTimeout,
			wantTimeout: true,
			wantSent:    1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			minter := newMinter(t, tt.backend)

			txHash, err := minter.Mint(context.Background(), tt.recipient, 7, "uri")
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantSent, tt.backend.sentCount())

			var timeout *domain.ChainTimeoutError
			assert.Equal(t, tt.wantTimeout, errors.As(err, &timeout))
			if tt.wantTimeout {
				assert.Equal(t, tt.backend.sent[0].Hash().Hex(), timeout.TxHash)
				assert.Equal(t, txHash, timeout.TxHash)
			}
		})
	}
}

func TestMinter_CallerCancelIsNotTimeout(t *testing.T) {
	backend := &fakeBackend{noReceipt: true}
	minter := newMinter(t, backend)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := minter.Mint(ctx, "0x00000000000000000000000000000000000abc01", 7, "uri")
	assert.ErrorIs(t, err, domain.ErrChain)
	assert.NotErrorIs(t, err, domain.ErrChainTimeout)
}

func TestNewMinter_Config(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	_, err = chain.NewMinter(&fakeBackend{}, key, big.NewInt(1), chain.Config{ContractAddress: "nope"}, zaptest.NewLogger(t))
	assert.Error(t, err)

	m, err := chain.NewMinter(&fakeBackend{}, key, big.NewInt(1), chain.Config{ContractAddress: contractAddress}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), m.Signer())
}

func TestParsePrivateKey(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	hexKey := common.Bytes2Hex(crypto.FromECDSA(key))

	for _, input := range []string{hexKey, "0x" + hexKey, " " + hexKey + "\n"} {
		parsed, err := chain.ParsePrivateKey(input)
		require.NoError(t, err)
		assert.Equal(t, key.D, parsed.D)
	}

	_, err = chain.ParsePrivateKey("not-a-key")
	assert.Error(t, err)
	assert.NotContains(t, err.Error(), "not-a-key")
}
