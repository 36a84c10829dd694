// Package chain submits safeMint transactions to the card contract on an EVM
// network and waits for their receipts.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/dom/pack-minter/internal/domain"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

const safeMintABI = `[{"type":"function","name":"safeMint","stateMutability":"nonpayable",` +
	`"inputs":[{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"},{"name":"uri","type":"string"}],` +
	`"outputs":[]}]`

// Backend is the subset of an RPC client the minter needs.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

type Config struct {
	RPCURL          string
	PrivateKey      string
	ContractAddress string
	// ChainID of 0 asks the node.
	ChainID        int64
	SubmitTimeout  time.Duration
	ConfirmTimeout time.Duration
}

type Minter struct {
	backend        Backend
	contract       *bind.BoundContract
	address        common.Address
	auth           *bind.TransactOpts
	submitTimeout  time.Duration
	confirmTimeout time.Duration
	logger         *zap.Logger
}

// Dial connects to cfg.RPCURL and builds a Minter for the configured contract.
func Dial(ctx context.Context, cfg Config, logger *zap.Logger) (*Minter, *ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial rpc: %w", err)
	}

	chainID := big.NewInt(cfg.ChainID)
	if cfg.ChainID == 0 {
		chainID, err = client.ChainID(ctx)
		if err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("query chain id: %w", err)
		}
	}

	key, err := ParsePrivateKey(cfg.PrivateKey)
	if err != nil {
		client.Close()
		return nil, nil, err
	}

	m, err := NewMinter(client, key, chainID, cfg, logger)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return m, client, nil
}

func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, errors.New("invalid signing key")
	}
	return key, nil
}

func NewMinter(backend Backend, key *ecdsa.PrivateKey, chainID *big.Int, cfg Config, logger *zap.Logger) (*Minter, error) {
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", cfg.ContractAddress)
	}
	parsed, err := abi.JSON(strings.NewReader(safeMintABI))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}
	auth, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, fmt.Errorf("build transactor: %w", err)
	}

	address := common.HexToAddress(cfg.ContractAddress)
	submit := cfg.SubmitTimeout
	if submit <= 0 {
		submit = 30 * time.Second
	}
	confirm := cfg.ConfirmTimeout
	if confirm <= 0 {
		confirm = 2 * time.Minute
	}

	return &Minter{
		backend:        backend,
		contract:       bind.NewBoundContract(address, parsed, backend, backend, backend),
		address:        address,
		auth:           auth,
		submitTimeout:  submit,
		confirmTimeout: confirm,
		logger: logger.Named("chain").With(
			zap.String("contract", address.Hex()),
			zap.String("signer", auth.From.Hex()),
			zap.String("chain_id", chainID.String()),
		),
	}, nil
}

// Signer is the address transactions are sent from.
func (m *Minter) Signer() common.Address { return m.auth.From }

func (m *Minter) ValidateRecipient(recipient string) error {
	if !strings.HasPrefix(strings.ToLower(recipient), "0x") || !common.IsHexAddress(recipient) {
		return fmt.Errorf("%w: %q", domain.ErrInvalidRecipient, recipient)
	}
	return nil
}

// Mint sends safeMint(recipient, tokenID, metadataURI) and blocks until the
// transaction has one confirmation or the confirm timeout passes.
func (m *Minter) Mint(ctx context.Context, recipient string, tokenID uint64, metadataURI string) (string, error) {
	if err := m.ValidateRecipient(recipient); err != nil {
		return "", err
	}

	submitCtx, cancelSubmit := context.WithTimeout(ctx, m.submitTimeout)
	defer cancelSubmit()

	opts := *m.auth
	opts.Context = submitCtx

	tx, err := m.contract.Transact(&opts, "safeMint",
		common.HexToAddress(recipient), new(big.Int).SetUint64(tokenID), metadataURI)
	if err != nil {
		m.logger.Error("submit failed", zap.Uint64("token_id", tokenID), zap.Error(err))
		return "", fmt.Errorf("%w: submit token %d: %v", domain.ErrChain, tokenID, err)
	}

	txHash := tx.Hash().Hex()
	m.logger.Info("submitted",
		zap.Uint64("token_id", tokenID),
		zap.String("tx", txHash),
		zap.Uint64("nonce", tx.Nonce()))

	waitCtx, cancelWait := context.WithTimeout(ctx, m.confirmTimeout)
	defer cancelWait()

	receipt, err := bind.WaitMined(waitCtx, m.backend, tx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			m.logger.Warn("confirmation timed out", zap.Uint64("token_id", tokenID), zap.String("tx", txHash))
			return txHash, &domain.ChainTimeoutError{TxHash: txHash, Wait: m.confirmTimeout}
		}
		return txHash, fmt.Errorf("%w: wait for %s: %v", domain.ErrChain, txHash, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		m.logger.Error("transaction reverted", zap.Uint64("token_id", tokenID), zap.String("tx", txHash))
		return txHash, fmt.Errorf("%w: transaction %s reverted", domain.ErrChain, txHash)
	}

	m.logger.Info("confirmed",
		zap.Uint64("token_id", tokenID),
		zap.String("tx", txHash),
		zap.Uint64("block", receipt.BlockNumber.Uint64()),
		zap.Uint64("gas_used", receipt.GasUsed))
	return txHash, nil
}
