package ledger

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Minimal ERC-20 surface the router needs.
const erc20ABI = `[
  {"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"name":"transfer","type":"function","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
  {"name":"transferFrom","type":"function","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
  {"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
  {"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

// EthLedger moves an ERC-20 token through a JSON-RPC endpoint. The router's
// own key signs the transfer/approve transactions.
type EthLedger struct {
	client    *ethclient.Client
	contract  *bind.BoundContract
	address   common.Address
	transacts *bind.TransactOpts
}

type EthLedgerConfig struct {
	RPCURL        string
	TokenAddress  string
	PrivateKeyHex string
}

func NewEthLedger(ctx context.Context, cfg EthLedgerConfig) (*EthLedger, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	if cfg.TokenAddress == "" {
		return nil, fmt.Errorf("token address is required")
	}

	cli, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	parsedABI, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}

	address := common.HexToAddress(cfg.TokenAddress)
	bound := bind.NewBoundContract(address, parsedABI, cli, cli, cli)

	pk, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	chainID, err := cli.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}
	txOpts, err := bind.NewKeyedTransactorWithChainID(pk, chainID)
	if err != nil {
		return nil, fmt.Errorf("transactor: %w", err)
	}

	return &EthLedger{
		client:    cli,
		contract:  bound,
		address:   address,
		transacts: txOpts,
	}, nil
}

func (l *EthLedger) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	var out []interface{}
	err := l.contract.Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", account)
	if err != nil {
		return nil, fmt.Errorf("balanceOf: %w", err)
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

func (l *EthLedger) Transfer(ctx context.Context, to common.Address, amount *big.Int) error {
	return l.transact(ctx, "transfer", to, amount)
}

func (l *EthLedger) TransferFrom(ctx context.Context, from, to common.Address, amount *big.Int) error {
	return l.transact(ctx, "transferFrom", from, to, amount)
}

func (l *EthLedger) Approve(ctx context.Context, spender common.Address, amount *big.Int) error {
	return l.transact(ctx, "approve", spender, amount)
}

func (l *EthLedger) transact(ctx context.Context, method string, args ...interface{}) error {
	opts := *l.transacts
	opts.Context = ctx

	tx, err := l.contract.Transact(&opts, method, args...)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTransferFailed, method, err)
	}

	receipt, err := bind.WaitMined(ctx, l.client, tx)
	if err != nil {
		return fmt.Errorf("%w: %s receipt: %v", ErrTransferFailed, method, err)
	}
	if receipt.Status == 0 {
		return fmt.Errorf("%w: %s reverted in tx %s", ErrTransferFailed, method, tx.Hash().Hex())
	}
	return nil
}
