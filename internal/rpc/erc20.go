package rpc

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

const erc20ABI = `[
	{"type":"function","name":"balanceOf","stateMutability":"view",
	 "inputs":[{"name":"account","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"decimals","stateMutability":"view",
	 "inputs":[],
	 "outputs":[{"name":"","type":"uint8"}]}
]`

var parsedERC20 abi.ABI

func init() {
	var err error
	parsedERC20, err = abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		panic(fmt.Sprintf("erc20 abi: %v", err))
	}
}

// ERC20Reader reads token balances with eth_call at the latest block.
type ERC20Reader struct {
	client *Client
}

func NewERC20Reader(client *Client) *ERC20Reader {
	return &ERC20Reader{client: client}
}

func (r *ERC20Reader) BalanceOf(ctx context.Context, token, account common.Address) (*uint256.Int, error) {
	out, err := r.call(ctx, token, "balanceOf", account)
	if err != nil {
		return nil, err
	}
	bal, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("balanceOf %s: unexpected return %T", token.Hex(), out[0])
	}
	v, overflow := uint256.FromBig(bal)
	if overflow {
		return nil, fmt.Errorf("balanceOf %s: overflow", token.Hex())
	}
	return v, nil
}

func (r *ERC20Reader) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	out, err := r.call(ctx, token, "decimals")
	if err != nil {
		return 0, err
	}
	d, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals %s: unexpected return %T", token.Hex(), out[0])
	}
	return d, nil
}

func (r *ERC20Reader) call(ctx context.Context, token common.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsedERC20.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	var result hexutil.Bytes
	msg := CallMsg{To: token.Hex(), Data: hexutil.Encode(data)}
	if err := r.client.Call(ctx, "eth_call", []interface{}{msg, "latest"}, &result); err != nil {
		return nil, fmt.Errorf("eth_call %s on %s: %w", method, token.Hex(), err)
	}

	out, err := parsedERC20.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("unpack %s: %d values", method, len(out))
	}
	return out, nil
}
