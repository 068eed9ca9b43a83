package erc4337

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const accountABIJSON = `[
	{"type":"function","name":"createAccount","stateMutability":"nonpayable",
	 "inputs":[{"name":"owner","type":"address"},{"name":"index","type":"uint256"}],
	 "outputs":[{"name":"account","type":"address"}]},
	{"type":"function","name":"executeBatch","stateMutability":"nonpayable",
	 "inputs":[{"name":"dest","type":"address[]"},{"name":"value","type":"uint256[]"},{"name":"func","type":"bytes[]"}],
	 "outputs":[]},
	{"type":"function","name":"getNonce","stateMutability":"view",
	 "inputs":[{"name":"sender","type":"address"},{"name":"key","type":"uint192"}],
	 "outputs":[{"name":"nonce","type":"uint256"}]}
]`

var accountABI = mustParseABI(accountABIJSON)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Call is one entry of an account batch.
type Call struct {
	To    common.Address
	Value *big.Int
	Data  []byte
}

// AccountConfig describes a counterfactual smart account factory. Accounts are minimal
// proxies, so the init code hash is fixed and the owner only enters through the salt.
type AccountConfig struct {
	Factory      common.Address
	EntryPoint   common.Address
	InitCodeHash common.Hash
	Index        *big.Int
}

func (c AccountConfig) index() *big.Int {
	if c.Index == nil {
		return new(big.Int)
	}
	return c.Index
}

// Salt is keccak256(abi.encode(owner, index)).
func (c AccountConfig) Salt(owner common.Address) [32]byte {
	encoded, _ := abi.Arguments{{Type: addressTy}, {Type: uint256Ty}}.Pack(owner, c.index())
	return crypto.Keccak256Hash(encoded)
}

// Address derives the CREATE2 address the factory deploys for owner.
func (c AccountConfig) Address(owner common.Address) common.Address {
	return crypto.CreateAddress2(c.Factory, c.Salt(owner), c.InitCodeHash.Bytes())
}

// FactoryData is the createAccount calldata placed in the first user operation.
func (c AccountConfig) FactoryData(owner common.Address) ([]byte, error) {
	data, err := accountABI.Pack("createAccount", owner, c.index())
	if err != nil {
		return nil, fmt.Errorf("failed to pack createAccount: %w", err)
	}
	return data, nil
}

// EncodeExecuteBatch encodes calls in order as executeBatch calldata. A nil value is zero.
func EncodeExecuteBatch(calls []Call) ([]byte, error) {
	if len(calls) == 0 {
		return nil, fmt.Errorf("empty batch")
	}
	dest := make([]common.Address, len(calls))
	values := make([]*big.Int, len(calls))
	data := make([][]byte, len(calls))
	for i, call := range calls {
		dest[i] = call.To
		values[i] = orZero(call.Value)
		data[i] = call.Data
		if data[i] == nil {
			data[i] = []byte{}
		}
	}
	packed, err := accountABI.Pack("executeBatch", dest, values, data)
	if err != nil {
		return nil, fmt.Errorf("failed to pack executeBatch: %w", err)
	}
	return packed, nil
}

// DecodeExecuteBatch is the inverse of EncodeExecuteBatch.
func DecodeExecuteBatch(callData []byte) ([]Call, error) {
	method, err := accountABI.MethodById(callData)
	if err != nil || method.Name != "executeBatch" {
		return nil, fmt.Errorf("not an executeBatch call")
	}
	args, err := method.Inputs.Unpack(callData[4:])
	if err != nil {
		return nil, fmt.Errorf("failed to unpack executeBatch: %w", err)
	}
	dest := args[0].([]common.Address)
	values := args[1].([]*big.Int)
	data := args[2].([][]byte)
	calls := make([]Call, len(dest))
	for i := range dest {
		calls[i] = Call{To: dest[i], Value: values[i], Data: data[i]}
	}
	return calls, nil
}

// GetNonce reads the entry point's sequential nonce for sender under key.
func GetNonce(ctx context.Context, caller ethereum.ContractCaller, entryPoint, sender common.Address, key *big.Int) (*big.Int, error) {
	input, err := accountABI.Pack("getNonce", sender, orZero(key))
	if err != nil {
		return nil, fmt.Errorf("failed to pack getNonce: %w", err)
	}
	out, err := caller.CallContract(ctx, ethereum.CallMsg{To: &entryPoint, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call getNonce: %w", err)
	}
	values, err := accountABI.Unpack("getNonce", out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack nonce: %w", err)
	}
	return values[0].(*big.Int), nil
}

// MaxFeePerGas is baseFee * 1.5 + tip.
func MaxFeePerGas(baseFee, tip *big.Int) *big.Int {
	fee := new(big.Int).Mul(orZero(baseFee), big.NewInt(150))
	fee.Div(fee, big.NewInt(100))
	return fee.Add(fee, orZero(tip))
}
