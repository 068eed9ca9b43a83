package erc4337

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// EntryPointV07 is the canonical v0.7 entry point deployment.
var EntryPointV07 = common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")

// DummySignature is a well-formed ECDSA signature used while the operation is priced
// and sponsored, before the owner signs the final hash.
var DummySignature = hexutil.MustDecode("0xfffffffffffffffffffffffffffffff0000000000000000000000000000000007aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1c")

// UserOperation is the unpacked v0.7 user operation as exchanged with bundlers and paymasters.
type UserOperation struct {
	Sender                        common.Address  `json:"sender"`
	Nonce                         *hexutil.Big    `json:"nonce"`
	Factory                       *common.Address `json:"factory"`
	FactoryData                   hexutil.Bytes   `json:"factoryData"`
	CallData                      hexutil.Bytes   `json:"callData"`
	CallGasLimit                  *hexutil.Big    `json:"callGasLimit"`
	VerificationGasLimit          *hexutil.Big    `json:"verificationGasLimit"`
	PreVerificationGas            *hexutil.Big    `json:"preVerificationGas"`
	MaxPriorityFeePerGas          *hexutil.Big    `json:"maxPriorityFeePerGas"`
	MaxFeePerGas                  *hexutil.Big    `json:"maxFeePerGas"`
	Paymaster                     *common.Address `json:"paymaster"`
	PaymasterVerificationGasLimit *hexutil.Big    `json:"paymasterVerificationGasLimit"`
	PaymasterPostOpGasLimit       *hexutil.Big    `json:"paymasterPostOpGasLimit"`
	PaymasterData                 hexutil.Bytes   `json:"paymasterData"`
	Signature                     hexutil.Bytes   `json:"signature"`
}

type userOpAlias UserOperation

// userOpJSON shadows the numeric fields with plain hex strings. Bundlers send quantities
// with leading zeros ("0x00"), which hexutil.Big refuses, so they are decoded by hand.
type userOpJSON struct {
	Nonce                         string `json:"nonce"`
	CallGasLimit                  string `json:"callGasLimit,omitempty"`
	VerificationGasLimit          string `json:"verificationGasLimit,omitempty"`
	PreVerificationGas            string `json:"preVerificationGas,omitempty"`
	MaxPriorityFeePerGas          string `json:"maxPriorityFeePerGas,omitempty"`
	MaxFeePerGas                  string `json:"maxFeePerGas,omitempty"`
	PaymasterVerificationGasLimit string `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       string `json:"paymasterPostOpGasLimit,omitempty"`
	*userOpAlias
}

type quantityField struct {
	name  string
	text  *string
	value **hexutil.Big
}

func (aux *userOpJSON) quantities() []quantityField {
	uo := aux.userOpAlias
	return []quantityField{
		{"callGasLimit", &aux.CallGasLimit, &uo.CallGasLimit},
		{"verificationGasLimit", &aux.VerificationGasLimit, &uo.VerificationGasLimit},
		{"preVerificationGas", &aux.PreVerificationGas, &uo.PreVerificationGas},
		{"maxPriorityFeePerGas", &aux.MaxPriorityFeePerGas, &uo.MaxPriorityFeePerGas},
		{"maxFeePerGas", &aux.MaxFeePerGas, &uo.MaxFeePerGas},
		{"paymasterVerificationGasLimit", &aux.PaymasterVerificationGasLimit, &uo.PaymasterVerificationGasLimit},
		{"paymasterPostOpGasLimit", &aux.PaymasterPostOpGasLimit, &uo.PaymasterPostOpGasLimit},
	}
}

// MarshalJSON encodes the nonce as a 32-byte word and every other quantity unpadded.
func (uo *UserOperation) MarshalJSON() ([]byte, error) {
	aux := &userOpJSON{userOpAlias: (*userOpAlias)(uo)}
	aux.Nonce = fmt.Sprintf("0x%064x", bigOf(uo.Nonce))
	for _, f := range aux.quantities() {
		if *f.value != nil {
			*f.text = fmt.Sprintf("0x%x", (*f.value).ToInt())
		}
	}
	return json.Marshal(aux)
}

func (uo *UserOperation) UnmarshalJSON(data []byte) error {
	aux := &userOpJSON{userOpAlias: (*userOpAlias)(uo)}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	if aux.Nonce != "" {
		nonce, err := parseQuantity(aux.Nonce)
		if err != nil {
			return fmt.Errorf("invalid nonce: %w", err)
		}
		uo.Nonce = (*hexutil.Big)(nonce)
	}

	for _, f := range aux.quantities() {
		if *f.text == "" {
			continue
		}
		v, err := parseQuantity(*f.text)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", f.name, err)
		}
		*f.value = (*hexutil.Big)(v)
	}
	return nil
}

// parseQuantity accepts hex quantities with or without the 0x prefix and with leading zeros.
func parseQuantity(s string) (*big.Int, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex string: %s", s)
	}
	return v, nil
}

// PackedUserOp is the on-chain PackedUserOperation layout.
type PackedUserOp struct {
	Sender             common.Address `json:"sender"`
	Nonce              *big.Int       `json:"nonce"`
	InitCode           hexutil.Bytes  `json:"initCode"`
	CallData           hexutil.Bytes  `json:"callData"`
	AccountGasLimits   hexutil.Bytes  `json:"accountGasLimits"`
	PreVerificationGas *big.Int       `json:"preVerificationGas"`
	GasFees            hexutil.Bytes  `json:"gasFees"`
	PaymasterAndData   hexutil.Bytes  `json:"paymasterAndData"`
	Signature          hexutil.Bytes  `json:"signature"`
}

func (puo *PackedUserOp) MarshalJSON() ([]byte, error) {
	type Alias PackedUserOp
	return json.Marshal(struct {
		Nonce              string `json:"nonce"`
		PreVerificationGas string `json:"preVerificationGas"`
		*Alias
	}{
		Nonce:              fmt.Sprintf("0x%x", orZero(puo.Nonce)),
		PreVerificationGas: fmt.Sprintf("0x%x", orZero(puo.PreVerificationGas)),
		Alias:              (*Alias)(puo),
	})
}

func (puo *PackedUserOp) UnmarshalJSON(data []byte) error {
	type Alias PackedUserOp
	aux := struct {
		Nonce              string `json:"nonce"`
		PreVerificationGas string `json:"preVerificationGas"`
		*Alias
	}{
		Alias: (*Alias)(puo),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	if aux.Nonce != "" {
		if puo.Nonce, err = parseQuantity(aux.Nonce); err != nil {
			return fmt.Errorf("invalid nonce: %w", err)
		}
	}
	if aux.PreVerificationGas != "" {
		if puo.PreVerificationGas, err = parseQuantity(aux.PreVerificationGas); err != nil {
			return fmt.Errorf("invalid preVerificationGas: %w", err)
		}
	}
	return nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func bigOf(v *hexutil.Big) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v.ToInt()
}

// packUint128Pair places hi and lo as big-endian uint128 halves of a 32-byte word.
func packUint128Pair(hi, lo *hexutil.Big) []byte {
	word := make([]byte, 32)
	bigOf(hi).FillBytes(word[:16])
	bigOf(lo).FillBytes(word[16:])
	return word
}

// PackUserOp converts the operation into its PackedUserOperation form.
func (uo *UserOperation) PackUserOp() *PackedUserOp {
	packed := &PackedUserOp{
		Sender:             uo.Sender,
		Nonce:              bigOf(uo.Nonce),
		CallData:           uo.CallData,
		AccountGasLimits:   packUint128Pair(uo.VerificationGasLimit, uo.CallGasLimit),
		PreVerificationGas: bigOf(uo.PreVerificationGas),
		GasFees:            packUint128Pair(uo.MaxPriorityFeePerGas, uo.MaxFeePerGas),
		InitCode:           hexutil.Bytes{},
		PaymasterAndData:   hexutil.Bytes{},
		Signature:          uo.Signature,
	}

	if uo.Factory != nil && len(uo.FactoryData) > 0 {
		packed.InitCode = append(append(hexutil.Bytes{}, uo.Factory.Bytes()...), uo.FactoryData...)
	}

	if uo.Paymaster != nil {
		// paymaster(20) | verificationGasLimit(16) | postOpGasLimit(16) | paymasterData
		pad := make([]byte, 0, 52+len(uo.PaymasterData))
		pad = append(pad, uo.Paymaster.Bytes()...)
		pad = append(pad, packUint128Pair(uo.PaymasterVerificationGasLimit, uo.PaymasterPostOpGasLimit)...)
		pad = append(pad, uo.PaymasterData...)
		packed.PaymasterAndData = pad
	}

	return packed
}

var (
	addressTy, _ = abi.NewType("address", "", nil)
	uint256Ty, _ = abi.NewType("uint256", "", nil)
	bytes32Ty, _ = abi.NewType("bytes32", "", nil)

	packedUserOpArgs = abi.Arguments{
		{Type: addressTy}, // sender
		{Type: uint256Ty}, // nonce
		{Type: bytes32Ty}, // keccak(initCode)
		{Type: bytes32Ty}, // keccak(callData)
		{Type: bytes32Ty}, // accountGasLimits
		{Type: uint256Ty}, // preVerificationGas
		{Type: bytes32Ty}, // gasFees
		{Type: bytes32Ty}, // keccak(paymasterAndData)
	}
	userOpHashArgs = abi.Arguments{
		{Type: bytes32Ty},
		{Type: addressTy},
		{Type: uint256Ty},
	}
)

// Hash computes the v0.7 user operation hash for the given entry point and chain.
func (uo *UserOperation) Hash(entryPoint common.Address, chainID *big.Int) (common.Hash, error) {
	packed := uo.PackUserOp()

	var accountGasLimits, gasFees [32]byte
	copy(accountGasLimits[:], packed.AccountGasLimits)
	copy(gasFees[:], packed.GasFees)

	encoded, err := packedUserOpArgs.Pack(
		packed.Sender,
		packed.Nonce,
		crypto.Keccak256Hash(packed.InitCode),
		crypto.Keccak256Hash(packed.CallData),
		accountGasLimits,
		packed.PreVerificationGas,
		gasFees,
		crypto.Keccak256Hash(packed.PaymasterAndData),
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode user operation: %w", err)
	}

	final, err := userOpHashArgs.Pack(crypto.Keccak256Hash(encoded), entryPoint, chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode final hash: %w", err)
	}
	return crypto.Keccak256Hash(final), nil
}

// GetUserOpHashV07 is Hash against EntryPointV07.
func (uo *UserOperation) GetUserOpHashV07(chainId *big.Int) (common.Hash, error) {
	return uo.Hash(EntryPointV07, chainId)
}

// PersonalSignHash returns the EIP-191 digest the owner signs over a user operation hash.
func PersonalSignHash(data []byte) common.Hash {
	msg := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(data), data)
	return crypto.Keccak256Hash([]byte(msg))
}
