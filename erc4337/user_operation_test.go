package erc4337

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addressPtr(addr string) *common.Address {
	a := common.HexToAddress(addr)
	return &a
}

func hexBig(v int64) *hexutil.Big {
	return (*hexutil.Big)(big.NewInt(v))
}

func fullUserOp() *UserOperation {
	return &UserOperation{
		Sender:                        common.HexToAddress("0x1234567890123456789012345678901234567890"),
		Nonce:                         hexBig(123),
		Factory:                       addressPtr("0xabcdefabcdefabcdefabcdefabcdefabcdefabcd"),
		FactoryData:                   hexutil.MustDecode("0x1234"),
		CallData:                      hexutil.MustDecode("0x5678"),
		CallGasLimit:                  hexBig(1000000),
		VerificationGasLimit:          hexBig(2000000),
		PreVerificationGas:            hexBig(3000000),
		MaxPriorityFeePerGas:          hexBig(1000000000),
		MaxFeePerGas:                  hexBig(2000000000),
		Paymaster:                     addressPtr("0xfedcbafedcbafedcbafedcbafedcbafedcbafeda"),
		PaymasterVerificationGasLimit: hexBig(500000),
		PaymasterPostOpGasLimit:       hexBig(100000),
		PaymasterData:                 hexutil.MustDecode("0x9abc"),
		Signature:                     hexutil.MustDecode("0xdef0"),
	}
}

func TestUserOperation_MarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		userOp   *UserOperation
		expected map[string]interface{}
		absent   []string
	}{
		{
			name:   "complete user operation",
			userOp: fullUserOp(),
			expected: map[string]interface{}{
				"sender":                        "0x1234567890123456789012345678901234567890",
				"nonce":                         "0x000000000000000000000000000000000000000000000000000000000000007b",
				"factory":                       "0xabcdefabcdefabcdefabcdefabcdefabcdefabcd",
				"factoryData":                   "0x1234",
				"callData":                      "0x5678",
				"callGasLimit":                  "0xf4240",
				"verificationGasLimit":          "0x1e8480",
				"preVerificationGas":            "0x2dc6c0",
				"maxPriorityFeePerGas":          "0x3b9aca00",
				"maxFeePerGas":                  "0x77359400",
				"paymaster":                     "0xfedcbafedcbafedcbafedcbafedcbafedcbafeda",
				"paymasterVerificationGasLimit": "0x7a120",
				"paymasterPostOpGasLimit":       "0x186a0",
				"paymasterData":                 "0x9abc",
				"signature":                     "0xdef0",
			},
		},
		{
			name: "nil nonce is a zero word",
			userOp: &UserOperation{
				Sender: common.HexToAddress("0x1234567890123456789012345678901234567890"),
			},
			expected: map[string]interface{}{
				"nonce":     "0x0000000000000000000000000000000000000000000000000000000000000000",
				"factory":   nil,
				"paymaster": nil,
			},
			absent: []string{"callGasLimit", "maxFeePerGas", "paymasterPostOpGasLimit"},
		},
		{
			name: "zero quantities are kept",
			userOp: &UserOperation{
				Nonce:        hexBig(0),
				CallGasLimit: hexBig(0),
			},
			expected: map[string]interface{}{
				"nonce":        "0x0000000000000000000000000000000000000000000000000000000000000000",
				"callGasLimit": "0x0",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.userOp)
			require.NoError(t, err)

			var got map[string]interface{}
			require.NoError(t, json.Unmarshal(data, &got))

			for k, v := range tt.expected {
				assert.Equal(t, v, got[k], "field %s", k)
			}
			for _, k := range tt.absent {
				assert.NotContains(t, got, k)
			}
		})
	}
}

func TestUserOperation_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		check   func(t *testing.T, op *UserOperation)
		wantErr string
	}{
		{
			name: "leading zeros from bundler",
			input: `{
				"sender": "0x47D6a8A65cBa9b61B194daC740AA192A7A1e91e1",
				"nonce": "0x0100000000002b0ecfbd0496ee71e01257da0e37de00000000000000000000",
				"factory": null,
				"factoryData": "0x",
				"callData": "0x",
				"callGasLimit": "0x00",
				"verificationGasLimit": "0x0001",
				"maxFeePerGas": "0x00",
				"paymaster": null,
				"paymasterData": "0x",
				"signature": "0x"
			}`,
			check: func(t *testing.T, op *UserOperation) {
				assert.Equal(t, common.HexToAddress("0x47D6a8A65cBa9b61B194daC740AA192A7A1e91e1"), op.Sender)
				expectedNonce, _ := new(big.Int).SetString("0100000000002b0ecfbd0496ee71e01257da0e37de00000000000000000000", 16)
				assert.Equal(t, expectedNonce, op.Nonce.ToInt())
				assert.Equal(t, int64(0), op.CallGasLimit.ToInt().Int64())
				assert.Equal(t, int64(1), op.VerificationGasLimit.ToInt().Int64())
				assert.Nil(t, op.Factory)
				assert.Nil(t, op.PreVerificationGas)
			},
		},
		{
			name:  "paymaster address",
			input: `{"nonce":"0x1","paymaster":"0xfedcbafedcbafedcbafedcbafedcbafedcbafeda","paymasterPostOpGasLimit":"0x186a0"}`,
			check: func(t *testing.T, op *UserOperation) {
				require.NotNil(t, op.Paymaster)
				assert.Equal(t, common.HexToAddress("0xfedcbafedcbafedcbafedcbafedcbafedcbafeda"), *op.Paymaster)
				assert.Equal(t, int64(100000), op.PaymasterPostOpGasLimit.ToInt().Int64())
			},
		},
		{
			name:    "invalid nonce",
			input:   `{"nonce":"0xzz"}`,
			wantErr: "invalid nonce",
		},
		{
			name:    "invalid gas limit",
			input:   `{"nonce":"0x1","callGasLimit":"0xnothex"}`,
			wantErr: "invalid callGasLimit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var op UserOperation
			err := json.Unmarshal([]byte(tt.input), &op)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, &op)
		})
	}
}

func TestUserOperation_RoundTrip(t *testing.T) {
	original := fullUserOp()

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded UserOperation
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, original.Sender, decoded.Sender)
	assert.Equal(t, original.Nonce.ToInt(), decoded.Nonce.ToInt())
	assert.Equal(t, *original.Factory, *decoded.Factory)
	assert.Equal(t, original.CallGasLimit.ToInt(), decoded.CallGasLimit.ToInt())
	assert.Equal(t, original.PaymasterPostOpGasLimit.ToInt(), decoded.PaymasterPostOpGasLimit.ToInt())
	assert.Equal(t, original.PaymasterData, decoded.PaymasterData)
	assert.Equal(t, original.Signature, decoded.Signature)
}

func TestUserOperation_PackUserOp(t *testing.T) {
	t.Run("byte ordering", func(t *testing.T) {
		op := &UserOperation{
			Nonce:                hexBig(1),
			CallGasLimit:         hexBig(0x123456),
			VerificationGasLimit: hexBig(0x789abc),
			PreVerificationGas:   hexBig(0xdef012),
			MaxPriorityFeePerGas: hexBig(0x345678),
			MaxFeePerGas:         hexBig(0x9abcde),
		}
		packed := op.PackUserOp()

		accountGasLimits := make([]byte, 32)
		copy(accountGasLimits[13:16], []byte{0x78, 0x9a, 0xbc})
		copy(accountGasLimits[29:32], []byte{0x12, 0x34, 0x56})
		assert.Equal(t, accountGasLimits, []byte(packed.AccountGasLimits))

		gasFees := make([]byte, 32)
		copy(gasFees[13:16], []byte{0x34, 0x56, 0x78})
		copy(gasFees[29:32], []byte{0x9a, 0xbc, 0xde})
		assert.Equal(t, gasFees, []byte(packed.GasFees))

		assert.Equal(t, big.NewInt(0xdef012), packed.PreVerificationGas)
	})

	t.Run("init code and paymaster data", func(t *testing.T) {
		packed := fullUserOp().PackUserOp()

		assert.Equal(t, append(common.HexToAddress("0xabcdefabcdefabcdefabcdefabcdefabcdefabcd").Bytes(), 0x12, 0x34), []byte(packed.InitCode))

		require.Len(t, packed.PaymasterAndData, 52+2)
		assert.Equal(t, common.HexToAddress("0xfedcbafedcbafedcbafedcbafedcbafedcbafeda").Bytes(), []byte(packed.PaymasterAndData[:20]))
		assert.Equal(t, big.NewInt(500000), new(big.Int).SetBytes(packed.PaymasterAndData[20:36]))
		assert.Equal(t, big.NewInt(100000), new(big.Int).SetBytes(packed.PaymasterAndData[36:52]))
		assert.Equal(t, []byte{0x9a, 0xbc}, []byte(packed.PaymasterAndData[52:]))
	})

	t.Run("no factory and no paymaster", func(t *testing.T) {
		op := fullUserOp()
		op.Factory = nil
		op.Paymaster = nil
		packed := op.PackUserOp()

		assert.Empty(t, packed.InitCode)
		assert.Empty(t, packed.PaymasterAndData)
	})

	t.Run("factory without data is ignored", func(t *testing.T) {
		op := fullUserOp()
		op.FactoryData = nil
		assert.Empty(t, op.PackUserOp().InitCode)
	})
}

func TestUserOperation_Hash(t *testing.T) {
	base := fullUserOp()
	chainID := big.NewInt(11155111)

	baseHash, err := base.GetUserOpHashV07(chainID)
	require.NoError(t, err)
	assert.NotEqual(t, common.Hash{}, baseHash)

	again, err := base.Hash(EntryPointV07, chainID)
	require.NoError(t, err)
	assert.Equal(t, baseHash, again)

	tests := []struct {
		name   string
		mutate func(op *UserOperation)
		ep     common.Address
		chain  *big.Int
	}{
		{"sender", func(op *UserOperation) { op.Sender = common.HexToAddress("0x9876543210987654321098765432109876543210") }, EntryPointV07, chainID},
		{"nonce", func(op *UserOperation) { op.Nonce = hexBig(124) }, EntryPointV07, chainID},
		{"call data", func(op *UserOperation) { op.CallData = hexutil.MustDecode("0x9876") }, EntryPointV07, chainID},
		{"paymaster data", func(op *UserOperation) { op.PaymasterData = hexutil.MustDecode("0x01") }, EntryPointV07, chainID},
		{"chain id", func(op *UserOperation) {}, EntryPointV07, big.NewInt(84532)},
		{"entry point", func(op *UserOperation) {}, common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"), chainID},
	}
	for _, tt := range tests {
		t.Run("differs by "+tt.name, func(t *testing.T) {
			op := *fullUserOp()
			tt.mutate(&op)
			h, err := op.Hash(tt.ep, tt.chain)
			require.NoError(t, err)
			assert.NotEqual(t, baseHash, h)
		})
	}

	t.Run("signature is not hashed", func(t *testing.T) {
		op := *fullUserOp()
		op.Signature = DummySignature
		h, err := op.GetUserOpHashV07(chainID)
		require.NoError(t, err)
		assert.Equal(t, baseHash, h)
	})
}

func TestPersonalSignHash(t *testing.T) {
	hash := common.HexToHash("0x8f4b4a5c5d8f0a3d47a8d1d3e5b2c7a9e1f0b2c3d4e5f60718293a4b5c6d7e8f")
	assert.Equal(t, accounts.TextHash(hash.Bytes()), PersonalSignHash(hash.Bytes()).Bytes())
}
