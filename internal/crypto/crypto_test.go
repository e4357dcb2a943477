package crypto

import (
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Well-known development key (hardhat account #0).
const (
	testKey     = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func TestNewSigner(t *testing.T) {
	s, err := NewSigner("0x"+testKey, 5042002)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(testAddress), s.Address())
	assert.Equal(t, int64(5042002), s.ChainID())

	_, err = NewSigner("zz", 1)
	assert.Error(t, err)
	_, err = NewSigner(testKey, 0)
	assert.Error(t, err)
}

func TestSignTxRecoversSender(t *testing.T) {
	s, err := NewSigner(testKey, 5042002)
	require.NoError(t, err)

	to := common.HexToAddress("0x1")
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(5042002),
		Nonce:     3,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(100),
		Gas:       21000,
		To:        &to,
	})
	signed, err := s.SignTx(tx)
	require.NoError(t, err)

	from, err := s.Sender(signed)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), from)
}

func TestKeyFileRoundTrip(t *testing.T) {
	blob, err := encryptKey(testKey, "hunter2", 1000)
	require.NoError(t, err)
	assert.Contains(t, string(blob), testAddress)

	keyHex, addr, err := DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, testKey, keyHex)
	assert.Equal(t, common.HexToAddress(testAddress), addr)

	_, _, err = DecryptKey(blob, "wrong")
	assert.Error(t, err)
}

func TestKeyFileAddressIsAuthenticated(t *testing.T) {
	blob, err := encryptKey(testKey, "pw", 1000)
	require.NoError(t, err)

	tampered := strings.Replace(string(blob), testAddress, "0x0000000000000000000000000000000000000001", 1)
	_, _, err = DecryptKey([]byte(tampered), "pw")
	assert.Error(t, err)
}

func TestEncryptKeyRejects(t *testing.T) {
	_, err := EncryptKey(testKey, "")
	assert.Error(t, err)
	_, err = encryptKey("abcd", "pw", 1000)
	assert.Error(t, err)
}

func TestLoadSigner(t *testing.T) {
	s, err := LoadSigner(KeySource{}, 1)
	require.NoError(t, err)
	assert.Nil(t, s)
	assert.True(t, KeySource{}.Empty())

	s, err = LoadSigner(KeySource{RawPrivateKey: testKey}, 1)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(testAddress), s.Address())

	blob, err := encryptKey(testKey, "pw", 1000)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	s, err = LoadSigner(KeySource{EncryptedKeyPath: path, KeyPassword: "pw"}, 1)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(testAddress), s.Address())

	_, err = LoadSigner(KeySource{EncryptedKeyPath: path, KeyPassword: "nope"}, 1)
	assert.Error(t, err)
}
