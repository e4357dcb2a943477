package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Signer signs transactions for one secp256k1 account on one chain.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int
	txSigner   types.Signer
}

// NewSigner creates a Signer from a hex-encoded private key (with or without
// 0x prefix) for the given chain ID.
func NewSigner(privateKeyHex string, chainID int64) (*Signer, error) {
	if chainID <= 0 {
		return nil, fmt.Errorf("crypto/signer: invalid chain id %d", chainID)
	}
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}

	id := big.NewInt(chainID)
	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		chainID:    id,
		txSigner:   types.LatestSignerForChainID(id),
	}, nil
}

// Address returns the account derived from the private key.
func (s *Signer) Address() common.Address {
	return s.address
}

// ChainID returns the chain the signer produces signatures for.
func (s *Signer) ChainID() int64 {
	return s.chainID.Int64()
}

// SignTx signs tx with the latest signer scheme for the configured chain
// (EIP-1559 and legacy transactions both supported).
func (s *Signer) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, s.txSigner, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: sign tx: %w", err)
	}
	return signed, nil
}

// Sender recovers the account that signed tx.
func (s *Signer) Sender(tx *types.Transaction) (common.Address, error) {
	return types.Sender(s.txSigner, tx)
}
