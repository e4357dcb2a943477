// Package crypto holds the wallet key: an encrypted on-disk key file and the
// transaction signer built from it.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/pbkdf2"
)

const (
	defaultIterations = 480_000
	saltLen           = 16
	aesKeyLen         = 32
	keyFileVersion    = 2
)

// keyFile is the on-disk format of an encrypted wallet key. Address is stored
// in clear so a file can be matched to an account without the password.
type keyFile struct {
	Version    int    `json:"version"`
	Address    string `json:"address"`
	Iterations int    `json:"iterations"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// KeySource describes where the wallet key comes from. An empty source means
// the client runs read-only.
type KeySource struct {
	RawPrivateKey    string
	EncryptedKeyPath string
	KeyPassword      string
}

// Empty reports whether no key is configured.
func (k KeySource) Empty() bool {
	return k.RawPrivateKey == "" && k.EncryptedKeyPath == ""
}

// EncryptKey seals a hex private key under password with PBKDF2-SHA256 and
// AES-256-GCM. The account address is the GCM additional data, so a file whose
// address field was edited fails to open.
func EncryptKey(privateKeyHex, password string) ([]byte, error) {
	return encryptKey(privateKeyHex, password, defaultIterations)
}

func encryptKey(privateKeyHex, password string, iterations int) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	keyBytes, err := hex.DecodeString(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key hex: %w", err)
	}
	pk, err := ethcrypto.ToECDSA(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key: %w", err)
	}
	addr := ethcrypto.PubkeyToAddress(pk.PublicKey)

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: generating salt: %w", err)
	}
	gcm, err := newGCM(password, salt, iterations)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generating nonce: %w", err)
	}

	out := keyFile{
		Version:    keyFileVersion,
		Address:    addr.Hex(),
		Iterations: iterations,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, keyBytes, addr.Bytes())),
	}
	return json.MarshalIndent(out, "", "  ")
}

// DecryptKey opens a key file produced by EncryptKey and returns the hex key
// (no 0x prefix) together with its account.
func DecryptKey(data []byte, password string) (string, common.Address, error) {
	if password == "" {
		return "", common.Address{}, errors.New("crypto: password must not be empty")
	}
	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return "", common.Address{}, fmt.Errorf("crypto: parsing key file: %w", err)
	}
	if kf.Version != keyFileVersion {
		return "", common.Address{}, fmt.Errorf("crypto: unsupported key file version %d", kf.Version)
	}
	if !common.IsHexAddress(kf.Address) {
		return "", common.Address{}, fmt.Errorf("crypto: key file address %q is invalid", kf.Address)
	}
	addr := common.HexToAddress(kf.Address)

	salt, err := base64.StdEncoding.DecodeString(kf.Salt)
	if err != nil {
		return "", common.Address{}, fmt.Errorf("crypto: decoding salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(kf.Nonce)
	if err != nil {
		return "", common.Address{}, fmt.Errorf("crypto: decoding nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(kf.Ciphertext)
	if err != nil {
		return "", common.Address{}, fmt.Errorf("crypto: decoding ciphertext: %w", err)
	}

	gcm, err := newGCM(password, salt, kf.Iterations)
	if err != nil {
		return "", common.Address{}, err
	}
	if len(nonce) != gcm.NonceSize() {
		return "", common.Address{}, fmt.Errorf("crypto: nonce has %d bytes, want %d", len(nonce), gcm.NonceSize())
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, addr.Bytes())
	if err != nil {
		return "", common.Address{}, fmt.Errorf("crypto: decryption failed (wrong password?): %w", err)
	}
	return hex.EncodeToString(plaintext), addr, nil
}

func newGCM(password string, salt []byte, iterations int) (cipher.AEAD, error) {
	if iterations <= 0 {
		return nil, fmt.Errorf("crypto: invalid pbkdf2 iteration count %d", iterations)
	}
	derived := pbkdf2.Key([]byte(password), salt, iterations, aesKeyLen, sha256.New)
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating GCM: %w", err)
	}
	return gcm, nil
}

// LoadSigner resolves the wallet key and builds a Signer for chainID. A raw
// key wins over a key file. It returns nil, nil when src is empty.
func LoadSigner(src KeySource, chainID int64) (*Signer, error) {
	switch {
	case src.RawPrivateKey != "":
		return NewSigner(src.RawPrivateKey, chainID)
	case src.EncryptedKeyPath != "":
		data, err := os.ReadFile(src.EncryptedKeyPath)
		if err != nil {
			return nil, fmt.Errorf("crypto: reading key file: %w", err)
		}
		keyHex, addr, err := DecryptKey(data, src.KeyPassword)
		if err != nil {
			return nil, err
		}
		s, err := NewSigner(keyHex, chainID)
		if err != nil {
			return nil, err
		}
		if s.Address() != addr {
			return nil, fmt.Errorf("crypto: key file address %s does not match key %s", addr.Hex(), s.Address().Hex())
		}
		return s, nil
	}
	return nil, nil
}
