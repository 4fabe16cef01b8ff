// Package xcrypto derives an AES key/IV pair from a password and salt and
// performs the block-cipher encrypt/decrypt step of a collection's codec
// pipeline. It mirrors the AES usage already present in the teacher's
// system service, generalized from a fixed GCM key to a PBKDF2-derived
// CBC key/IV pair so a collection can validate a password against a
// stored checksum without decrypting any real payload first.
package xcrypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"
	"hash"

	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2Iterations is the iteration count the format hard-codes (spec §4.2:
// "PBKDF2 from (password, salt, 1000 iterations, configurable hash)").
const PBKDF2Iterations = 1000

// SaltSize is the size in bytes of the salt stored in the collection
// header.
const SaltSize = 16

// ErrDecryptionFailure is returned by Decrypt when the ciphertext length is
// invalid or it cannot be unpadded after decrypt. A password that fails to
// reproduce the header checksum is reported by VerifyChecksum returning
// false, not by this error.
var ErrDecryptionFailure = errors.New("xcrypto: decryption failure")

// Algorithm selects the hash function PBKDF2 uses to stretch the password.
type Algorithm uint8

const (
	SHA1 Algorithm = iota
	SHA256
	SHA512
)

// String renders the algorithm name, mainly for logging.
func (a Algorithm) String() string {
	switch a {
	case SHA1:
		return "SHA1"
	case SHA256:
		return "SHA256"
	case SHA512:
		return "SHA512"
	default:
		return fmt.Sprintf("Algorithm(%d)", a)
	}
}

func (a Algorithm) newHash() func() hash.Hash {
	switch a {
	case SHA1:
		return sha1.New
	case SHA512:
		return sha512.New
	default:
		return sha256.New
	}
}

// Cipher is an immutable AES-CBC key/IV pair derived once at collection
// open time. It is safe for concurrent use: Encrypt/Decrypt never mutate
// Cipher state, only the cipher.BlockMode values they create per call, matching the "master AES object is shared read-only" rule in
// spec §5.
type Cipher struct {
	block cipher.Block
	iv    []byte
}

// GenerateSalt produces a fresh random salt for a newly created,
// encryption-enabled collection.
func GenerateSalt() ([SaltSize]byte, error) {
	var salt [SaltSize]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return salt, fmt.Errorf("xcrypto: generate salt: %w", err)
	}
	return salt, nil
}

// Derive stretches password+salt into an AES-256 key and a CBC IV using
// PBKDF2. A single derivation produces key||iv so the whole pair tracks
// back to one (password, salt, iterations, hash) tuple.
func Derive(password string, salt [SaltSize]byte, algorithm Algorithm) (*Cipher, error) {
	if password == "" {
		return nil, errors.New("xcrypto: password required")
	}

	material := pbkdf2.Key([]byte(password), salt[:], PBKDF2Iterations, aes.BlockSize+32, algorithm.newHash())
	key := material[:32]
	iv := material[32:]

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("xcrypto: new cipher: %w", err)
	}

	return &Cipher{block: block, iv: iv}, nil
}

// Checksum encrypts the first two bytes of salt and returns the resulting
// 16-byte block. It is stored in the collection header so a later open can
// verify a supplied password without touching any record payload.
func (c *Cipher) Checksum(salt [SaltSize]byte) [16]byte {
	var out [16]byte
	ciphertext, _ := c.encryptBlocks(pkcs7Pad(salt[:2], aes.BlockSize))
	copy(out[:], ciphertext)
	return out
}

// VerifyChecksum reports whether this cipher reproduces the checksum
// stored in a collection's header.
func (c *Cipher) VerifyChecksum(salt [SaltSize]byte, want [16]byte) bool {
	got := c.Checksum(salt)
	return bytes.Equal(got[:], want[:])
}

// Encrypt pads plaintext with PKCS7 and encrypts it under AES-CBC using the
// derived key/IV.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	return c.encryptBlocks(pkcs7Pad(plaintext, aes.BlockSize))
}

func (c *Cipher) encryptBlocks(padded []byte) ([]byte, error) {
	mode := cipher.NewCBCEncrypter(c.block, c.iv)
	out := make([]byte, len(padded))
	mode.CryptBlocks(out, padded)
	return out, nil
}

// Decrypt reverses Encrypt: AES-CBC decrypt then strip PKCS7 padding.
func (c *Cipher) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: invalid ciphertext length %d", ErrDecryptionFailure, len(ciphertext))
	}

	mode := cipher.NewCBCDecrypter(c.block, c.iv)
	out := make([]byte, len(ciphertext))
	mode.CryptBlocks(out, ciphertext)

	plain, err := pkcs7Unpad(out)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailure, err)
	}
	return plain, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty ciphertext")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) || padLen > aes.BlockSize {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-padLen], nil
}
