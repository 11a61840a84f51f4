package revision

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/text/encoding/unicode"
)

const (
	saltSize        = 15
	saltEncodedSize = 20
	kdfIterations   = 1000
	keySize         = 32
)

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// Decrypt reverses Encrypt. The text is the base64 salt (20 characters)
// followed by base64 AES-256-CBC ciphertext of UTF-16LE plaintext. Spaces
// are read as '+'.
func Decrypt(text, key string) (string, error) {
	text = strings.ReplaceAll(text, " ", "+")
	if len(text) <= saltEncodedSize {
		return "", errors.New("ciphertext too short")
	}
	salt, err := base64.StdEncoding.DecodeString(text[:saltEncodedSize])
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(text[saltEncodedSize:])
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", errors.New("ciphertext is not a whole number of blocks")
	}

	block, iv, err := deriveCipher(key, salt)
	if err != nil {
		return "", err
	}
	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)
	plain, err = unpad(plain)
	if err != nil {
		return "", err
	}
	decoded, err := utf16le.NewDecoder().Bytes(plain)
	if err != nil {
		return "", fmt.Errorf("decode plaintext: %w", err)
	}
	return string(decoded), nil
}

// Encrypt produces the format Decrypt accepts using a random salt.
func Encrypt(text, key string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	encoded, err := utf16le.NewEncoder().Bytes([]byte(text))
	if err != nil {
		return "", fmt.Errorf("encode plaintext: %w", err)
	}
	block, iv, err := deriveCipher(key, salt)
	if err != nil {
		return "", err
	}
	padded := pad(encoded)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return base64.StdEncoding.EncodeToString(salt) + base64.StdEncoding.EncodeToString(out), nil
}

// The key and IV are consecutive slices of one PBKDF2-SHA1 stream.
func deriveCipher(key string, salt []byte) (cipher.Block, []byte, error) {
	derived := pbkdf2.Key([]byte(key), salt, kdfIterations, keySize+aes.BlockSize, sha1.New)
	block, err := aes.NewCipher(derived[:keySize])
	if err != nil {
		return nil, nil, fmt.Errorf("init cipher: %w", err)
	}
	return block, derived[keySize:], nil
}

func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, errors.New("empty plaintext")
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, errors.New("invalid padding: wrong key?")
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, errors.New("invalid padding: wrong key?")
		}
	}
	return b[:len(b)-n], nil
}
