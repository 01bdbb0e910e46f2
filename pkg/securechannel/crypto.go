package securechannel

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha512"
	"fmt"

	"github.com/gregLibert/secure-channel/pkg/cbcmac"
)

// PaddingMarker opens the padding of every wrapped payload.
const PaddingMarker byte = 0x80

// Pad appends the marker and zeros up to the next block boundary. It always
// adds between 1 and 16 bytes.
func Pad(data []byte) []byte {
	n := len(data) + 1
	if rem := n % aes.BlockSize; rem != 0 {
		n += aes.BlockSize - rem
	}
	padded := make([]byte, n)
	copy(padded, data)
	padded[len(data)] = PaddingMarker
	return padded
}

// Unpad strips trailing zeros and the marker. The marker must sit in the last
// block.
func Unpad(data []byte) ([]byte, error) {
	stop := len(data) - aes.BlockSize
	for i := len(data) - 1; i >= 0 && i >= stop; i-- {
		switch data[i] {
		case 0x00:
			continue
		case PaddingMarker:
			return data[:i], nil
		}
		break
	}
	return nil, ErrInvalidPadding
}

// DeriveSessionKeys computes SHA-512(secret | pairingKey | keyRandom) and
// splits it into the encryption and MAC keys.
func DeriveSessionKeys(secret, pairingKey, keyRandom []byte) (encKey, macKey []byte) {
	h := sha512.New()
	h.Write(secret)
	h.Write(pairingKey)
	h.Write(keyRandom)
	sum := h.Sum(nil)
	return sum[:KeySize], sum[KeySize:]
}

// EncryptCBC encrypts block-aligned data with AES-CBC.
func EncryptCBC(key, iv, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("plaintext of %d bytes is not block aligned", len(data))
	}
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, data)
	return out, nil
}

// DecryptCBC decrypts block-aligned data with AES-CBC.
func DecryptCBC(key, iv, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext of %d bytes is not block aligned", len(data))
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	return out, nil
}

// CommandMeta is the MAC prefix of a wrapped command.
func CommandMeta(header []byte, ciphertextLen int) []byte {
	meta := make([]byte, aes.BlockSize)
	copy(meta, header[:4])
	meta[4] = byte(ciphertextLen + cbcmac.DefaultTagSize)
	return meta
}

// ResponseMeta is the MAC prefix of a wrapped response: only its length.
func ResponseMeta(ciphertextLen int) []byte {
	meta := make([]byte, aes.BlockSize)
	meta[0] = byte(ciphertextLen + cbcmac.DefaultTagSize)
	return meta
}

// ComputeTag is the CBC-MAC over meta | ciphertext. The same value is the wire
// tag and the next IV.
func ComputeTag(macKey, meta, ciphertext []byte) ([]byte, error) {
	return cbcmac.Sum(macKey, meta, ciphertext)
}
