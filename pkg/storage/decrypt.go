package storage

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"net/http"
)

// Decrypt retrieves the object's ciphertext from the gateway and decrypts
// it locally with a previously fetched key. The stored layout is the GCM
// nonce followed by the sealed payload.
func (c *Client) Decrypt(ctx context.Context, cid string, key []byte) ([]byte, error) {
	if c.cfg.Gateway == "" {
		return nil, fmt.Errorf("%w: gateway endpoint is missing", ErrNotConfigured)
	}
	ciphertext, err := c.do(ctx, http.MethodGet, c.cfg.Gateway+"/ipfs/"+cid, nil, "")
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("invalid decryption key: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, fmt.Errorf("%w: ciphertext shorter than nonce", ErrUnexpectedShape)
	}
	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return plaintext, nil
}
