package notify

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/skip2/go-qrcode"
)

// ParkingPass is what the owner scans on arrival.
type ParkingPass struct {
	BookingID  string    `json:"bookingId"`
	SpaceID    string    `json:"spaceId"`
	DriverID   string    `json:"driverId"`
	ValidFrom  time.Time `json:"validFrom"`
	ValidUntil time.Time `json:"validUntil"`
}

// PassGenerator seals parking passes with AES-GCM and renders them as QR codes.
type PassGenerator struct {
	aead cipher.AEAD
}

func NewPassGenerator(secret string) (*PassGenerator, error) {
	if secret == "" {
		return nil, errors.New("parking pass secret is empty")
	}
	key := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &PassGenerator{aead: aead}, nil
}

// Seal returns a URL-safe token carrying the encrypted pass.
func (g *PassGenerator) Seal(p ParkingPass) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, g.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := g.aead.Seal(nonce, nonce, data, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open verifies and decrypts a token produced by Seal.
func (g *PassGenerator) Open(token string) (*ParkingPass, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("decode pass: %w", err)
	}
	if len(raw) < g.aead.NonceSize() {
		return nil, errors.New("pass token too short")
	}
	nonce, ciphertext := raw[:g.aead.NonceSize()], raw[g.aead.NonceSize():]
	data, err := g.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("open pass: %w", err)
	}
	var p ParkingPass
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// QR renders the sealed pass as a PNG.
func (g *PassGenerator) QR(p ParkingPass) ([]byte, error) {
	token, err := g.Seal(p)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(token, qrcode.Medium, 256)
}
