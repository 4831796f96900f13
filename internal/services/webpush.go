package services

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/hkdf"

	"sleeplog-backend/internal/metrics"
	"sleeplog-backend/internal/models"
	"sleeplog-backend/internal/push"
)

const (
	pushRecordSize = 4096
	// 16 byte GCM tag plus the 0x02 padding delimiter.
	maxPushPayload = pushRecordSize - 17
	pushTTL        = 12 * time.Hour
	vapidTokenTTL  = 12 * time.Hour
)

var ErrNoSubscriptions = errors.New("no push subscriptions")

// VAPIDKeys identify this server to push services. Both halves are
// unpadded base64url: the public key as an uncompressed P-256 point, the
// private key as the raw 32-byte scalar.
type VAPIDKeys struct {
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey"`

	signer *ecdsa.PrivateKey
}

func GenerateVAPIDKeys() (*VAPIDKeys, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate VAPID key: %w", err)
	}
	return ParseVAPIDKeys(
		base64.RawURLEncoding.EncodeToString(priv.PublicKey().Bytes()),
		base64.RawURLEncoding.EncodeToString(priv.Bytes()),
	)
}

// ParseVAPIDKeys validates a configured key pair and prepares the signer.
func ParseVAPIDKeys(publicKey, privateKey string) (*VAPIDKeys, error) {
	raw, err := decodeBase64URL(privateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid VAPID private key: %w", err)
	}
	priv, err := ecdh.P256().NewPrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid VAPID private key: %w", err)
	}

	pub := priv.PublicKey().Bytes()
	if publicKey != "" {
		given, err := decodeBase64URL(publicKey)
		if err != nil || !bytes.Equal(given, pub) {
			return nil, errors.New("VAPID public key does not match private key")
		}
	}

	signer := &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{
			Curve: elliptic.P256(),
			X:     new(big.Int).SetBytes(pub[1:33]),
			Y:     new(big.Int).SetBytes(pub[33:65]),
		},
		D: new(big.Int).SetBytes(raw),
	}

	return &VAPIDKeys{
		PublicKey:  base64.RawURLEncoding.EncodeToString(pub),
		PrivateKey: base64.RawURLEncoding.EncodeToString(raw),
		signer:     signer,
	}, nil
}

// token signs the ES256 JWT a push service expects for the given origin.
func (k *VAPIDKeys) token(audience, subject string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Audience:  jwt.ClaimStrings{audience},
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(now.Add(vapidTokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(k.signer)
}

func decodeBase64URL(s string) ([]byte, error) {
	s = strings.TrimRight(s, "=")
	s = strings.NewReplacer("+", "-", "/", "_").Replace(s)
	return base64.RawURLEncoding.DecodeString(s)
}

// WebPushService delivers encrypted payloads to every stored subscription
// and prunes subscriptions the push service reports as gone.
type WebPushService struct {
	store   *push.Store
	keys    *VAPIDKeys
	subject string
	client  *http.Client
	now     func() time.Time
}

func NewWebPushService(store *push.Store, keys *VAPIDKeys, subject string) *WebPushService {
	return &WebPushService{
		store:   store,
		keys:    keys,
		subject: subject,
		client:  &http.Client{Timeout: 15 * time.Second},
		now:     time.Now,
	}
}

func (s *WebPushService) Name() string { return "webpush" }

func (s *WebPushService) PublicKey() string {
	return s.keys.PublicKey
}

type pushPayload struct {
	Title          string `json:"title"`
	Body           string `json:"body"`
	NotificationID string `json:"notificationId,omitempty"`
}

func (s *WebPushService) Send(ctx context.Context, n models.Notification) error {
	subs := s.store.List(ctx)
	metrics.PushSubscriptions.Set(float64(len(subs)))
	if len(subs) == 0 {
		return ErrNoSubscriptions
	}

	payload, err := json.Marshal(pushPayload{Title: n.Title, Body: n.Body, NotificationID: n.ID})
	if err != nil {
		return err
	}

	delivered := 0
	var gone []string
	var lastErr error
	for i, sub := range subs {
		status, err := s.sendOne(ctx, sub, payload)
		switch {
		case err == nil:
			delivered++
		case status == http.StatusNotFound || status == http.StatusGone:
			gone = append(gone, sub.Endpoint)
		default:
			lastErr = err
			log.Warn().Err(err).Int("subscription", i).Msg("web push failed")
		}
	}

	// Remove by endpoint: a concurrent Add may have shifted indices.
	for _, endpoint := range gone {
		if err := s.store.Remove(ctx, endpoint); err != nil {
			log.Error().Err(err).Msg("failed to remove expired subscription")
			continue
		}
		log.Info().Str("endpoint", endpoint).Msg("removed expired push subscription")
	}

	if delivered == 0 {
		if lastErr == nil {
			lastErr = errors.New("all subscriptions expired")
		}
		return fmt.Errorf("web push not delivered: %w", lastErr)
	}
	return nil
}

// sendOne returns the push service status code alongside any error.
func (s *WebPushService) sendOne(ctx context.Context, sub models.PushSubscription, payload []byte) (int, error) {
	body, err := encryptPushPayload(sub, payload)
	if err != nil {
		return 0, err
	}

	endpoint, err := url.Parse(sub.Endpoint)
	if err != nil || endpoint.Scheme == "" || endpoint.Host == "" {
		return 0, fmt.Errorf("invalid endpoint %q", sub.Endpoint)
	}
	token, err := s.keys.token(endpoint.Scheme+"://"+endpoint.Host, s.subject, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to sign VAPID token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.Endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Encoding", "aes128gcm")
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("TTL", strconv.Itoa(int(pushTTL.Seconds())))
	req.Header.Set("Urgency", "normal")
	req.Header.Set("Authorization", fmt.Sprintf("vapid t=%s, k=%s", token, s.keys.PublicKey))

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("push service returned %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// encryptPushPayload produces a single-record aes128gcm body (RFC 8188)
// keyed per RFC 8291 from the subscription's p256dh and auth secrets.
func encryptPushPayload(sub models.PushSubscription, plaintext []byte) ([]byte, error) {
	if len(plaintext) > maxPushPayload {
		return nil, fmt.Errorf("payload too large: %d bytes", len(plaintext))
	}

	uaPublic, err := decodeBase64URL(sub.Keys.P256dh)
	if err != nil {
		return nil, fmt.Errorf("invalid p256dh key: %w", err)
	}
	authSecret, err := decodeBase64URL(sub.Keys.Auth)
	if err != nil {
		return nil, fmt.Errorf("invalid auth secret: %w", err)
	}

	curve := ecdh.P256()
	uaKey, err := curve.NewPublicKey(uaPublic)
	if err != nil {
		return nil, fmt.Errorf("invalid p256dh key: %w", err)
	}
	asKey, err := curve.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	asPublic := asKey.PublicKey().Bytes()

	shared, err := asKey.ECDH(uaKey)
	if err != nil {
		return nil, err
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}

	cek, nonce, err := deriveContentKeys(shared, authSecret, salt, uaPublic, asPublic)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(cek)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	record := append(append([]byte{}, plaintext...), 0x02)
	ciphertext := gcm.Seal(nil, nonce, record, nil)

	header := make([]byte, 0, 16+4+1+len(asPublic))
	header = append(header, salt...)
	header = binary.BigEndian.AppendUint32(header, pushRecordSize)
	header = append(header, byte(len(asPublic)))
	header = append(header, asPublic...)

	return append(header, ciphertext...), nil
}

func deriveContentKeys(shared, authSecret, salt, uaPublic, asPublic []byte) (cek, nonce []byte, err error) {
	keyInfo := append([]byte("WebPush: info\x00"), uaPublic...)
	keyInfo = append(keyInfo, asPublic...)

	ikm, err := hkdfBytes(authSecret, shared, keyInfo, 32)
	if err != nil {
		return nil, nil, err
	}
	cek, err = hkdfBytes(salt, ikm, []byte("Content-Encoding: aes128gcm\x00"), 16)
	if err != nil {
		return nil, nil, err
	}
	nonce, err = hkdfBytes(salt, ikm, []byte("Content-Encoding: nonce\x00"), 12)
	if err != nil {
		return nil, nil, err
	}
	return cek, nonce, nil
}

func hkdfBytes(salt, secret, info []byte, n int) ([]byte, error) {
	out := make([]byte, n)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, info), out); err != nil {
		return nil, err
	}
	return out, nil
}
