package services

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sleeplog-backend/internal/docstore"
	"sleeplog-backend/internal/models"
	"sleeplog-backend/internal/push"
)

type browserKeys struct {
	priv *ecdh.PrivateKey
	auth []byte
}

func newBrowser(t *testing.T) browserKeys {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	auth := make([]byte, 16)
	_, err = rand.Read(auth)
	require.NoError(t, err)
	return browserKeys{priv: priv, auth: auth}
}

func (b browserKeys) subscription(endpoint string) models.PushSubscription {
	return models.PushSubscription{
		Endpoint: endpoint,
		Keys: models.PushKeys{
			P256dh: base64.RawURLEncoding.EncodeToString(b.priv.PublicKey().Bytes()),
			Auth:   base64.RawURLEncoding.EncodeToString(b.auth),
		},
	}
}

// decrypt plays the user agent's side of the content encoding.
func (b browserKeys) decrypt(t *testing.T, body []byte) []byte {
	require.Greater(t, len(body), 21)
	salt := body[:16]
	rs := binary.BigEndian.Uint32(body[16:20])
	assert.Equal(t, uint32(pushRecordSize), rs)
	idlen := int(body[20])
	asPublic := body[21 : 21+idlen]
	ciphertext := body[21+idlen:]

	asKey, err := ecdh.P256().NewPublicKey(asPublic)
	require.NoError(t, err)
	shared, err := b.priv.ECDH(asKey)
	require.NoError(t, err)

	cek, nonce, err := deriveContentKeys(shared, b.auth, salt, b.priv.PublicKey().Bytes(), asPublic)
	require.NoError(t, err)

	block, err := aes.NewCipher(cek)
	require.NoError(t, err)
	gcm, err := cipher.NewGCM(block)
	require.NoError(t, err)
	record, err := gcm.Open(nil, nonce, ciphertext, nil)
	require.NoError(t, err)

	require.Equal(t, byte(0x02), record[len(record)-1])
	return record[:len(record)-1]
}

func TestVAPIDKeys_GenerateAndParse(t *testing.T) {
	keys, err := GenerateVAPIDKeys()
	require.NoError(t, err)

	parsed, err := ParseVAPIDKeys(keys.PublicKey, keys.PrivateKey)
	require.NoError(t, err)
	assert.Equal(t, keys.PublicKey, parsed.PublicKey)

	raw, err := decodeBase64URL(keys.PublicKey)
	require.NoError(t, err)
	assert.Len(t, raw, 65)

	other, err := GenerateVAPIDKeys()
	require.NoError(t, err)
	_, err = ParseVAPIDKeys(other.PublicKey, keys.PrivateKey)
	assert.Error(t, err)

	_, err = ParseVAPIDKeys("", "not-base64!!")
	assert.Error(t, err)
}

func TestEncryptPushPayload_DecryptsOnUserAgent(t *testing.T) {
	b := newBrowser(t)
	sub := b.subscription("https://push.example.com/abc")

	body, err := encryptPushPayload(sub, []byte(`{"title":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, `{"title":"hi"}`, string(b.decrypt(t, body)))

	_, err = encryptPushPayload(sub, make([]byte, maxPushPayload+1))
	assert.Error(t, err)
}

func TestWebPush_DeliversAndPrunesGoneSubscriptions(t *testing.T) {
	keys, err := GenerateVAPIDKeys()
	require.NoError(t, err)
	b := newBrowser(t)

	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/gone") {
			w.WriteHeader(http.StatusGone)
			return
		}
		assert.Equal(t, "aes128gcm", r.Header.Get("Content-Encoding"))
		auth := r.Header.Get("Authorization")
		assert.True(t, strings.HasPrefix(auth, "vapid t="))
		assert.Contains(t, auth, "k="+keys.PublicKey)

		tokenStr := strings.TrimSuffix(strings.TrimPrefix(strings.Split(auth, ", ")[0], "vapid t="), ",")
		claims := &jwt.RegisteredClaims{}
		_, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
			return &keys.signer.PublicKey, nil
		}, jwt.WithValidMethods([]string{"ES256"}))
		assert.NoError(t, err)
		assert.Equal(t, jwt.ClaimStrings{"http://" + r.Host}, claims.Audience)

		body, _ := io.ReadAll(r.Body)
		got.Store(b.decrypt(t, body))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	store := push.NewStore(docstore.NewFileStore(filepath.Join(t.TempDir(), "subs.json")), 10)
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, b.subscription(srv.URL+"/gone")))
	require.NoError(t, store.Add(ctx, b.subscription(srv.URL+"/live")))

	svc := NewWebPushService(store, keys, "mailto:owner@example.com")
	require.NoError(t, svc.Send(ctx, models.Notification{ID: "n1", Title: "Wind down", Body: "Bed soon"}))

	var payload pushPayload
	require.NoError(t, json.Unmarshal(got.Load().([]byte), &payload))
	assert.Equal(t, pushPayload{Title: "Wind down", Body: "Bed soon", NotificationID: "n1"}, payload)

	subs := store.List(ctx)
	require.Len(t, subs, 1)
	assert.Equal(t, srv.URL+"/live", subs[0].Endpoint)
}

func TestWebPush_NoSubscriptions(t *testing.T) {
	keys, err := GenerateVAPIDKeys()
	require.NoError(t, err)
	store := push.NewStore(docstore.NewFileStore(filepath.Join(t.TempDir(), "subs.json")), 10)

	err = NewWebPushService(store, keys, "mailto:x@example.com").Send(context.Background(), models.Notification{Title: "x"})
	assert.ErrorIs(t, err, ErrNoSubscriptions)
}
