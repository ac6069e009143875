package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thesishub/thesishub-go/pkg/crypto/keys"
	"github.com/thesishub/thesishub-go/pkg/util"
	"go.uber.org/zap/zaptest"
)

const challenge = "Please sign this message to prove ownership: 42"

// startStorage runs a storage API stub answering the challenge endpoint
// plus whatever extra handlers the test installs.
func startStorage(t *testing.T, extra map[string]http.HandlerFunc) *Client {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/message/", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"message": challenge})
	})
	for pattern, h := range extra {
		mux.HandleFunc(pattern, h)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	priv, err := keys.NewPrivateKey()
	require.NoError(t, err)
	return New(Config{
		APIKey:     "test-key",
		Endpoint:   srv.URL,
		Gateway:    srv.URL,
		ChainName:  "Sepolia",
		Privileged: priv,
		Log:        zaptest.NewLogger(t),
	})
}

func testSigner(t *testing.T) keys.Signer {
	priv, err := keys.NewPrivateKey()
	require.NoError(t, err)
	return priv
}

func TestAuthMessage(t *testing.T) {
	c := startStorage(t, nil)
	msg, err := c.AuthMessage(context.Background(), util.Address{1})
	require.NoError(t, err)
	assert.Equal(t, challenge, msg)
}

func TestAuthMessageArrayShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"message": "` + challenge + `"}]`))
	}))
	t.Cleanup(srv.Close)

	c := New(Config{Endpoint: srv.URL})
	msg, err := c.AuthMessage(context.Background(), util.Address{1})
	require.NoError(t, err)
	assert.Equal(t, challenge, msg)
}

func TestAuthMessageUnexpectedShape(t *testing.T) {
	for _, body := range []string{`[]`, `"just a string"`, `{"nope": 1}`, `{invalid`} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		c := New(Config{Endpoint: srv.URL})
		_, err := c.AuthMessage(context.Background(), util.Address{1})
		assert.ErrorIs(t, err, ErrUnexpectedShape, body)
		srv.Close()
	}
}

func TestUploadEncrypted(t *testing.T) {
	signer := testSigner(t)
	var gotSig, gotAddr, gotAuth string
	c := startStorage(t, map[string]http.HandlerFunc{
		"/api/v0/add_encrypted": func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			gotAddr = r.Header.Get("X-Address")
			gotSig = r.Header.Get("X-Signature")
			require.NoError(t, r.ParseMultipartForm(1<<20))
			f, hdr, err := r.FormFile("file")
			require.NoError(t, err)
			defer f.Close()
			assert.Equal(t, "thesis.pdf", hdr.Filename)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"Hash": "QmUploaded", "Name": hdr.Filename, "Size": "11",
			})
		},
	})

	res, err := c.UploadEncrypted(context.Background(), "thesis.pdf",
		strings.NewReader("pdf content"), signer)
	require.NoError(t, err)
	assert.Equal(t, "QmUploaded", res.CID)
	assert.Equal(t, "thesis.pdf", res.Name)
	assert.Equal(t, "11", res.Size)

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, signer.Address().String(), gotAddr)

	// The signature authenticates the challenge for the signer's identity.
	require.True(t, strings.HasPrefix(gotSig, "0x"))
	sig, err := hex.DecodeString(gotSig[2:])
	require.NoError(t, err)
	require.Len(t, sig, 65)
	recovered, err := keys.RecoverAddress([]byte(challenge), sig)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), recovered)
}

func TestUploadResponseShapes(t *testing.T) {
	for name, body := range map[string]string{
		"object":       `{"Hash": "QmX", "Name": "a", "Size": "1"}`,
		"lowercase":    `{"hash": "QmX"}`,
		"cid":          `{"cid": "QmX"}`,
		"array":        `[{"Hash": "QmX"}]`,
		"data wrapper": `{"data": {"Hash": "QmX"}}`,
		"data array":   `{"data": [{"Hash": "QmX"}]}`,
		"numeric size": `{"Hash": "QmX", "Size": 42}`,
	} {
		t.Run(name, func(t *testing.T) {
			res, err := normalizeUpload([]byte(body), "fallback")
			require.NoError(t, err)
			assert.Equal(t, "QmX", res.CID)
		})
	}

	for name, body := range map[string]string{
		"no hash":      `{"Name": "a"}`,
		"empty array":  `[]`,
		"bare string":  `"QmX"`,
		"invalid JSON": `{`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := normalizeUpload([]byte(body), "fallback")
			assert.ErrorIs(t, err, ErrUnexpectedShape)
		})
	}
}

func TestUploadEncryptedNotConfigured(t *testing.T) {
	c := New(Config{Endpoint: "http://localhost"})
	_, err := c.UploadEncrypted(context.Background(), "a", bytes.NewReader(nil), testSigner(t))
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestFetchEncryptionKey(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	c := startStorage(t, map[string]http.HandlerFunc{
		"/api/key/retrieve": func(w http.ResponseWriter, r *http.Request) {
			var req map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "QmX", req["cid"])
			assert.NotEmpty(t, req["signature"])
			_ = json.NewEncoder(w).Encode(map[string]string{
				"key": base64.StdEncoding.EncodeToString(key),
			})
		},
	})

	got, err := c.FetchEncryptionKey(context.Background(), "QmX", testSigner(t))
	require.NoError(t, err)
	assert.Equal(t, key, got)
}

func TestFetchEncryptionKeyDenied(t *testing.T) {
	c := startStorage(t, map[string]http.HandlerFunc{
		"/api/key/retrieve": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "access denied", http.StatusForbidden)
		},
	})
	_, err := c.FetchEncryptionKey(context.Background(), "QmX", testSigner(t))
	require.ErrorIs(t, err, ErrRemote)
	assert.Contains(t, err.Error(), "access denied")
}

func TestListUploads(t *testing.T) {
	c := startStorage(t, map[string]http.HandlerFunc{
		"/api/user/files": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{"fileList": [
				{"Hash": "QmA", "Name": "a.pdf", "Size": "10", "publicKey": "0xowner"},
				{"cid": "QmB", "name": "b.pdf", "size": 20}
			]}`))
		},
	})

	files, err := c.ListUploads(context.Background())
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, FileInfo{CID: "QmA", Name: "a.pdf", Size: "10", Owner: "0xowner"}, files[0])
	assert.Equal(t, FileInfo{CID: "QmB", Name: "b.pdf", Size: "20"}, files[1])
}

func TestShare(t *testing.T) {
	var req map[string]any
	c := startStorage(t, map[string]http.HandlerFunc{
		"/api/key/share": func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			_, _ = w.Write([]byte(`{}`))
		},
	})

	recipient := util.Address{0x33}
	require.NoError(t, c.Share(context.Background(), "QmX", recipient))
	assert.Equal(t, "QmX", req["cid"])
	assert.Equal(t, []any{recipient.String()}, req["shareTo"])
}

func TestSharePrivilegedMissing(t *testing.T) {
	c := New(Config{APIKey: "k", Endpoint: "http://localhost"})
	err := c.Share(context.Background(), "QmX", util.Address{1})
	assert.ErrorIs(t, err, ErrNotConfigured)
	err = c.ApplyAccessCondition(context.Background(), "QmX", util.Address{1})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestApplyAccessCondition(t *testing.T) {
	var req map[string]any
	c := startStorage(t, map[string]http.HandlerFunc{
		"/api/access/condition": func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			_, _ = w.Write([]byte(`{}`))
		},
	})

	token := util.Address{0x44}
	require.NoError(t, c.ApplyAccessCondition(context.Background(), "QmX", token))
	assert.Equal(t, "([1])", req["aggregator"])
	conds := req["conditions"].([]any)
	require.Len(t, conds, 1)
	cond := conds[0].(map[string]any)
	assert.Equal(t, "balanceOf", cond["method"])
	assert.Equal(t, "ERC20", cond["standardContractType"])
	assert.Equal(t, "Sepolia", cond["chain"])
	assert.Equal(t, token.String(), cond["contractAddress"])
	assert.Equal(t, map[string]any{"comparator": ">", "value": "0"}, cond["returnValueTest"])
}
