/*
Package storage implements a client for the encrypted-object storage
network that holds thesis documents.

Objects are uploaded encrypted and identified by an opaque content
identifier (CID). The network releases an object's decryption key to a
requester only if the requester either was explicitly shared the object or
satisfies the access condition attached to it; in ThesisHub that condition
is "holds a positive balance of the thesis token". Two authentication paths
exist on purpose: uploads are authorized by the end user's wallet signature,
while sharing and access-condition registration use the privileged service
credential and never prompt the user.
*/
package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/thesishub/thesishub-go/pkg/crypto/keys"
	"github.com/thesishub/thesishub-go/pkg/util"
	"go.uber.org/zap"
)

// Various client errors.
var (
	// ErrNotConfigured is returned when a required storage credential (API
	// key or the privileged signing key) is absent.
	ErrNotConfigured = errors.New("storage service not configured")
	// ErrRemote wraps any non-2xx response or transport failure of the
	// storage network.
	ErrRemote = errors.New("storage network error")
	// ErrUnexpectedShape is returned when a response cannot be normalized
	// into the expected record form.
	ErrUnexpectedShape = errors.New("unexpected storage response shape")
)

const defaultRequestTimeout = 30 * time.Second

type (
	// Config contains storage client parameters.
	Config struct {
		// APIKey authorizes uploads and listing.
		APIKey string
		// Endpoint is the base URL of the storage network API.
		Endpoint string
		// Gateway is the base URL ciphertext is fetched from.
		Gateway string
		// ChainName names the network access conditions are evaluated on.
		ChainName string
		// Privileged is the service-held signing identity used for share
		// and access-condition operations. May be nil, the related calls
		// then fail with ErrNotConfigured.
		Privileged keys.Signer
		// Client is the HTTP client to use, a default one is created when
		// nil.
		Client HTTPClient
		// Log is used for client diagnostics, zap.NewNop() when nil.
		Log *zap.Logger
	}

	// HTTPClient is an interface capable of doing storage requests.
	HTTPClient interface {
		Do(*http.Request) (*http.Response, error)
	}

	// Client talks to the storage network.
	Client struct {
		cfg Config
		log *zap.Logger
	}

	// UploadResult describes one stored object.
	UploadResult struct {
		CID  string
		Name string
		Size string
	}

	// FileInfo is one entry of the uploads listing.
	FileInfo struct {
		CID   string
		Name  string
		Size  string
		Owner string
	}

	// credential is a one-shot (identity, signature) pair obtained by
	// signing the network's challenge message.
	credential struct {
		address   util.Address
		signature string
	}
)

// New returns a storage Client for the given Config.
func New(cfg Config) *Client {
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: defaultRequestTimeout}
	}
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{cfg: cfg, log: log}
}

// AuthMessage requests the one-time challenge message the given identity
// has to sign to authenticate a call.
func (c *Client) AuthMessage(ctx context.Context, addr util.Address) (string, error) {
	body, err := c.do(ctx, http.MethodGet, c.cfg.Endpoint+"/api/message/"+addr.String(), nil, "")
	if err != nil {
		return "", err
	}
	// Some deployments answer with a bare object, some with a one-element
	// array.
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnexpectedShape, err)
	}
	if arr, ok := raw.([]any); ok {
		if len(arr) == 0 {
			return "", fmt.Errorf("%w: empty challenge response", ErrUnexpectedShape)
		}
		raw = arr[0]
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return "", fmt.Errorf("%w: challenge is %T", ErrUnexpectedShape, raw)
	}
	msg := firstString(obj, "message")
	if msg == "" {
		return "", fmt.Errorf("%w: no challenge message", ErrUnexpectedShape)
	}
	return msg, nil
}

// signAuth obtains and signs a challenge producing a bearer credential for
// one call.
func (c *Client) signAuth(ctx context.Context, signer keys.Signer) (credential, error) {
	addr := signer.Address()
	msg, err := c.AuthMessage(ctx, addr)
	if err != nil {
		return credential{}, err
	}
	sig, err := signer.SignMessage([]byte(msg))
	if err != nil {
		return credential{}, fmt.Errorf("failed to sign challenge: %w", err)
	}
	return credential{
		address:   addr,
		signature: "0x" + hex.EncodeToString(sig),
	}, nil
}

// privilegedAuth is signAuth using the fixed service credential.
func (c *Client) privilegedAuth(ctx context.Context) (credential, error) {
	if c.cfg.Privileged == nil {
		return credential{}, fmt.Errorf("%w: privileged signing key is missing", ErrNotConfigured)
	}
	return c.signAuth(ctx, c.cfg.Privileged)
}

// UploadEncrypted submits the named object for encrypted storage on behalf
// of signer and returns its normalized record. The call is authorized by
// both the API key and the signer's challenge signature.
func (c *Client) UploadEncrypted(ctx context.Context, name string, r io.Reader, signer keys.Signer) (*UploadResult, error) {
	if c.cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: API key is missing", ErrNotConfigured)
	}
	cred, err := c.signAuth(ctx, signer)
	if err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	mw := multipart.NewWriter(buf)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(fw, r); err != nil {
		return nil, fmt.Errorf("failed to read upload payload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint+"/api/v0/add_encrypted", buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("X-Address", cred.address.String())
	req.Header.Set("X-Signature", cred.signature)

	body, err := c.doPrepared(req)
	if err != nil {
		return nil, err
	}
	return normalizeUpload(body, name)
}

// FetchEncryptionKey requests the decryption key of the given object. The
// network releases it only if the object's access condition (if any)
// evaluates true for the signer's identity, or if the object was shared
// with it.
func (c *Client) FetchEncryptionKey(ctx context.Context, cid string, signer keys.Signer) ([]byte, error) {
	cred, err := c.signAuth(ctx, signer)
	if err != nil {
		return nil, err
	}
	body, err := c.doJSON(ctx, http.MethodPost, "/api/key/retrieve", map[string]any{
		"address":   cred.address.String(),
		"signature": cred.signature,
		"cid":       cid,
	})
	if err != nil {
		return nil, err
	}
	var resp struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.Key == "" {
		return nil, fmt.Errorf("%w: no key in response", ErrUnexpectedShape)
	}
	key, err := base64.StdEncoding.DecodeString(resp.Key)
	if err != nil {
		return nil, fmt.Errorf("%w: undecodable key: %v", ErrUnexpectedShape, err)
	}
	return key, nil
}

// ListUploads enumerates the objects uploaded under the configured API key.
func (c *Client) ListUploads(ctx context.Context) ([]FileInfo, error) {
	if c.cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: API key is missing", ErrNotConfigured)
	}
	body, err := c.do(ctx, http.MethodGet, c.cfg.Endpoint+"/api/user/files", nil, c.cfg.APIKey)
	if err != nil {
		return nil, err
	}
	var resp struct {
		FileList []map[string]any `json:"fileList"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedShape, err)
	}
	files := make([]FileInfo, 0, len(resp.FileList))
	for _, f := range resp.FileList {
		cid := firstString(f, "Hash", "hash", "cid")
		if cid == "" {
			return nil, fmt.Errorf("%w: list entry without content identifier", ErrUnexpectedShape)
		}
		files = append(files, FileInfo{
			CID:   cid,
			Name:  firstString(f, "Name", "name"),
			Size:  firstString(f, "Size", "size"),
			Owner: firstString(f, "publicKey", "owner"),
		})
	}
	return files, nil
}

// Share grants the recipient standing authorization to fetch the object's
// decryption key irrespective of its access condition. Privileged.
func (c *Client) Share(ctx context.Context, cid string, recipient util.Address) error {
	cred, err := c.privilegedAuth(ctx)
	if err != nil {
		return err
	}
	_, err = c.doJSON(ctx, http.MethodPost, "/api/key/share", map[string]any{
		"address":   cred.address.String(),
		"signature": cred.signature,
		"cid":       cid,
		"shareTo":   []string{recipient.String()},
	})
	if err != nil {
		return err
	}
	c.log.Debug("object shared", zap.String("cid", cid), zap.Stringer("recipient", recipient))
	return nil
}

// ApplyAccessCondition attaches the balance-gated predicate to the object:
// the decryption key is released to any identity holding a positive balance
// of the given token contract. Privileged; registered once after the
// on-chain registration confirms, never revoked.
func (c *Client) ApplyAccessCondition(ctx context.Context, cid string, token util.Address) error {
	cred, err := c.privilegedAuth(ctx)
	if err != nil {
		return err
	}
	conditions := []map[string]any{{
		"id":                   1,
		"chain":                c.cfg.ChainName,
		"method":               "balanceOf",
		"standardContractType": "ERC20",
		"contractAddress":      token.String(),
		"returnValueTest": map[string]any{
			"comparator": ">",
			"value":      "0",
		},
		"parameters": []string{":userAddress"},
	}}
	_, err = c.doJSON(ctx, http.MethodPost, "/api/access/condition", map[string]any{
		"address":    cred.address.String(),
		"signature":  cred.signature,
		"cid":        cid,
		"conditions": conditions,
		"aggregator": "([1])",
	})
	if err != nil {
		return err
	}
	c.log.Debug("access condition applied", zap.String("cid", cid), zap.Stringer("token", token))
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, method, c.cfg.Endpoint+path, raw, "")
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, bearer string) ([]byte, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rdr)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return c.doPrepared(req)
}

func (c *Client) doPrepared(req *http.Request) ([]byte, error) {
	resp, err := c.cfg.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemote, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrRemote, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrRemote, resp.StatusCode, summarize(body))
	}
	return body, nil
}

// normalizeUpload turns the heterogeneous upload response (object or array,
// with several known spellings of the hash field) into an UploadResult.
func normalizeUpload(body []byte, fallbackName string) (*UploadResult, error) {
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedShape, err)
	}
	if obj, ok := raw.(map[string]any); ok {
		if data, ok := obj["data"]; ok {
			raw = data
		}
	}
	if arr, ok := raw.([]any); ok {
		if len(arr) == 0 {
			return nil, fmt.Errorf("%w: empty upload response", ErrUnexpectedShape)
		}
		raw = arr[0]
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: upload response is %T", ErrUnexpectedShape, raw)
	}
	cid := firstString(obj, "Hash", "hash", "cid")
	if cid == "" {
		return nil, fmt.Errorf("%w: no content identifier in upload response", ErrUnexpectedShape)
	}
	name := firstString(obj, "Name", "name")
	if name == "" {
		name = fallbackName
	}
	return &UploadResult{
		CID:  cid,
		Name: name,
		Size: firstString(obj, "Size", "size"),
	}, nil
}

// firstString returns the first of the given keys present in m as a
// non-empty string. Numeric values are rendered, nothing else is.
func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}

func summarize(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 256 {
		s = s[:256] + "..."
	}
	return s
}
