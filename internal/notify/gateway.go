package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/toko-checkout/internal/resilience"
)

// Gateway posts signed JSON documents to an outbound HTTP integration. It
// implements Messenger against the messaging gateway and Ledger against the
// ledger sync endpoint.
type Gateway struct {
	BaseURL   string
	Path      string
	Secret    string
	HTTP      resilience.HTTPClient
	Replay    ReplayProtector
	ReplayTTL time.Duration
	Now       func() time.Time
}

// Send delivers a customer message.
func (g *Gateway) Send(ctx context.Context, msg Message) error {
	return g.post(ctx, msg.TenantID.String(), msg.Reference, msg)
}

// Record pushes a ledger entry.
func (g *Gateway) Record(ctx context.Context, entry LedgerEntry) error {
	ref := entry.Kind + ":" + entry.OrderID.String()
	return g.post(ctx, entry.TenantID.String(), ref, entry)
}

func (g *Gateway) post(ctx context.Context, tenantID, reference string, doc any) error {
	ctx, span := otel.Tracer("notify.Gateway").Start(ctx, "Gateway.post")
	defer span.End()
	span.SetAttributes(
		attribute.String("notify.target", g.HTTP.Target),
		attribute.String("notify.reference", reference),
	)
	err := g.deliver(ctx, tenantID, reference, doc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (g *Gateway) deliver(ctx context.Context, tenantID, reference string, doc any) error {
	endpoint, err := g.endpoint()
	if err != nil {
		return err
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("notify: encode body: %w", err)
	}
	replayKey := ""
	if g.Replay != nil && g.ReplayTTL > 0 && reference != "" {
		replayKey = fmt.Sprintf("notify:%s:%s:%s", g.HTTP.Target, tenantID, reference)
		ok, err := g.Replay.Acquire(ctx, replayKey, g.ReplayTTL)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
	if err := g.send(ctx, endpoint, tenantID, reference, body); err != nil {
		if replayKey != "" {
			_ = g.Replay.Release(ctx, replayKey)
		}
		return err
	}
	if replayKey != "" {
		// sent; a failed confirm falls back to the claim TTL
		_ = g.Replay.Confirm(ctx, replayKey, g.ReplayTTL)
	}
	return nil
}

func (g *Gateway) send(ctx context.Context, endpoint, tenantID, reference string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	ts := g.now().Unix()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "toko-checkout/1.0")
	req.Header.Set("X-Tenant-ID", tenantID)
	req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set("Idempotency-Key", reference)
	if g.Secret != "" {
		req.Header.Set("X-Signature", ComputeSignature(g.Secret, ts, reference, body))
	}
	resp, err := g.HTTP.Do(ctx, req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notify: %s responded %d: %s", g.HTTP.Target, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}

func (g *Gateway) endpoint() (string, error) {
	base := strings.TrimRight(strings.TrimSpace(g.BaseURL), "/")
	if err := validateURL(base); err != nil {
		return "", err
	}
	return base + "/" + strings.TrimLeft(g.Path, "/"), nil
}

func (g *Gateway) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid endpoint url: %w", err)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return errors.New("endpoint url must be http or https")
	}
	if parsed.Host == "" {
		return errors.New("endpoint url must include host")
	}
	return nil
}

// ComputeSignature signs a payload as HMAC-SHA256 over "<ts>.<reference>.<body>".
func ComputeSignature(secret string, ts int64, reference string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(strconv.FormatInt(ts, 10)))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write([]byte(reference))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// HttpClient returns an HTTP client with otel transport instrumentation.
func HttpClient(timeout time.Duration, insecure bool) *http.Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if insecure {
		transport.TLSClientConfig = insecureTLSConfig
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(transport),
	}
}

var insecureTLSConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
