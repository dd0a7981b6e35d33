package anchor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// LocalPublisher records the digest itself as the chain hash. It is the
// default when no chain gateway is configured.
type LocalPublisher struct{}

func (LocalPublisher) Publish(_ context.Context, _ uuid.UUID, digest string) (string, error) {
	return digest, nil
}

// HTTPPublisher posts digests to a chain gateway.
type HTTPPublisher struct {
	endpoint string
	client   *http.Client
}

func NewHTTPPublisher(endpoint string, timeout time.Duration) *HTTPPublisher {
	return &HTTPPublisher{
		endpoint: endpoint,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type publishRequest struct {
	TransactionID uuid.UUID `json:"transactionId"`
	Digest        string    `json:"digest"`
}

type publishResponse struct {
	TxHash string `json:"txHash"`
}

func (p *HTTPPublisher) Publish(ctx context.Context, txID uuid.UUID, digest string) (string, error) {
	body, err := json.Marshal(publishRequest{TransactionID: txID, Digest: digest})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build anchor request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	// The gateway deduplicates on this key, so a retried publish is harmless.
	req.Header.Set("Idempotency-Key", txID.String())

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("anchor gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("anchor gateway returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	var out publishResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode anchor response: %w", err)
	}
	if out.TxHash == "" {
		return "", fmt.Errorf("anchor gateway returned an empty tx hash")
	}
	return out.TxHash, nil
}
