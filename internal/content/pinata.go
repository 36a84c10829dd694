package content

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/dom/pack-minter/internal/domain"
	"go.uber.org/zap"
)

const (
	DefaultPinataEndpoint = "https://api.pinata.cloud/pinning/pinFileToIPFS"
	DefaultPinataGateway  = "https://gateway.pinata.cloud/ipfs"
)

type PinataConfig struct {
	Endpoint  string
	Gateway   string
	APIKey    string
	SecretKey string
	Timeout   time.Duration
}

// PinataPublisher pins files to IPFS through Pinata's pinFileToIPFS API.
type PinataPublisher struct {
	client    *http.Client
	endpoint  string
	gateway   string
	apiKey    string
	secretKey string
	logger    *zap.Logger
}

type pinResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

func NewPinataPublisher(cfg PinataConfig, logger *zap.Logger) *PinataPublisher {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = DefaultPinataEndpoint
	}
	gateway := strings.TrimRight(strings.TrimSpace(cfg.Gateway), "/")
	if gateway == "" {
		gateway = DefaultPinataGateway
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &PinataPublisher{
		client:    &http.Client{Timeout: timeout},
		endpoint:  endpoint,
		gateway:   gateway,
		apiKey:    cfg.APIKey,
		secretKey: cfg.SecretKey,
		logger:    logger.Named("content.pinata"),
	}
}

func (p *PinataPublisher) PublishImage(ctx context.Context, data []byte, filename string) (string, error) {
	return p.pin(ctx, data, filename, "")
}

func (p *PinataPublisher) PublishJSON(ctx context.Context, doc any, name string) (string, error) {
	data, err := EncodeJSON(doc)
	if err != nil {
		return "", fmt.Errorf("%w: encode %s: %v", domain.ErrPublish, name, err)
	}
	return p.pin(ctx, data, metadataFilename(name), metadataPinName(name))
}

func (p *PinataPublisher) pin(ctx context.Context, data []byte, filename, pinName string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: %s is empty", domain.ErrPublish, filename)
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("%w: build form: %v", domain.ErrPublish, err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("%w: build form: %v", domain.ErrPublish, err)
	}
	if pinName != "" {
		meta, _ := json.Marshal(map[string]string{"name": pinName})
		if err := form.WriteField("pinataMetadata", string(meta)); err != nil {
			return "", fmt.Errorf("%w: build form: %v", domain.ErrPublish, err)
		}
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("%w: build form: %v", domain.ErrPublish, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("%w: create request: %v", domain.ErrPublish, err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("pinata_api_key", p.apiKey)
	req.Header.Set("pinata_secret_api_key", p.secretKey)

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Error("pin request failed", zap.String("file", filename), zap.Error(err))
		return "", fmt.Errorf("%w: pin %s: %v", domain.ErrPublish, filename, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		p.logger.Error("pin rejected",
			zap.String("file", filename),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", respBody))
		return "", fmt.Errorf("%w: pin %s: status %d", domain.ErrPublish, filename, resp.StatusCode)
	}

	var pinned pinResponse
	if err := json.Unmarshal(respBody, &pinned); err != nil {
		return "", fmt.Errorf("%w: decode pin response: %v", domain.ErrPublish, err)
	}
	if pinned.IpfsHash == "" {
		return "", fmt.Errorf("%w: pin response has no IpfsHash", domain.ErrPublish)
	}

	uri := p.gateway + "/" + pinned.IpfsHash
	p.logger.Info("pinned",
		zap.String("file", filename),
		zap.String("uri", uri),
		zap.Int("bytes", len(data)),
		zap.Duration("took", time.Since(start)))
	return uri, nil
}
