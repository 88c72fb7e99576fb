package webhook

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/kacperjurak/gooptcore/pkg/config"
	"github.com/kacperjurak/gooptcore/pkg/models"
	"github.com/kacperjurak/gooptcore/pkg/profiling"
)

// Client posts batch reports with a pooled HTTP transport
type Client struct {
	url        string
	httpClient *http.Client
	config     *config.Config
	bufferPool sync.Pool
}

// NewClient creates a new webhook client with connection pooling
func NewClient(url string, cfg *config.Config) *Client {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,

		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,

		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},

		ResponseHeaderTimeout: 30 * time.Second,

		// Reports are small; skip gzip.
		DisableCompression: true,
		ForceAttemptHTTP2:  false,
	}

	return &Client{
		url:    url,
		config: cfg,
		httpClient: &http.Client{
			Timeout:   45 * time.Second,
			Transport: transport,
		},
		bufferPool: sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 4096))
			},
		},
	}
}

// URL is the delivery endpoint. An empty URL disables delivery.
func (c *Client) URL() string { return c.url }

// Send posts a report as JSON
func (c *Client) Send(report models.BatchReport) error {
	if c.url == "" {
		return nil
	}
	if report.Time == "" {
		report.Time = time.Now().Format(time.RFC3339Nano)
	}
	report = report.Sanitized()

	buf := c.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer c.bufferPool.Put(buf)

	if err := json.NewEncoder(buf).Encode(report); err != nil {
		return fmt.Errorf("while marshaling report for batch %s: %w", report.BatchID, err)
	}

	start := time.Now()
	resp, err := c.httpClient.Post(c.url, "application/json", bytes.NewReader(buf.Bytes()))
	if err != nil {
		profiling.RecordWebhook(context.Background(), false, time.Since(start))
		return fmt.Errorf("while sending report for batch %s: %w", report.BatchID, err)
	}
	defer resp.Body.Close()
	profiling.RecordWebhook(context.Background(), resp.StatusCode < 400, time.Since(start))

	if !c.config.Quiet {
		glog.Infof("Webhook sent - batch: %s, results: %d, violations: %d, status: %d",
			report.BatchID, len(report.Results), report.Violations, resp.StatusCode)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook request failed with status %d", resp.StatusCode)
	}
	return nil
}
