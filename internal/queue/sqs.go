package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/trunov/mediafinalizer/internal/config"
	"github.com/trunov/mediafinalizer/internal/entities"
	"github.com/trunov/mediafinalizer/internal/metrics"
	"github.com/trunov/mediafinalizer/internal/sigv4"
)

const (
	sqsService    = "sqs"
	sqsAPIVersion = "2012-11-05"
	sendTarget    = "AmazonSQS.SendMessage"

	contentTypeJSON = "application/x-amz-json-1.0"
	contentTypeForm = "application/x-www-form-urlencoded; charset=utf-8"

	maxResponseBytes = 1 << 20
)

// SQSDispatcher sends one SendMessage request per dispatch, signed with a
// hashed payload.
type SQSDispatcher struct {
	queueURL *url.URL
	protocol string

	creds  sigv4.CredentialsProvider
	signer *sigv4.Signer
	client *http.Client

	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewSQSDispatcher(cfg *config.QueueConfig, creds sigv4.CredentialsProvider, logger *zap.Logger, m *metrics.Metrics) *SQSDispatcher {
	d := &SQSDispatcher{
		protocol: cfg.Protocol,
		creds:    creds,
		client:   &http.Client{Timeout: cfg.RequestTimeout * time.Second},
		logger:   logger.Named("queue"),
		metrics:  m,
	}
	if d.protocol == "" {
		d.protocol = config.QueueProtocolJSON
	}

	if raw := strings.TrimSpace(cfg.URL); raw != "" {
		if u, err := url.Parse(raw); err == nil && u.Host != "" {
			d.queueURL = u
		} else {
			d.logger.Error("invalid queue url", zap.String("url", raw))
		}
	}

	region := cfg.Region
	if region == "" && d.queueURL != nil {
		region = regionFromHost(d.queueURL.Hostname())
	}
	d.signer = sigv4.New(sqsService, region)
	return d
}

func (d *SQSDispatcher) Dispatch(ctx context.Context, msg entities.DispatchMessage) (string, error) {
	log := d.logger.With(zap.String("job_id", msg.JobID), zap.String("media_id", msg.MediaAssetID))

	if d.queueURL == nil {
		log.Error("queue url missing")
		return "", fmt.Errorf("%w: url missing", ErrNotConfigured)
	}
	creds, err := d.creds.Retrieve(ctx)
	if err != nil || creds.Empty() {
		log.Error("queue credentials missing", zap.Error(err))
		return "", fmt.Errorf("%w: credentials missing", ErrNotConfigured)
	}

	body, headers, err := d.encode(msg)
	if err != nil {
		return "", err
	}

	// The JSON protocol addresses the queue through QueueUrl in the body and
	// posts to the service root; the query protocol posts to the queue path.
	path := "/"
	if d.protocol == config.QueueProtocolQuery {
		path = sigv4.EscapePath(d.queueURL.Path)
	}
	signed, err := d.signer.Sign(sigv4.Request{
		Method:      http.MethodPost,
		Host:        d.queueURL.Host,
		Path:        path,
		Headers:     headers,
		PayloadHash: sigv4.HashPayload(body),
	}, creds)
	if err != nil {
		return "", fmt.Errorf("sign send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.queueURL.Scheme+"://"+d.queueURL.Host+path, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build send request: %w", err)
	}
	for name, values := range signed {
		req.Header[name] = values
	}

	resp, err := d.client.Do(req)
	if err != nil {
		d.metrics.Dispatch(sqsService, "transport_error")
		log.Error("queue send failed", zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		d.metrics.Dispatch(sqsService, "rejected")
		log.Error("queue rejected message",
			zap.Int("status", resp.StatusCode),
			zap.String("body", trim(string(respBody), 512)),
		)
		return "", fmt.Errorf("%w: status %d", ErrDispatchFailed, resp.StatusCode)
	}

	id := extractMessageID(respBody)
	d.metrics.Dispatch(sqsService, "sent")
	if id == "" {
		log.Warn("queue accepted message without a recognizable id", zap.Int("status", resp.StatusCode))
	} else {
		log.Info("queue accepted message", zap.String("message_id", id))
	}
	return id, nil
}

func (d *SQSDispatcher) encode(msg entities.DispatchMessage) ([]byte, map[string]string, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, nil, fmt.Errorf("encode dispatch message: %w", err)
	}

	if d.protocol == config.QueueProtocolQuery {
		form := url.Values{
			"Action":      {"SendMessage"},
			"MessageBody": {string(payload)},
			"Version":     {sqsAPIVersion},
		}
		return []byte(form.Encode()), map[string]string{"Content-Type": contentTypeForm}, nil
	}

	body, err := json.Marshal(struct {
		QueueURL    string `json:"QueueUrl"`
		MessageBody string `json:"MessageBody"`
	}{d.queueURL.String(), string(payload)})
	if err != nil {
		return nil, nil, fmt.Errorf("encode send request: %w", err)
	}
	return body, map[string]string{
		"Content-Type": contentTypeJSON,
		"X-Amz-Target": sendTarget,
	}, nil
}

// extractMessageID understands both the JSON and the XML SendMessage responses.
func extractMessageID(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}

	if trimmed[0] == '{' {
		var j struct {
			MessageID string `json:"MessageId"`
		}
		if err := json.Unmarshal(trimmed, &j); err == nil {
			return j.MessageID
		}
		return ""
	}

	var x struct {
		Result struct {
			MessageID string `xml:"MessageId"`
		} `xml:"SendMessageResult"`
	}
	if err := xml.Unmarshal(trimmed, &x); err == nil {
		return strings.TrimSpace(x.Result.MessageID)
	}
	return ""
}

// regionFromHost reads the region out of sqs.<region>.amazonaws.com.
func regionFromHost(host string) string {
	parts := strings.Split(host, ".")
	if len(parts) >= 3 && parts[0] == sqsService {
		return parts[1]
	}
	return "us-east-1"
}

func trim(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
