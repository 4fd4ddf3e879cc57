package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rankfoundry/shopseo/pkg/billing"
	"github.com/rankfoundry/shopseo/pkg/logger"
	"github.com/rankfoundry/shopseo/pkg/metrics"
)

const accessTokenHeader = "X-Shopify-Access-Token"

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 1 << 20

// Client talks to the Admin API of any shop it is given credentials for.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

var _ billing.Gateway = (*Client)(nil)

type Option func(*Client)

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultConfig().APIVersion
	}
	if cfg.Scheme == "" {
		cfg.Scheme = "https"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultConfig().RequestTimeout
	}
	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.RequestTimeout},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(logger.Component("shopify"))
	return c
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

// do executes one GraphQL operation and decodes data into out.
func (c *Client) do(ctx context.Context, op string, creds billing.Credentials, query string, vars map[string]any, out any) (err error) {
	started := time.Now()
	defer func() {
		outcome := "ok"
		switch {
		case errors.Is(err, billing.ErrGatewayRejected):
			outcome = "rejected"
		case err != nil:
			outcome = "unreachable"
		}
		metrics.ObserveGatewayCall(op, outcome, time.Since(started))
		if err != nil {
			c.logger.WarnContext(ctx, "gateway call failed",
				logger.Shop(creds.Shop),
				logger.Event(op),
				logger.Error(err),
			)
		}
	}()

	if creds.Shop == "" || creds.AccessToken == "" {
		return fmt.Errorf("%w: %s: missing shop credentials", billing.ErrGatewayUnreachable, op)
	}

	body, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("shopify: encode %s: %w", op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(creds.Shop), bytes.NewReader(body))
	if err != nil {
		return errors.Join(billing.ErrGatewayUnreachable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(accessTokenHeader, creds.AccessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Join(billing.ErrGatewayUnreachable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return errors.Join(billing.ErrGatewayUnreachable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s: status %d", billing.ErrGatewayUnreachable, op, resp.StatusCode)
	}

	var gr graphQLResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return errors.Join(billing.ErrGatewayUnreachable, fmt.Errorf("%s: decode response: %w", op, err))
	}
	if len(gr.Errors) > 0 {
		msgs := make([]string, 0, len(gr.Errors))
		for _, e := range gr.Errors {
			msgs = append(msgs, e.Message)
		}
		return fmt.Errorf("%w: %s: %s", billing.ErrGatewayUnreachable, op, strings.Join(msgs, "; "))
	}
	if len(gr.Data) == 0 || string(gr.Data) == "null" {
		return fmt.Errorf("%w: %s: empty data", billing.ErrGatewayUnreachable, op)
	}
	if err := json.Unmarshal(gr.Data, out); err != nil {
		return errors.Join(billing.ErrGatewayUnreachable, fmt.Errorf("%s: decode data: %w", op, err))
	}
	return nil
}

func (c *Client) endpoint(shop string) string {
	u := url.URL{
		Scheme: c.cfg.Scheme,
		Host:   shop,
		Path:   "/admin/api/" + c.cfg.APIVersion + "/graphql.json",
	}
	return u.String()
}

func rejected(op string, ues []billing.UserError) error {
	if len(ues) == 0 {
		return nil
	}
	return &billing.GatewayRejectedError{Op: op, UserErrors: ues}
}
