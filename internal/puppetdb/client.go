package puppetdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/gyaneshwarpardhi/nodealert/internal/config"
)

const maxRetryWait = 10 * time.Second

// Client reads nodes, facts and reports from the PuppetDB v4 query API.
type Client struct {
	client  *resty.Client
	baseURL string
	Logger  *slog.Logger
}

// NewClient creates a PuppetDB client from its config section.
// Requests are retried on transport errors and 502/503/504 responses.
func NewClient(conf config.PuppetDBConf) (*Client, error) {
	if conf.URL == "" {
		return nil, fmt.Errorf("puppetdb: url is required")
	}
	if _, err := url.Parse(conf.URL); err != nil {
		return nil, fmt.Errorf("puppetdb: invalid url %q: %w", conf.URL, err)
	}
	c := &Client{
		baseURL: strings.TrimRight(conf.URL, "/"),
		Logger:  slog.Default(),
	}

	c.client = resty.New().
		SetBaseURL(c.baseURL).
		SetTimeout(time.Duration(conf.TimeoutMs) * time.Millisecond).
		SetRetryCount(conf.RetryCount).
		SetRetryWaitTime(time.Duration(conf.RetryWaitMs) * time.Millisecond).
		SetRetryMaxWaitTime(maxRetryWait).
		SetHeader("Accept", "application/json").
		AddRetryCondition(retryable).
		AddRetryHook(func(resp *resty.Response, err error) {
			status := 0
			if resp != nil {
				status = resp.StatusCode()
			}
			c.Logger.Debug("puppetdb request failed, retrying", "status", status, "err", err)
		})
	if conf.Token != "" {
		c.client.SetHeader("X-Authentication", conf.Token)
	}
	return c, nil
}

// retryable reports whether a request should be tried again: transport
// errors other than cancellation, and gateway/unavailable responses.
func retryable(resp *resty.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	if resp == nil {
		return false
	}
	switch resp.StatusCode() {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// query runs a GET against /pdb/query/v4/<entity> and decodes the JSON body into out.
// ast is a PuppetDB AST query; orderBy is optional.
func (c *Client) query(ctx context.Context, entity string, ast any, orderBy []orderField, limit int, out any) error {
	params := make(map[string]string, 3)
	if ast != nil {
		q, err := json.Marshal(ast)
		if err != nil {
			return fmt.Errorf("encode query: %w", err)
		}
		params["query"] = string(q)
	}
	if len(orderBy) > 0 {
		ob, err := json.Marshal(orderBy)
		if err != nil {
			return fmt.Errorf("encode order_by: %w", err)
		}
		params["order_by"] = string(ob)
	}
	if limit > 0 {
		params["limit"] = strconv.Itoa(limit)
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get("/pdb/query/v4/" + entity)
	if err != nil {
		return fmt.Errorf("query %s: %w", entity, err)
	}
	if resp.StatusCode() != http.StatusOK {
		body := strings.TrimSpace(resp.String())
		if len(body) > 4096 {
			body = body[:4096]
		}
		return fmt.Errorf("query %s: HTTP %d: %s", entity, resp.StatusCode(), body)
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode %s: %w", entity, err)
	}
	return nil
}
