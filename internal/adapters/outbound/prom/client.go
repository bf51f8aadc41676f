// Package prom queries external scaling metrics (queue depth, pending
// requests) from a Prometheus server.
package prom

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/api"
	apiv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

const queryTimeout = 10 * time.Second

// Client wraps the Prometheus HTTP API for scalar queries.
type Client struct {
	logger *slog.Logger
	api    apiv1.API
}

// New creates a client for the given Prometheus base URL.
func New(logger *slog.Logger, baseURL string) (*Client, error) {
	c, err := api.NewClient(api.Config{Address: baseURL})
	if err != nil {
		return nil, fmt.Errorf("new prometheus client: %w", err)
	}

	return &Client{
		logger: logger,
		api:    apiv1.NewAPI(c),
	}, nil
}

// Scalar evaluates the query and returns a single value. An empty result is
// an error: the trigger treats it as SignalUnavailable rather than zero.
func (c *Client) Scalar(ctx context.Context, query string) (float64, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, warnings, err := c.api.Query(queryCtx, query, time.Now())
	if err != nil {
		return 0, fmt.Errorf("query prometheus: %w", err)
	}

	if len(warnings) > 0 {
		c.logger.WarnContext(ctx, "prometheus query warnings", "query", query, "warnings", warnings)
	}

	switch v := result.(type) {
	case model.Vector:
		if v.Len() == 0 {
			return 0, fmt.Errorf("query %q returned no samples", query)
		}

		return float64(v[0].Value), nil
	case *model.Scalar:
		return float64(v.Value), nil
	default:
		return 0, fmt.Errorf("query %q returned unsupported type %s", query, result.Type())
	}
}
