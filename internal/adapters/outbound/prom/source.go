package prom

import (
	"context"
	"time"

	"github.com/poolwarden/poolwarden/internal/logic/signal"
)

// Source adapts one PromQL query into an external-kind signal source.
type Source struct {
	name   string
	query  string
	client *Client
}

// NewSource creates an external signal source for the given trigger.
func NewSource(name, query string, client *Client) *Source {
	return &Source{
		name:   name,
		query:  query,
		client: client,
	}
}

var _ signal.Source = (*Source)(nil)

func (s *Source) Name() string {
	return s.name
}

func (s *Source) Kind() signal.Kind {
	return signal.KindExternal
}

func (s *Source) Query(ctx context.Context) (signal.Reading, error) {
	value, err := s.client.Scalar(ctx, s.query)
	if err != nil {
		return signal.Reading{}, err
	}

	return signal.Reading{Value: value, At: time.Now()}, nil
}
