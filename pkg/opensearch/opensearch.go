package opensearch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/opensearch-project/opensearch-go/v2"
)

var (
	ErrConnectionFailed  = errors.New("opensearch connection failed")
	ErrHealthcheckFailed = errors.New("opensearch healthcheck failed")
	ErrIndexSetupFailed  = errors.New("opensearch index setup failed")
)

// Config is the OpenSearch block of the process configuration.
type Config struct {
	Addresses  []string `env:"OPENSEARCH_ADDRESSES" envSeparator:"," envDefault:"http://localhost:9200"`
	Username   string   `env:"OPENSEARCH_USERNAME"`
	Password   string   `env:"OPENSEARCH_PASSWORD"`
	MaxRetries int      `env:"OPENSEARCH_MAX_RETRIES" envDefault:"3"`
	Index      string   `env:"OPENSEARCH_VIOLATIONS_INDEX" envDefault:"tenantgate-isolation-violations"`
}

// New creates a client and checks the cluster answers.
func New(ctx context.Context, cfg Config) (*opensearch.Client, error) {
	client, err := opensearch.NewClient(opensearch.Config{
		Addresses:  cfg.Addresses,
		Username:   cfg.Username,
		Password:   cfg.Password,
		MaxRetries: cfg.MaxRetries,
	})
	if err != nil {
		return nil, errors.Join(ErrConnectionFailed, err)
	}

	if err := Healthcheck(client)(ctx); err != nil {
		return nil, errors.Join(ErrConnectionFailed, err)
	}
	return client, nil
}

// Healthcheck returns a readiness check calling the cluster info API.
func Healthcheck(client *opensearch.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		res, err := client.Info(client.Info.WithContext(ctx))
		if err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		defer res.Body.Close()

		if res.IsError() {
			return errors.Join(ErrHealthcheckFailed, fmt.Errorf("cluster info: %s", res.Status()))
		}
		return nil
	}
}

// EnsureIndex creates index with mapping unless it already exists.
// Losing a creation race to another instance is not an error.
func EnsureIndex(ctx context.Context, client *opensearch.Client, index, mapping string) error {
	exists, err := client.Indices.Exists([]string{index}, client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return errors.Join(ErrIndexSetupFailed, err)
	}
	_ = exists.Body.Close()

	switch exists.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
	default:
		return errors.Join(ErrIndexSetupFailed, fmt.Errorf("check index %s: %s", index, exists.Status()))
	}

	res, err := client.Indices.Create(index,
		client.Indices.Create.WithContext(ctx),
		client.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		return errors.Join(ErrIndexSetupFailed, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		if strings.Contains(string(body), "resource_already_exists_exception") {
			return nil
		}
		return errors.Join(ErrIndexSetupFailed, fmt.Errorf("create index %s: %s: %s", index, res.Status(), body))
	}
	return nil
}
