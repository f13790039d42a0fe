package ollama

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/agent-api/core"
	"github.com/agent-api/core/agent"
	"github.com/agent-api/core/agent/bootstrap"
	"github.com/agent-api/core/memory/array"
	ollamaprovider "github.com/agent-api/ollama"
	"github.com/go-logr/logr"
)

const systemPrompt = "You are an object detector. You only ever answer with JSON, never with prose."

// Config selects the Ollama server and vision model
type Config struct {
	Host  string
	Port  int
	Model string
}

func (c Config) baseURL() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// CheckOllama verifies the Ollama server answers
func CheckOllama(ctx context.Context, cfg Config) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.baseURL()+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama is not running at %s: %w", cfg.baseURL(), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}
	return nil
}

// newAgentFactory sets up the Ollama provider once and returns a constructor for
// single-use agents, so no frame sees the conversation of an earlier one.
func newAgentFactory(ctx context.Context, cfg Config, logger *slog.Logger) (func() (runner, error), error) {
	l := logr.FromSlogHandler(logger.Handler())

	provider := ollamaprovider.NewProvider(&ollamaprovider.ProviderOpts{
		Logger:  &l,
		BaseURL: cfg.Host,
		Port:    cfg.Port,
	})

	if err := provider.UseModel(ctx, &core.Model{ID: cfg.Model}); err != nil {
		return nil, fmt.Errorf("use model %s: %w", cfg.Model, err)
	}

	return func() (runner, error) {
		return agent.NewAgent(
			bootstrap.WithProvider(provider),
			bootstrap.WithLogger(&l),
			bootstrap.WithSystemPrompt(systemPrompt),
			bootstrap.WithMemory(array.NewArrayMemoryBackend()),
			bootstrap.WithMaxSteps(2),
		)
	}, nil
}
