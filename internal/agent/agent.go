package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/lox/spend-advisor/internal/llm"
	"golang.org/x/exp/slices"
)

// ErrNoValidResponse is returned when every attempt failed validation
var ErrNoValidResponse = errors.New("no valid response from model")

// Validator parses and checks a model reply. It should return
// (parsedResult, nil) on success, or (nil, error) describing every problem.
type Validator func(reply string) (any, error)

// Result is the accepted outcome of a loop
type Result struct {
	// Value is what the validator returned
	Value any
	// Reply is the raw accepted reply
	Reply string
	// Attempts is the number of model calls made
	Attempts int
}

// Agent runs a generate/validate/correct loop against a provider.
type Agent struct {
	logger      *log.Logger
	provider    llm.Provider
	maxAttempts int
}

// NewAgent creates a new Agent. maxAttempts below 1 is treated as 1.
func NewAgent(logger *log.Logger, provider llm.Provider, maxAttempts int) *Agent {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Agent{
		logger:      logger,
		provider:    provider,
		maxAttempts: maxAttempts,
	}
}

// RunLoop sends parts after history and validates the reply. A reply that
// fails validation is fed back to the model together with the error until
// it passes or attempts run out. Provider errors end the loop immediately;
// the provider has already retried anything transient.
func (a *Agent) RunLoop(
	ctx context.Context,
	history []llm.Message,
	parts []llm.Part,
	opts llm.Options,
	validate Validator,
) (Result, error) {
	var (
		lastReply string
		lastError error
		turns     = slices.Clone(history)
		next      = parts
	)

	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		a.logger.Debug("Running agent loop", "attempt", attempt, "provider", a.provider.Name())

		reply, err := a.provider.Generate(ctx, turns, next, opts)
		if err != nil {
			return Result{}, err
		}

		parsed, err := validate(reply)
		if err == nil {
			a.logger.Debug("Model reply validated successfully", "attempt", attempt)
			return Result{Value: parsed, Reply: reply, Attempts: attempt}, nil
		}
		a.logger.Debug("Model reply validation failed", "attempt", attempt, "error", err)
		lastReply = reply
		lastError = err

		// On error, replay the previous reply and the error as a new user turn
		turns = append(turns,
			llm.Message{Role: llm.RoleUser, Parts: next},
			llm.Message{Role: llm.RoleModel, Parts: []llm.Part{llm.Text(lastReply)}},
		)
		next = []llm.Part{llm.Text(correction(lastError))}
	}

	return Result{}, fmt.Errorf("%w after %d attempts: %w", ErrNoValidResponse, a.maxAttempts, lastError)
}

func correction(err error) string {
	return "Error: " + err.Error() + "\n" +
		"Please correct your response. Reply with JSON matching the requested schema, using only allowed values."
}
