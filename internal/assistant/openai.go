package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
	"github.com/openai/openai-go/shared/constant"

	"github.com/noah-isme/invoice-assistant/internal/resilience"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

// ErrEmptyCompletion is returned when the model produced no output text.
var ErrEmptyCompletion = errors.New("assistant: empty model response")

// OpenAIConfig configures OpenAIInterpreter.
type OpenAIConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Breaker    *resilience.Breaker
}

// OpenAIInterpreter asks an OpenAI model for a structured Intent.
type OpenAIInterpreter struct {
	client  openai.Client
	model   string
	timeout time.Duration
	breaker *resilience.Breaker
	schema  map[string]any
}

// NewOpenAIInterpreter builds an interpreter. The intent schema is reflected
// once up front.
func NewOpenAIInterpreter(cfg OpenAIConfig) (*OpenAIInterpreter, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("assistant: openai api key is required")
	}
	schema, err := intentSchema()
	if err != nil {
		return nil, err
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &OpenAIInterpreter{
		client:  openai.NewClient(opts...),
		model:   model,
		timeout: timeout,
		breaker: cfg.Breaker,
		schema:  schema,
	}, nil
}

// Breaker exposes the circuit breaker guarding the model, if any.
func (o *OpenAIInterpreter) Breaker() *resilience.Breaker {
	return o.breaker
}

// Interpret implements Interpreter.
func (o *OpenAIInterpreter) Interpret(ctx context.Context, message string, pc PromptContext) (Intent, error) {
	if o.breaker == nil {
		return o.call(ctx, message, pc)
	}
	var intent Intent
	err := o.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		intent, err = o.call(ctx, message, pc)
		return err
	}, func(err error) bool { return errors.Is(err, ErrEmptyCompletion) })
	return intent, err
}

func (o *OpenAIInterpreter) call(ctx context.Context, message string, pc PromptContext) (Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	params := responses.ResponseNewParams{
		Model:        shared.ResponsesModel(o.model),
		Instructions: param.NewOpt(systemPrompt(pc)),
		Input: responses.ResponseNewParamsInputUnion{
			OfString: param.NewOpt(message),
		},
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Type:        constant.JSONSchema("json_schema"),
					Name:        "cart_intent",
					Strict:      param.NewOpt(true),
					Schema:      o.schema,
					Description: param.NewOpt("The cart action requested by the shopper"),
				},
			},
		},
	}
	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		return Intent{}, fmt.Errorf("openai responses: %w", err)
	}
	content := strings.TrimSpace(resp.OutputText())
	if content == "" {
		return Intent{}, ErrEmptyCompletion
	}
	return parseIntent(content)
}

func parseIntent(content string) (Intent, error) {
	var intent Intent
	if err := json.Unmarshal([]byte(content), &intent); err != nil {
		return Intent{}, fmt.Errorf("decode intent: %w", err)
	}
	return intent.Normalize(), nil
}

func intentSchema() (map[string]any, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	raw, err := json.Marshal(reflector.Reflect(&Intent{}))
	if err != nil {
		return nil, fmt.Errorf("marshal intent schema: %w", err)
	}
	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("decode intent schema: %w", err)
	}
	delete(schema, "$schema")
	delete(schema, "$id")
	return schema, nil
}
