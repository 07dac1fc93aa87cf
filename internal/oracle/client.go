// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/responses"
)

const instructions = `You analyze a single email and list every commitment it contains.
A commitment is a concrete promise to perform a future action ("I'll send the draft by Friday",
"we will review this next week"). Quote the exact sentence, say whether the sender or a
recipient is making the promise, extract a due date when one is stated, and rate your
confidence. Report an empty list when the email contains no commitments.`

var resultSchema = generateSchema[Result]()

// Client is the OpenAI-backed oracle. The caller owns its lifecycle and
// injects it wherever classification is needed.
type Client struct {
	client *openai.Client
	model  string
}

// NewClient wraps an OpenAI client for commitment classification.
func NewClient(client *openai.Client, model string) *Client {
	return &Client{client: client, model: model}
}

// Classify sends one message to the oracle and returns validated candidates.
// Malformed entries in the response are dropped, not errors.
func (c *Client) Classify(ctx context.Context, req Request) ([]Candidate, error) {
	if c.client == nil {
		return nil, errors.New("oracle: client is nil")
	}
	if c.model == "" {
		return nil, errors.New("oracle: model is empty")
	}

	format := responses.ResponseFormatTextConfigUnionParam{
		OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
			Name:        "CommitmentList",
			Schema:      resultSchema,
			Strict:      openai.Bool(true),
			Description: openai.String("Commitments found in the email"),
			Type:        "json_schema",
		},
	}

	params := responses.ResponseNewParams{
		Model:           c.model,
		MaxOutputTokens: openai.Int(1000),
		Instructions:    openai.String(instructions),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(BuildPrompt(req), responses.EasyInputMessageRoleUser),
			},
		},
		Text: responses.ResponseTextConfigParam{
			Format: format,
		},
	}

	resp, err := callWithRetry(ctx, c.client, params)
	if err != nil {
		return nil, err
	}

	result, err := decodeResult(resp.OutputText())
	if err != nil {
		return nil, err
	}

	candidates := result.Commitments[:0:0]
	for _, cand := range result.Commitments {
		if cand.Valid() {
			candidates = append(candidates, cand)
		}
	}
	return candidates, nil
}

// callWithRetry retries rate-limit and server errors with tiered waits
// before giving up.
func callWithRetry(ctx context.Context, client *openai.Client, params responses.ResponseNewParams) (*responses.Response, error) {
	const maxRetries = 3
	rateLimitWaits := []time.Duration{65 * time.Second, 100 * time.Second, 135 * time.Second}
	serverErrorWaits := []time.Duration{5 * time.Second, 30 * time.Second, 60 * time.Second}

	for attempt := 0; attempt < maxRetries; attempt++ {
		resp, err := client.Responses.New(ctx, params)
		if err == nil {
			return resp, nil
		}

		var wait time.Duration
		switch {
		case isRateLimitError(err):
			wait = rateLimitWaits[attempt]
		case isServerError(err):
			wait = serverErrorWaits[attempt]
		default:
			return nil, err
		}
		if attempt == maxRetries-1 {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, fmt.Errorf("oracle call failed after %d attempts", maxRetries)
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "429") ||
		strings.Contains(s, "rate limit") ||
		strings.Contains(s, "too many requests")
}

func isServerError(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "500") ||
		strings.Contains(s, "internal server error") ||
		strings.Contains(s, "server_error")
}

// generateSchema reflects a Go type into an OpenAI-compliant JSON schema:
// every object closed to additional properties with all fields required.
func generateSchema[T any]() map[string]interface{} {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	schema := reflector.Reflect(v)

	b, err := schema.MarshalJSON()
	if err != nil {
		panic(err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		panic(err)
	}
	ensureCompliance(m)
	return m
}

func ensureCompliance(schema map[string]interface{}) {
	if t, ok := schema["type"].(string); ok && t == "object" {
		schema["additionalProperties"] = false
		if props, ok := schema["properties"].(map[string]interface{}); ok {
			var required []string
			for name := range props {
				required = append(required, name)
			}
			if len(required) > 0 {
				schema["required"] = required
			}
		}
	}

	if props, ok := schema["properties"].(map[string]interface{}); ok {
		for _, p := range props {
			if pm, ok := p.(map[string]interface{}); ok {
				ensureCompliance(pm)
			}
		}
	}
	if items, ok := schema["items"].(map[string]interface{}); ok {
		ensureCompliance(items)
	}
}
