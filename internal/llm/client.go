package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"sustainplate/m/domain"
	"sustainplate/m/internal/apperr"
	"sustainplate/m/internal/logger"
	"sustainplate/m/internal/retry"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	DefaultModel   = "gemini-2.0-flash"

	shelfLifeField = "shelf_life_days"
)

// Options configures a Client. Zero values fall back to the defaults above.
type Options struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	Retry      retry.Policy
	HTTPClient retry.Doer
}

// Client talks to a generateContent-style text-generation endpoint.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	doer    retry.Doer
	policy  retry.Policy
	log     *zap.Logger
}

// New builds a Client from opts.
func New(opts Options) *Client {
	doer := opts.HTTPClient
	if doer == nil {
		doer = &http.Client{Timeout: lo.Ternary(opts.Timeout > 0, opts.Timeout, 30*time.Second)}
	}
	return &Client{
		baseURL: strings.TrimRight(lo.Ternary(opts.BaseURL != "", opts.BaseURL, DefaultBaseURL), "/"),
		apiKey:  opts.APIKey,
		model:   lo.Ternary(opts.Model != "", opts.Model, DefaultModel),
		doer:    doer,
		policy:  opts.Retry,
		log:     logger.WithModule("llm"),
	}
}

// EstimateShelfLifeDays asks the model how many days a fresh itemName keeps.
func (c *Client) EstimateShelfLifeDays(ctx context.Context, itemName string) (int, error) {
	itemName = strings.TrimSpace(itemName)
	if itemName == "" {
		return 0, apperr.Validation("item name is required")
	}

	text, err := c.generate(ctx, shelfLifePrompt(itemName), "application/json")
	if err != nil {
		return 0, err
	}
	days, err := parseShelfLife(text)
	if err != nil {
		c.log.Warn("unusable shelf life response", zap.String("item", itemName), zap.String("text", text), zap.Error(err))
		return 0, apperr.Upstream(err, "unable to estimate shelf life")
	}
	return days, nil
}

// GenerateRecipe asks the model for a recipe using the given ingredient names.
func (c *Client) GenerateRecipe(ctx context.Context, ingredients []string) (string, error) {
	ingredients = CleanIngredients(ingredients)
	if len(ingredients) == 0 {
		return "", apperr.Validation("at least one ingredient is required")
	}

	text, err := c.generate(ctx, recipePrompt(ingredients), "text/plain")
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", apperr.Upstream(errors.New("empty recipe text"), "unable to generate recipe")
	}
	return text, nil
}

// CleanIngredients trims names, drops blanks and removes duplicates while keeping order.
func CleanIngredients(names []string) []string {
	return lo.Uniq(lo.Compact(lo.Map(names, func(n string, _ int) string {
		return strings.TrimSpace(n)
	})))
}

func shelfLifePrompt(itemName string) string {
	return fmt.Sprintf(
		"Estimate the typical shelf life in days of a fresh %q stored the usual way at home. "+
			"Respond with only a JSON object of the form {\"%s\": <integer>} and nothing else.",
		itemName, shelfLifeField,
	)
}

func recipePrompt(ingredients []string) string {
	return fmt.Sprintf(
		"Create a simple recipe that uses these ingredients, which are close to expiring: %s. "+
			"Start with a title, then a short description, then an ingredient list, "+
			"then numbered step-by-step instructions.",
		strings.Join(ingredients, ", "),
	)
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generationConfig struct {
	ResponseMimeType string `json:"responseMimeType"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

func (c *Client) generate(ctx context.Context, prompt, mimeType string) (string, error) {
	payload, err := json.Marshal(generateRequest{
		Contents:         []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{ResponseMimeType: mimeType},
	})
	if err != nil {
		return "", apperr.Upstream(err, "unable to encode upstream request")
	}
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))

	resp, err := retry.CallWithRetry(ctx, c.doer, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("x-goog-api-key", c.apiKey)
		}
		return req, nil
	}, c.policy)
	if err != nil {
		c.log.Error("text generation failed", zap.Error(err))
		return "", err
	}
	defer resp.Body.Close()

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", apperr.Upstream(errors.Wrap(err, "decode generateContent response"), "unexpected upstream response")
	}
	if len(decoded.Candidates) == 0 {
		return "", apperr.Upstream(errors.New("response has no candidates"), "unexpected upstream response")
	}
	texts := lo.Map(decoded.Candidates[0].Content.Parts, func(p part, _ int) string { return p.Text })
	return strings.Join(texts, ""), nil
}

func parseShelfLife(text string) (int, error) {
	dec := json.NewDecoder(strings.NewReader(stripCodeFence(text)))
	dec.UseNumber()

	var body map[string]interface{}
	if err := dec.Decode(&body); err != nil {
		return 0, errors.Wrap(err, "shelf life response is not a JSON object")
	}
	raw, ok := body[shelfLifeField]
	if !ok {
		return 0, errors.Errorf("shelf life response has no %q field", shelfLifeField)
	}
	num, ok := raw.(json.Number)
	if !ok {
		return 0, errors.Errorf("%q is not a number: %v", shelfLifeField, raw)
	}
	// models sometimes answer 21.0 or 2.1e1; accept any integral value
	f, err := num.Float64()
	if err != nil {
		return 0, errors.Wrapf(err, "%q is not a number", shelfLifeField)
	}
	if f != math.Trunc(f) {
		return 0, errors.Errorf("%q is not a whole number of days: %s", shelfLifeField, num)
	}
	if f < 0 || f > domain.MaxShelfLifeDays {
		return 0, errors.Errorf("%q out of range 0..%d: %s", shelfLifeField, domain.MaxShelfLifeDays, num)
	}
	return int(f), nil
}

// stripCodeFence removes a surrounding ```json ... ``` block some models add despite instructions.
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "```"))
}
