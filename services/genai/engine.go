// Package genaisvc streams completions from Gemini.
package genaisvc

import (
	"context"
	"encoding/base64"
	"io"
	"iter"
	"net"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/CognicAI/EduLearn-sub001/core"
	"github.com/CognicAI/EduLearn-sub001/core/chat"
)

const defaultModel = "gemini-2.0-flash"

type streamFunc func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]

type Engine struct {
	model   string
	stream  streamFunc
	limiter *rate.Limiter // nil: unthrottled
}

var _ chat.Engine = (*Engine)(nil)

// NewEngine connects to the Gemini API. It returns chat.ErrEngineNotConfigured when no API key is set.
func NewEngine(ctx context.Context, conf core.ChatConfig) (*Engine, error) {
	if strings.TrimSpace(conf.APIKey) == "" {
		return nil, chat.ErrEngineNotConfigured
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  conf.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating genai client")
	}
	return newEngine(client.Models.GenerateContentStream, conf.Model, conf.UpstreamRPS), nil
}

func newEngine(stream streamFunc, model string, rps float64) *Engine {
	if model == "" {
		model = defaultModel
	}
	e := &Engine{model: model, stream: stream}
	if rps > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return e
}

func (e *Engine) StreamCompletion(ctx context.Context, req chat.CompletionRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		contents, err := toContents(req)
		if err != nil {
			yield("", err)
			return
		}
		if e.limiter != nil {
			if err = e.limiter.Wait(ctx); err != nil {
				yield("", mapError(ctx, err))
				return
			}
		}

		var config *genai.GenerateContentConfig
		if req.SystemPrompt != "" {
			config = &genai.GenerateContentConfig{
				SystemInstruction: genai.NewContentFromText(req.SystemPrompt, genai.RoleUser),
			}
		}
		for resp, err := range e.stream(ctx, e.model, contents, config) {
			if err != nil {
				yield("", mapError(ctx, err))
				return
			}
			if !yield(responseText(resp), nil) {
				return
			}
		}
	}
}

func toContents(req chat.CompletionRequest) ([]*genai.Content, error) {
	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, turn := range req.History {
		c, err := toContent(turn)
		if err != nil {
			return nil, err
		}
		contents = append(contents, c)
	}
	current, err := toContent(req.Current)
	if err != nil {
		return nil, err
	}
	return append(contents, current), nil
}

func toContent(turn chat.Turn) (*genai.Content, error) {
	c := &genai.Content{Role: string(turn.Role), Parts: make([]*genai.Part, 0, len(turn.Parts))}
	for _, p := range turn.Parts {
		if p.InlineData != nil {
			data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil {
				return nil, errors.Wrap(err, "decoding attachment")
			}
			c.Parts = append(c.Parts, genai.NewPartFromBytes(data, p.InlineData.MimeType))
			continue
		}
		c.Parts = append(c.Parts, genai.NewPartFromText(p.Text))
	}
	return c, nil
}

// responseText concatenates the text of the first candidate, skipping thoughts.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil && !p.Thought {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// mapError turns SDK & transport errors into errors the chat retry policy understands.
func mapError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &chat.UpstreamError{Code: apiErr.Code, Message: apiErr.Message}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &chat.UpstreamError{Code: apiErrPtr.Code, Message: apiErrPtr.Message}
	}

	var netErr net.Error
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, io.ErrUnexpectedEOF) || errors.As(err, &netErr) {
		return errors.Wrap(err, "network error")
	}
	return err
}
