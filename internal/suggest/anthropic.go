package suggest

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// completeAnthropic issues one Messages API request through the
// official SDK and returns the concatenated text blocks. Same prompt
// contract and error taxonomy as the OpenAI path.
func completeAnthropic(ctx context.Context, o Options, system, user string) (string, error) {
	opts := []option.RequestOption{option.WithAPIKey(o.APIKey)}
	if o.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(o.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	msg, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(o.Model),
		MaxTokens:   int64(o.MaxTokens),
		Temperature: anthropic.Float(*o.Temperature),
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		var apierr *anthropic.Error
		if errors.As(err, &apierr) {
			return "", &RequestError{Status: apierr.StatusCode, Body: strings.TrimSpace(apierr.Error())}
		}
		return "", err
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}
