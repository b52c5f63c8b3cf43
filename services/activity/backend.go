// Package activitysvc records chat turns with the EduLearn backend.
package activitysvc

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/CognicAI/EduLearn-sub001/core"
	"github.com/CognicAI/EduLearn-sub001/core/chat"
)

const endpoint = "/chatbot/log"

type backendLogger struct {
	url    string
	client *rest.Client
}

var _ chat.ActivityLogger = (*backendLogger)(nil)

// NewBackendLogger posts chat turns to `{backendURL}/chatbot/log`, forwarding the caller's credentials.
func NewBackendLogger(conf core.ActivityConfig) chat.ActivityLogger {
	timeout := conf.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &backendLogger{
		url:    conf.BackendURL + endpoint,
		client: &rest.Client{HTTPClient: &http.Client{Timeout: timeout}},
	}
}

func (l backendLogger) LogTurn(ctx context.Context, authHeader string, entry chat.ActivityEntry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "encoding chat turn")
	}

	headers := map[string]string{"Content-Type": "application/json"}
	if authHeader != "" {
		headers["Authorization"] = authHeader
	}
	res, err := l.client.SendWithContext(ctx, rest.Request{
		Method:  rest.Post,
		BaseURL: l.url,
		Headers: headers,
		Body:    body,
	})
	if err != nil {
		return errors.Wrap(err, "posting chat turn")
	}
	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return errors.Errorf("posting chat turn - status: %d - body: %s", res.StatusCode, res.Body)
	}
	return nil
}
