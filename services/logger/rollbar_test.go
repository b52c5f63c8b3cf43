package logsvc

import (
	"bytes"
	"fmt"
	"log"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/CognicAI/EduLearn-sub001/core"
	"github.com/CognicAI/EduLearn-sub001/core/auth"
)

func newTestLogger() (*RollbarLogger, *bytes.Buffer) {
	buf := new(bytes.Buffer)
	logger := NewRollbarLogger(log.New(buf, "", 0), &core.Config{Env: "TEST"})
	logger.Enable(false)
	return logger, buf
}

func TestRollbarLogger_prepare(t *testing.T) {
	logger, _ := newTestLogger()
	err := errors.New("boom")
	extras := map[string]interface{}{"task": "track-token-usage"}

	tests := []struct {
		name string
		args []interface{}
		want []interface{}
	}{
		{name: "message only", want: []interface{}{"msg"}},
		{name: "error & extras", args: []interface{}{err, extras}, want: []interface{}{"msg", err, extras}},
		{name: "identity is not forwarded", args: []interface{}{auth.Identity{UserID: "42"}, err}, want: []interface{}{"msg", err}},
		{name: "first identity wins", args: []interface{}{auth.Identity{UserID: "1"}, auth.Identity{UserID: "2"}}, want: []interface{}{"msg"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, logger.prepare("msg", tt.args))
		})
	}
}

func TestRollbarLogger_print(t *testing.T) {
	logger, buf := newTestLogger()

	logger.Warn("task failed", fmt.Errorf("connection refused"))
	logger.Info("Application stopped")

	assert.Equal(t, "WARN: task failed\nconnection refused\nINFO: Application stopped\n", buf.String())
}
