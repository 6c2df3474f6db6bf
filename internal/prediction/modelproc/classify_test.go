package modelproc

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zenithpw/zenithpw/internal/prediction"
)

func TestClassify(t *testing.T) {
	reply := []byte(`{"predicted_pw": 2.7512, "uncertainty": 0.12, "method": "xgboost_full_prediction"}`)
	killed := errors.New("signal: killed")

	tests := []struct {
		name     string
		runErr   error
		ctxErr   error
		stdout   []byte
		wantKind prediction.OutcomeKind
		wantCode int
	}{
		{name: "clean exit", stdout: reply, wantKind: prediction.OutcomeSucceeded},
		{name: "clean exit as deadline passes", ctxErr: context.DeadlineExceeded, stdout: reply, wantKind: prediction.OutcomeSucceeded},
		{name: "clean exit with garbage", ctxErr: context.DeadlineExceeded, stdout: []byte("loading"), wantKind: prediction.OutcomeParseFailed},
		{name: "killed by deadline", runErr: killed, ctxErr: context.DeadlineExceeded, stdout: reply, wantKind: prediction.OutcomeTimedOut},
		{name: "killed by parent cancel", runErr: killed, ctxErr: context.Canceled, wantKind: prediction.OutcomeProcessFailed, wantCode: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.runErr, tt.ctxErr, tt.stdout, "")

			assert.Equal(t, tt.wantKind, got.Kind)
			if tt.wantKind == prediction.OutcomeProcessFailed {
				assert.Equal(t, tt.wantCode, got.ExitCode)
			}
		})
	}
}
