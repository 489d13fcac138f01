package cmd

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"firestige.xyz/eeglink/internal/session"
)

// MockClient implements ClientInterface
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Invoke(ctx context.Context, method string, params interface{}) (interface{}, error) {
	args := m.Called(ctx, method, params)
	return args.Get(0), args.Error(1)
}

func (m *MockClient) DeviceStatus(ctx context.Context) (*session.Status, error) {
	args := m.Called(ctx)
	st, _ := args.Get(0).(*session.Status)
	return st, args.Error(1)
}

func TestRunReload_Success(t *testing.T) {
	mockClient := new(MockClient)
	mockClient.On("Invoke", mock.Anything, "config_reload", nil).
		Return(map[string]interface{}{"status": "reloaded"}, nil)

	var buf bytes.Buffer
	err := runReload(context.Background(), mockClient, &buf)

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "✓ Configuration reloaded successfully")
	mockClient.AssertExpectations(t)
}

func TestRunReload_Failure(t *testing.T) {
	mockClient := new(MockClient)
	mockClient.On("Invoke", mock.Anything, "config_reload", nil).
		Return(nil, errors.New("connection refused"))

	var buf bytes.Buffer
	err := runReload(context.Background(), mockClient, &buf)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to reload")
	assert.Empty(t, buf.String())
	mockClient.AssertExpectations(t)
}
