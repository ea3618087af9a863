package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"manga-server/internal/panel"
)

// MockModelFetcher is a mock type for the ModelFetcher type
type MockModelFetcher struct {
	mock.Mock
}

// Fetch provides a mock function with given fields: ctx, modelID, dst
func (_m *MockModelFetcher) Fetch(ctx context.Context, modelID string, dst io.Writer) error {
	ret := _m.Called(ctx, modelID, dst)

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, string, io.Writer) error); ok {
		r0 = rf(ctx, modelID, dst)
	} else {
		err := ret.Error(0)
		if err != nil {
			r0 = err
		}
	}

	return r0
}

// NewMockModelFetcher creates a new instance of MockModelFetcher. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
// The first argument is typically a *testing.T value.
func NewMockModelFetcher(t interface {
	mock.TestingT
	Helper()
}) *MockModelFetcher {
	m := &MockModelFetcher{}
	m.Mock.Test(t)
	t.Helper()
	return m
}

var _ panel.ModelFetcher = (*MockModelFetcher)(nil)
