package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"manga-server/internal/models"
	"manga-server/internal/story"
)

// MockRemoteStoryGenerator is a mock type for the RemoteStoryGenerator type
type MockRemoteStoryGenerator struct {
	mock.Mock
}

// Generate provides a mock function with given fields: ctx, req, analysis
func (_m *MockRemoteStoryGenerator) Generate(ctx context.Context, req models.GenerationRequest, analysis models.AnalysisResult) (models.Story, error) {
	ret := _m.Called(ctx, req, analysis)

	var r0 models.Story
	if rf, ok := ret.Get(0).(func(context.Context, models.GenerationRequest, models.AnalysisResult) models.Story); ok {
		r0 = rf(ctx, req, analysis)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(models.Story)
		}
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, models.GenerationRequest, models.AnalysisResult) error); ok {
		r1 = rf(ctx, req, analysis)
	} else {
		err := ret.Error(1)
		if err != nil {
			r1 = err
		}
	}

	return r0, r1
}

// NewMockRemoteStoryGenerator creates a new instance of MockRemoteStoryGenerator. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
// The first argument is typically a *testing.T value.
func NewMockRemoteStoryGenerator(t interface {
	mock.TestingT
	Helper()
}) *MockRemoteStoryGenerator {
	m := &MockRemoteStoryGenerator{}
	m.Mock.Test(t)
	t.Helper()
	return m
}

var _ story.RemoteStoryGenerator = (*MockRemoteStoryGenerator)(nil)
