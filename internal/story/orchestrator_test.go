package story_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"manga-server/internal/mocks"
	"manga-server/internal/models"
	"manga-server/internal/story"
)

func orchestratorOptions() story.Options {
	return story.Options{
		Timeout:         time.Second,
		MaxAttempts:     2,
		BaseRetryDelay:  time.Millisecond,
		MinScenes:       10,
		MaxScenes:       15,
		ReadingSpeedWPM: 200,
	}
}

// remoteStoryOf строит валидную историю на n сцен в границах оркестратора.
func remoteStoryOf(n int, cast []string) models.Story {
	scenes := make([]models.Scene, n)
	for i := range scenes {
		scenes[i] = models.Scene{
			Index:       i,
			Description: fmt.Sprintf("scene %d", i),
			Dialogue:    []models.DialogueLine{{Character: cast[0], Text: "line"}},
		}
	}
	return models.Story{Title: "Remote Tale", Scenes: scenes, Source: models.SourceRemote}
}

func TestOrchestrator_RemoteSuccess(t *testing.T) {
	req := remoteTestRequest()
	remote := mocks.NewMockRemoteStoryGenerator(t)
	remote.On("Generate", mock.Anything, mock.Anything, mock.Anything).
		Return(remoteStoryOf(12, req.Characters), nil).Once()

	local := story.NewLocalSynthesizer(zap.NewNop(), 10, 15)
	orch := story.NewOrchestrator(remote, local, zap.NewNop(), orchestratorOptions())

	result := orch.GenerateStory(context.Background(), req, models.AnalysisResult{Keywords: []string{"ninja"}})

	assert.Equal(t, models.SourceRemote, result.Source)
	assert.Equal(t, "Remote Tale", result.Title)
	assert.Equal(t, 12, result.Metadata.SceneCount)
	assert.Equal(t, []string{"ninja"}, result.Metadata.Themes)
	assert.Greater(t, result.Metadata.EstimatedReadingTimeSeconds, 0)
	remote.AssertExpectations(t)
}

func TestOrchestrator_TransientErrorRetriesThenFallsBack(t *testing.T) {
	req := remoteTestRequest()
	remote := mocks.NewMockRemoteStoryGenerator(t)
	remote.On("Generate", mock.Anything, mock.Anything, mock.Anything).
		Return(models.Story{}, fmt.Errorf("%w: timeout", models.ErrTransientRemote)).Twice()

	local := story.NewLocalSynthesizer(zap.NewNop(), 10, 15)
	orch := story.NewOrchestrator(remote, local, zap.NewNop(), orchestratorOptions())

	result := orch.GenerateStory(context.Background(), req, models.AnalysisResult{})

	// Две попытки исчерпаны, история пришла с локального пути
	assert.Equal(t, models.SourceLocal, result.Source)
	assert.GreaterOrEqual(t, len(result.Scenes), 10)
	remote.AssertNumberOfCalls(t, "Generate", 2)
}

func TestOrchestrator_InvalidPayloadDoesNotRetry(t *testing.T) {
	req := remoteTestRequest()
	remote := mocks.NewMockRemoteStoryGenerator(t)
	remote.On("Generate", mock.Anything, mock.Anything, mock.Anything).
		Return(models.Story{}, fmt.Errorf("%w: malformed", models.ErrInvalidRemotePayload)).Once()

	local := story.NewLocalSynthesizer(zap.NewNop(), 10, 15)
	orch := story.NewOrchestrator(remote, local, zap.NewNop(), orchestratorOptions())

	result := orch.GenerateStory(context.Background(), req, models.AnalysisResult{})

	assert.Equal(t, models.SourceLocal, result.Source)
	remote.AssertNumberOfCalls(t, "Generate", 1)
}

func TestOrchestrator_ValidationRejectsOutOfBoundsSceneCount(t *testing.T) {
	req := remoteTestRequest()
	remote := mocks.NewMockRemoteStoryGenerator(t)
	remote.On("Generate", mock.Anything, mock.Anything, mock.Anything).
		Return(remoteStoryOf(3, req.Characters), nil).Once()

	local := story.NewLocalSynthesizer(zap.NewNop(), 10, 15)
	orch := story.NewOrchestrator(remote, local, zap.NewNop(), orchestratorOptions())

	result := orch.GenerateStory(context.Background(), req, models.AnalysisResult{})

	// 3 сцены вне [10, 15]: ответ отброшен без повтора, сработал fallback
	assert.Equal(t, models.SourceLocal, result.Source)
	remote.AssertNumberOfCalls(t, "Generate", 1)
}

func TestOrchestrator_ValidationRejectsUnknownSpeaker(t *testing.T) {
	req := remoteTestRequest()
	bad := remoteStoryOf(10, req.Characters)
	bad.Scenes[4].Dialogue = []models.DialogueLine{{Character: "Stranger", Text: "who am I"}}

	remote := mocks.NewMockRemoteStoryGenerator(t)
	remote.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(bad, nil).Once()

	local := story.NewLocalSynthesizer(zap.NewNop(), 10, 15)
	orch := story.NewOrchestrator(remote, local, zap.NewNop(), orchestratorOptions())

	result := orch.GenerateStory(context.Background(), req, models.AnalysisResult{})
	assert.Equal(t, models.SourceLocal, result.Source)
	remote.AssertNumberOfCalls(t, "Generate", 1)
}

func TestOrchestrator_NilRemoteUsesLocalPath(t *testing.T) {
	local := story.NewLocalSynthesizer(zap.NewNop(), 10, 15)
	orch := story.NewOrchestrator(nil, local, zap.NewNop(), orchestratorOptions())

	req := remoteTestRequest()
	result := orch.GenerateStory(context.Background(), req, models.AnalysisResult{})

	require.NotEmpty(t, result.Scenes)
	assert.Equal(t, models.SourceLocal, result.Source)
	assert.Equal(t, len(result.Scenes), result.Metadata.SceneCount)
}
