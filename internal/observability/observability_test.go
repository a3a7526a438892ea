package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/upb/ai-racers/models"
)

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("debug", "json")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = NewLogger("WARN", "text")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	_, err = NewLogger("loud", "json")
	assert.Error(t, err)
}

func TestCollector(t *testing.T) {
	c := NewCollector()

	pending := models.NewPendingResult(models.Pair{ProviderID: models.ProviderOpenAI, ModelID: "gpt-4o"})
	c.RecordResult(pending)
	assert.Empty(t, c.Snapshot(), "unsettled results are ignored")

	in, out := 100, 20
	ok := pending
	ok.MarkAsLoading(time.Now())
	ok.MarkAsSucceeded("hi", 300, &models.TokenUsage{PromptTokens: &in, CompletionTokens: &out}, time.Now())
	c.RecordResult(ok)

	failedMs := int64(100)
	bad := models.NewPendingResult(models.Pair{ProviderID: models.ProviderOpenAI, ModelID: "gpt-4o-mini"})
	bad.MarkAsFailed("boom", &failedMs, time.Now())
	c.RecordResult(bad)

	gem := models.NewPendingResult(models.Pair{ProviderID: models.ProviderGemini, ModelID: "gemini-1.5-pro"})
	gem.MarkAsFailed("Provider configuration not found", nil, time.Now())
	c.RecordResult(gem)

	stats := c.Snapshot()
	require.Len(t, stats, 2)

	assert.Equal(t, models.ProviderGemini, stats[0].Provider)
	assert.Equal(t, 1, stats[0].Failures)
	assert.Zero(t, stats[0].Timed)
	assert.Zero(t, stats[0].AverageMs())

	assert.Equal(t, models.ProviderOpenAI, stats[1].Provider)
	assert.Equal(t, 1, stats[1].Successes)
	assert.Equal(t, 1, stats[1].Failures)
	assert.Equal(t, int64(200), stats[1].AverageMs())
	assert.Equal(t, 100, stats[1].InputTokens)
	assert.Equal(t, 20, stats[1].OutputTokens)
}

func TestCollector_AverageSkipsUntimedResults(t *testing.T) {
	c := NewCollector()

	ok := models.NewPendingResult(models.Pair{ProviderID: models.ProviderOpenAI, ModelID: "gpt-4o"})
	ok.MarkAsLoading(time.Now())
	ok.MarkAsSucceeded("hi", 100, nil, time.Now())
	c.RecordResult(ok)

	missing := models.NewPendingResult(models.Pair{ProviderID: models.ProviderOpenAI, ModelID: "gpt-4o-mini"})
	missing.MarkAsFailed("Provider configuration not found", nil, time.Now())
	c.RecordResult(missing)

	stats := c.Snapshot()
	require.Len(t, stats, 1)
	assert.Equal(t, 1, stats[0].Timed)
	assert.Equal(t, int64(100), stats[0].AverageMs())
}
