package logging

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestContextRoundTrip(t *testing.T) {
	entry := logrus.WithField("request_id", "r-1")
	ctx := WithContext(context.Background(), entry)

	assert.Equal(t, "r-1", FromContext(ctx).Data["request_id"])
	assert.Empty(t, FromContext(context.Background()).Data)
}

func TestInitFallsBackToInfo(t *testing.T) {
	Init("chatty", "text")
	assert.Equal(t, logrus.InfoLevel, logrus.GetLevel())

	Init("debug", "json")
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())
	_, isJSON := logrus.StandardLogger().Formatter.(*logrus.JSONFormatter)
	assert.True(t, isJSON)

	Init("info", "text")
}
