package testutil_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ClinLink/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ClinLink/internal/testutil"
)

func TestMockLogger(t *testing.T) {
	logger := testutil.NewMockLogger()

	logger.Info("test info", logging.String("key", "value"))

	messages := logger.GetMessages()
	assert.Len(t, messages, 1)
	assert.Equal(t, "info", messages[0].Level)
	assert.Equal(t, "test info", messages[0].Message)

	logger.Clear()
	assert.Len(t, logger.GetMessages(), 0)

	logger.Error("test error")
	assert.True(t, logger.HasMessage("error", "test error"))
	assert.False(t, logger.HasMessage("info", "test info"))
	assert.Equal(t, 1, logger.Count("error"))
}

func TestMockLogger_WithAndNamedShareRecord(t *testing.T) {
	root := testutil.NewMockLogger()
	child := root.Named("linker").With(logging.ConceptID("C1"))

	child.Warn("rejected", logging.Float64("similarity", 0.1))

	msg, ok := root.Find("warn", "rejected")
	require.True(t, ok)
	assert.Equal(t, "linker", msg.Logger)
	v, ok := msg.Field("cui")
	require.True(t, ok)
	assert.Equal(t, "C1", v)
	_, ok = msg.Field("missing")
	assert.False(t, ok)
}

//Personal.AI order the ending
