package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupDisabled(t *testing.T) {
	p, err := Setup(false, nil)
	require.NoError(t, err)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestSetupExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	p, err := Setup(true, &buf)
	require.NoError(t, err)

	_, span := Tracer().Start(context.Background(), "like.like")
	span.End()

	require.NoError(t, p.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), "like.like")
}
