package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" authorization = Bearer abc ,x-tenant=lending,,=orphan,novalue")
	require.Equal(t, map[string]string{
		"authorization": "Bearer abc",
		"x-tenant":      "lending",
	}, headers)
	require.Empty(t, ParseHeaders(""))
}

func TestInitRequiresServiceName(t *testing.T) {
	_, err := Init(context.Background(), Config{})
	require.Error(t, err)
}

func TestInitWithoutExporters(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "lending-sim"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
