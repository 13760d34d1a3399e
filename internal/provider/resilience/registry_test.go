package resilience_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weatherflows/weatherflows/internal/provider/resilience"
)

func TestRegistry_RegisterOnConstruction(t *testing.T) {
	registry := resilience.NewRegistry()
	cfg := resilience.DefaultClientConfig("openweathermap")
	cfg.Registry = registry

	client := resilience.NewClient(cfg)

	assert.Equal(t, 1, registry.ProviderCount())
	assert.Equal(t, "openweathermap", client.Name())

	health := registry.GetHealth("openweathermap")
	require.NotNil(t, health)
	assert.Equal(t, gobreaker.StateClosed, health.CircuitState)
	assert.Equal(t, resilience.StatusHealthy, health.Status())
}

func TestRegistry_Unregister(t *testing.T) {
	registry := resilience.NewRegistry()
	cfg := resilience.DefaultClientConfig("slack")
	cfg.Registry = registry
	_ = resilience.NewClient(cfg)

	registry.Unregister("slack")

	assert.Equal(t, 0, registry.ProviderCount())
	assert.Nil(t, registry.GetHealth("slack"))
}

func TestRegistry_ClientRecordsOutcomes(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer server.Close()

	registry := resilience.NewRegistry()
	cfg := resilience.DefaultClientConfig("owm")
	cfg.MaxRetries = 0
	cfg.Registry = registry
	client := resilience.NewClient(cfg)

	do := func() {
		req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, http.NoBody)
		require.NoError(t, err)
		resp, err := client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
	}

	do()
	health := registry.GetHealth("owm")
	require.NotNil(t, health.LastSuccessAt)
	assert.Nil(t, health.LastFailureAt)

	status.Store(http.StatusBadGateway)
	do()
	health = registry.GetHealth("owm")
	require.NotNil(t, health.LastFailureAt)
	assert.WithinDuration(t, time.Now(), *health.LastFailureAt, time.Second)
	assert.Contains(t, health.LastError, "Bad Gateway")
}

func TestRegistry_TransportErrorOmitsURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	addr := server.URL
	server.Close()

	registry := resilience.NewRegistry()
	cfg := resilience.DefaultClientConfig("slack")
	cfg.MaxRetries = 0
	cfg.Registry = registry
	client := resilience.NewClient(cfg)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost,
		addr+"/services/T000/B000/XXXXSECRET", http.NoBody)
	require.NoError(t, err)
	resp, err := client.Do(req)
	if resp != nil {
		resp.Body.Close()
	}
	require.Error(t, err)

	health := registry.GetHealth("slack")
	require.NotNil(t, health.LastFailureAt)
	assert.NotEmpty(t, health.LastError)
	assert.NotContains(t, health.LastError, "XXXXSECRET")
}

func TestRegistry_RecordFailure(t *testing.T) {
	registry := resilience.NewRegistry()
	cfg := resilience.DefaultClientConfig("owm")
	cfg.Registry = registry
	_ = resilience.NewClient(cfg)

	registry.RecordFailure("owm", assert.AnError)

	health := registry.GetHealth("owm")
	require.NotNil(t, health)
	require.NotNil(t, health.LastFailureAt)
	assert.Equal(t, assert.AnError.Error(), health.LastError)
}

func TestRegistry_GetAllHealthSorted(t *testing.T) {
	registry := resilience.NewRegistry()
	for _, name := range []string{"slack", "openweathermap", "backup"} {
		cfg := resilience.DefaultClientConfig(name)
		cfg.Registry = registry
		_ = resilience.NewClient(cfg)
	}

	healthList := registry.GetAllHealth()
	require.Len(t, healthList, 3)
	assert.Equal(t, "backup", healthList[0].Name)
	assert.Equal(t, "openweathermap", healthList[1].Name)
	assert.Equal(t, "slack", healthList[2].Name)

	assert.Equal(t, []string{"backup", "openweathermap", "slack"}, registry.GetProviderNames())
}

func TestRegistry_UnknownProvider(t *testing.T) {
	registry := resilience.NewRegistry()

	assert.Nil(t, registry.GetHealth("nonexistent"))
	assert.NotPanics(t, func() {
		registry.RecordSuccess("nonexistent")
		registry.RecordFailure("nonexistent", assert.AnError)
	})
}

func TestProviderHealth_Status(t *testing.T) {
	tests := []struct {
		state  gobreaker.State
		status string
	}{
		{gobreaker.StateClosed, resilience.StatusHealthy},
		{gobreaker.StateHalfOpen, resilience.StatusDegraded},
		{gobreaker.StateOpen, resilience.StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			h := &resilience.ProviderHealth{CircuitState: tt.state}
			assert.Equal(t, tt.status, h.Status())
		})
	}
}
