package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazz-dev/upnotif/internal/checker"
	"github.com/hazz-dev/upnotif/internal/config"
	"github.com/hazz-dev/upnotif/internal/notify"
)

func testConfig(urls ...string) *config.Config {
	return &config.Config{
		URLs:            urls,
		SlackWebhook:    notify.TestModeWebhook,
		IntervalSeconds: 60,
		TimeoutSeconds:  5,
		Concurrency:     2,
	}
}

func TestRunChecks_AllUp_OutputFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	var buf bytes.Buffer
	err := runChecks(context.Background(), &buf, cfg, checker.New(cfg.Timeout(), nil))
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "URL")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, srv.URL)
	assert.Contains(t, output, "up")
	assert.Contains(t, output, "200")
}

func TestRunChecks_MultipleTargets(t *testing.T) {
	srv1 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv1.Close()

	srv2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv2.Close()

	cfg := testConfig(srv1.URL, srv2.URL)
	var buf bytes.Buffer
	require.NoError(t, runChecks(context.Background(), &buf, cfg, checker.New(cfg.Timeout(), nil)))

	output := buf.String()
	assert.Contains(t, output, srv1.URL)
	assert.Contains(t, output, srv2.URL)
	assert.Less(t, bytes.Index(buf.Bytes(), []byte(srv1.URL)), bytes.Index(buf.Bytes(), []byte(srv2.URL)),
		"rows follow configured order")
}

func TestRunChecks_DownTargetFails(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer up.Close()

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer broken.Close()

	cfg := testConfig(up.URL, broken.URL)
	var buf bytes.Buffer
	err := runChecks(context.Background(), &buf, cfg, checker.New(cfg.Timeout(), nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 targets are down")

	output := buf.String()
	assert.Contains(t, output, "down")
	assert.Contains(t, output, "503")
}
