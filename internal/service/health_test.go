package service

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"PuckRelay/internal/biz"
	"PuckRelay/internal/conf"
	"PuckRelay/internal/data"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-kratos/kratos/v2/log"
	khttp "github.com/go-kratos/kratos/v2/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHealthServer(t *testing.T, redisAddr string) *khttp.Server {
	t.Helper()
	logger := log.NewStdLogger(io.Discard)
	c := &conf.Data{Redis: &conf.DataRedis{Addr: redisAddr}}

	rdb, cleanupRedis, err := data.NewRedisClient(c, logger)
	require.NoError(t, err)
	t.Cleanup(cleanupRedis)
	d, cleanup, err := data.NewData(c, logger, rdb, nil, data.NewEventAuditor(nil, nil, logger))
	require.NoError(t, err)
	t.Cleanup(cleanup)

	events := biz.NewEventBus(logger)
	registry := biz.NewRequestRegistry()
	tracker, err := biz.NewRateLimitTracker(data.NewMemoryRateLimitRepo(), nil, events, logger)
	require.NoError(t, err)
	endpoints := &biz.ProviderEndpoints{Primary: &biz.ProviderEndpoint{
		Config:    biz.ProviderConfig{Identity: "gemini", Model: "gemini-model"},
		Transport: &stubTransport{reply: textReply("ok")},
	}}
	router, err := biz.NewProviderRouter(endpoints, nil, tracker,
		biz.NewMediaPartAssembler(nil, nil, events, logger), registry, events, logger)
	require.NoError(t, err)

	srv := khttp.NewServer()
	RegisterHealthHTTPServer(srv, NewHealthService(biz.NewHealthUsecase(d, router)))
	return srv
}

func TestHTTP_Healthz(t *testing.T) {
	mr := miniredis.RunT(t)
	srv := newTestHealthServer(t, mr.Addr())

	rec := doJSON(t, srv, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var reply HealthReply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.Equal(t, HealthStatusOK, reply.Status)
	assert.Equal(t, map[string]bool{"redis": true}, reply.Storage)

	mr.Close()
	rec = doJSON(t, srv, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.Equal(t, HealthStatusDegraded, reply.Status)
	assert.Equal(t, map[string]bool{"redis": false}, reply.Storage)
}

func TestHTTP_HealthzWithoutStorage(t *testing.T) {
	srv := newTestHealthServer(t, "")

	rec := doJSON(t, srv, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","storage":{}}`, rec.Body.String())
}
