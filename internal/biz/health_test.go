package biz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubStorageHealth map[string]bool

func (s stubStorageHealth) Healthy(context.Context) map[string]bool { return s }

func TestHealthUsecase_Check(t *testing.T) {
	t.Run("all backends up", func(t *testing.T) {
		f := newRouterFixture(t, &fakeTransport{}, &fakeTransport{})
		uc := NewHealthUsecase(stubStorageHealth{"redis": true, "mysql": true}, f.router)

		report := uc.Check(context.Background())
		assert.False(t, report.Degraded)
		assert.Equal(t, map[string]bool{"redis": true, "mysql": true}, report.Storage)
		assert.Empty(t, report.OpenCircuits)
	})

	t.Run("backend down and circuit open", func(t *testing.T) {
		f := newRouterFixture(t, &fakeTransport{}, &fakeTransport{})
		breaker := f.router.primary.Executor.Breaker()
		for i := 0; i < DefaultFailureThreshold; i++ {
			breaker.RecordFailure()
		}
		uc := NewHealthUsecase(stubStorageHealth{"redis": false}, f.router)

		report := uc.Check(context.Background())
		assert.True(t, report.Degraded)
		assert.Equal(t, []string{"gemini"}, report.OpenCircuits)
	})

	t.Run("no storage configured", func(t *testing.T) {
		f := newRouterFixture(t, &fakeTransport{}, nil)
		report := NewHealthUsecase(nil, f.router).Check(context.Background())
		assert.False(t, report.Degraded)
		assert.Empty(t, report.Storage)
	})
}
