package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankitjan/rules-engine/internal/eventbus"
	"github.com/ankitjan/rules-engine/internal/events"
)

func TestCollector(t *testing.T) {
	eventbus.Use(eventbus.New())
	defer eventbus.Use(nil)

	c, err := Register(prometheus.NewRegistry())
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	eventbus.Publish(ctx, events.ExecFinish{RuleID: "r1", Outcome: true, Duration: 50 * time.Millisecond})
	eventbus.Publish(ctx, events.ExecFinish{RuleID: "r1", Outcome: false, Duration: 10 * time.Millisecond})
	eventbus.Publish(ctx, events.ExecFinish{RuleID: "r1", ErrorKind: "DataServiceFailure"})
	eventbus.Publish(ctx, events.FetchFinish{Field: "creditScore", Status: 200, Attempts: 1, Duration: time.Millisecond})
	eventbus.Publish(ctx, events.FetchFinish{Field: "creditScore", Err: context.DeadlineExceeded})
	eventbus.Publish(ctx, events.CacheHit{Field: "creditScore"})
	eventbus.Publish(ctx, events.CacheHit{Field: "creditScore"})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.execTotal.WithLabelValues("r1", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.execTotal.WithLabelValues("r1", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.execTotal.WithLabelValues("r1", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.fetchTotal.WithLabelValues("creditScore", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.fetchTotal.WithLabelValues("creditScore", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.cacheHits.WithLabelValues("creditScore")))
}

func TestCollector_CloseDetaches(t *testing.T) {
	eventbus.Use(eventbus.New())
	defer eventbus.Use(nil)

	c, err := Register(prometheus.NewRegistry())
	require.NoError(t, err)
	c.Close()

	eventbus.Publish(context.Background(), events.CacheHit{Field: "x"})
	assert.Equal(t, 0.0, testutil.ToFloat64(c.cacheHits.WithLabelValues("x")))
}
