package app

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UrielMangisto/ShoppingWebsite-sub000/carttest"
	"github.com/UrielMangisto/ShoppingWebsite-sub000/engine"
	"github.com/UrielMangisto/ShoppingWebsite-sub000/internal/config"
	"github.com/UrielMangisto/ShoppingWebsite-sub000/pkg/logger"
)

// syncBuffer serializes writes from the engine's event dispatcher goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		Environment:                "test",
		LogLevel:                   "info",
		APIBaseURL:                 baseURL,
		FreeShippingThresholdCents: 5000,
		FlatShippingFeeCents:       499,
		TaxRateBps:                 850,
		HTTPTimeout:                5 * time.Second,
		OpsHTTPPort:                8090,
	}
}

func TestAppLogsCartEvents(t *testing.T) {
	srv := carttest.NewServer(carttest.WithProducts(
		carttest.Product{ID: "prod-1", UnitPrice: 1299, Stock: 5},
	))
	t.Cleanup(srv.Close)

	buf := &syncBuffer{}
	log := logger.NewWithWriter("cartsyncd", "info", buf)

	application, err := NewApp(testConfig(srv.URL()), log)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, application.Engine().Load(ctx))
	require.NoError(t, application.Engine().AddItem(ctx, engine.AddItemInput{
		ProductID: "prod-1", Quantity: 2, UnitPriceHint: 1299,
	}))
	require.NoError(t, application.Engine().AddItem(ctx, engine.AddItemInput{
		ProductID: "prod-1", Quantity: 10, UnitPriceHint: 1299,
	}))

	// Shutdown quiesces the engine and drains the event stream, so by the
	// time it returns every event has passed through the log subscriber.
	require.NoError(t, application.Shutdown())

	out := buf.String()
	assert.Contains(t, out, "cart snapshot changed")
	assert.Contains(t, out, "cart mutation failed")
	assert.Contains(t, out, "insufficient stock")
}
