package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveCycle(t *testing.T) {
	ObserveCycle("titles", ResultCommitted, 3, 1, 40, time.Second)
	ObserveCycle("titles", ResultFailed, 0, 0, 0, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(cyclesTotal.WithLabelValues("titles", ResultCommitted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(cyclesTotal.WithLabelValues("titles", ResultFailed)))
	assert.Equal(t, 3.0, testutil.ToFloat64(eventsTotal.WithLabelValues("titles", "added")))
	assert.Equal(t, 1.0, testutil.ToFloat64(eventsTotal.WithLabelValues("titles", "removed")))
	assert.Equal(t, 40.0, testutil.ToFloat64(snapshotKeys.WithLabelValues("titles")))
}

func TestHandlerServesMetrics(t *testing.T) {
	SetSnapshot("bans", 7)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `wikibot_snapshot_keys{feed="bans"} 7`)
}
