package crm

import (
	"context"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secnex/crm-gateway/metrics"
)

func TestMetrics_LoginOutcomes(t *testing.T) {
	success := metrics.LoginTotal.WithLabelValues(metrics.ResultSuccess)
	failure := metrics.LoginTotal.WithLabelValues(metrics.ResultFailure)
	beforeSuccess, beforeFailure := testutil.ToFloat64(success), testutil.ToFloat64(failure)

	f := newFakeCRM(t)
	clock := newFakeClock()
	tc := newTestTokenCache(f, clock)

	_, err := tc.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, float64(tc.ExpiresAt().Unix()), testutil.ToFloat64(metrics.TokenExpiryGauge))

	f.setLogin(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	clock.Advance(DefaultTokenTTL)
	_, err = tc.Token(context.Background())
	require.Error(t, err)

	assert.Equal(t, beforeSuccess+1, testutil.ToFloat64(success))
	assert.Equal(t, beforeFailure+1, testutil.ToFloat64(failure))
}

func TestMetrics_UpstreamAndAttachments(t *testing.T) {
	rejected := metrics.UpstreamRequestsTotal.WithLabelValues(RouteAttachment.Name, metrics.ResultFailure)
	accepted := metrics.UpstreamRequestsTotal.WithLabelValues(RouteAttachment.Name, metrics.ResultSuccess)
	failedFiles := metrics.AttachmentsTotal.WithLabelValues(metrics.ResultFailure)
	uploadedFiles := metrics.AttachmentsTotal.WithLabelValues(metrics.ResultSuccess)
	before := []float64{
		testutil.ToFloat64(rejected),
		testutil.ToFloat64(accepted),
		testutil.ToFloat64(failedFiles),
		testutil.ToFloat64(uploadedFiles),
	}

	f := newFakeCRM(t)
	f.setData(func(w http.ResponseWriter, r *http.Request) {
		if decodeRequest(t, r).Filename == "file-2.pdf" {
			http.Error(w, "boom", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`"ok"`))
	})
	c := newTestClient(t, f)

	_, err := c.UploadAttachments(context.Background(), AttachmentUpload{
		CaseID:  "case-1",
		Subject: "s",
		Files:   makeFiles(3),
	})
	require.Error(t, err)

	assert.Equal(t, before[0]+1, testutil.ToFloat64(rejected))
	assert.Equal(t, before[1]+2, testutil.ToFloat64(accepted))
	assert.Equal(t, before[2]+1, testutil.ToFloat64(failedFiles))
	assert.Equal(t, before[3]+2, testutil.ToFloat64(uploadedFiles))
}
