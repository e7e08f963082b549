package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartcost/backend/internal/domain"
)

type fakePutter struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (f *fakePutter) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(params.Body)
	f.inputs = append(f.inputs, params)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func testReport() domain.RefreshReport {
	start := time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC)
	return domain.RefreshReport{RunID: "run-1", StartedAt: start, FinishedAt: start.Add(time.Minute), RowsWritten: 1}
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "archive/prod/2026-03-01/run-1.json", newSink(nil, "b", "prod").ObjectKey(testReport()))
	assert.Equal(t, "archive/2026-03-01/run-1.json", newSink(nil, "b", "").ObjectKey(testReport()))
}

func TestPublish(t *testing.T) {
	putter := &fakePutter{}
	sink := newSink(putter, "prices", "dev")
	records := []domain.PriceRecord{{StoreID: "S1", IngredientName: "milk", Unit: "cup", PricePerUnit: 0.25}}

	require.NoError(t, sink.Publish(context.Background(), testReport(), records))
	require.Len(t, putter.inputs, 1)
	assert.Equal(t, "prices", aws.ToString(putter.inputs[0].Bucket))
	assert.Equal(t, "archive/dev/2026-03-01/run-1.json", aws.ToString(putter.inputs[0].Key))
	assert.Equal(t, "1", putter.inputs[0].Metadata["rows"])

	var snap Snapshot
	require.NoError(t, json.Unmarshal(putter.bodies[0], &snap))
	assert.Equal(t, "run-1", snap.Report.RunID)
	assert.Equal(t, records[0].PricePerUnit, snap.Prices[0].PricePerUnit)
}

func TestPublish_Error(t *testing.T) {
	sink := newSink(&fakePutter{err: errors.New("access denied")}, "prices", "")
	err := sink.Publish(context.Background(), testReport(), nil)
	assert.ErrorContains(t, err, "access denied")
}

func TestNew_AgainstFakeEndpoint(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.Method+" "+r.URL.Path)
		mu.Unlock()
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink, err := New(context.Background(), Config{
		Bucket:          "prices",
		Endpoint:        server.URL,
		PathStyle:       true,
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
	})
	require.NoError(t, err)
	require.NoError(t, sink.Publish(context.Background(), testReport(), nil))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"PUT /prices/archive/2026-03-01/run-1.json"}, paths)
}

func TestNew_RequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}
