package use_case

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trunov/mediafinalizer/internal/config"
	"github.com/trunov/mediafinalizer/internal/entities"
	"github.com/trunov/mediafinalizer/internal/jobs"
	"github.com/trunov/mediafinalizer/internal/objectstore"
	"github.com/trunov/mediafinalizer/internal/queue"
	"github.com/trunov/mediafinalizer/internal/sigv4"
)

// Wires the real verifier and SQS dispatcher against local HTTP stand-ins.
func TestFinalizeUploadOverHTTP(t *testing.T) {
	var heads int32
	store := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		assert.Equal(t, "/media/"+keyPath, r.URL.Path)
		assert.Contains(t, r.Header.Get("Authorization"), "/s3/aws4_request")
		if atomic.AddInt32(&heads, 1) == 1 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer store.Close()

	var bodies []string
	sqs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		assert.Contains(t, r.Header.Get("Authorization"), "/sqs/aws4_request")
		assert.Equal(t, sigv4.HashPayload(b), r.Header.Get(sigv4.HeaderContentSHA256))
		_, _ = io.WriteString(w, `{"MessageId":"sqs-msg-1"}`)
	}))
	defer sqs.Close()

	creds := sigv4.StaticProvider{AccessKeyID: "AKID", SecretAccessKey: "SECRET"}
	logger := zap.NewNop()

	verifier := objectstore.NewVerifier(&config.ObjectStoreConfig{
		Endpoint:       store.URL,
		Region:         "us-east-1",
		MaxAttempts:    5,
		BackoffBase:    1,
		RequestTimeout: 5,
	}, creds, logger, nil)
	dispatcher := queue.NewSQSDispatcher(&config.QueueConfig{
		URL:            sqs.URL + "/123456789012/media-jobs",
		Region:         "us-east-1",
		Protocol:       config.QueueProtocolJSON,
		RequestTimeout: 5,
	}, creds, logger, nil)

	db := newFakeDB()
	uc := New(member(), db, verifier, jobs.New(db, logger), dispatcher, "media", entities.JobTypeTranscode, logger, nil)

	res, err := uc.FinalizeUpload(context.Background(), params())
	require.NoError(t, err)

	assert.EqualValues(t, 2, atomic.LoadInt32(&heads))
	assert.Equal(t, "sqs-msg-1", res.MessageID)
	require.Len(t, bodies, 1)
	assert.True(t, strings.Contains(bodies[0], res.JobID), bodies[0])
	assert.Equal(t, 1, db.jobCount())
	assert.Equal(t, entities.MediaStatusReady, db.asset().Status)
}
