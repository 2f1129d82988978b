package ocr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// jobServer fakes the OCR service's processing endpoints. It serves the
// scripted job snapshots in order, repeating the last one.
type jobServer struct {
	mu         sync.Mutex
	script     []Job
	statusHits int
	startFails int
	cancelCode int
	cancelHits int
}

func (s *jobServer) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/process", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		fail := s.startFails > 0
		if fail {
			s.startFails--
		}
		s.mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"code": "BUSY", "message": "try later"})
			return
		}
		json.NewEncoder(w).Encode(Job{JobID: "job-test", Status: JobPending})
	})

	mux.HandleFunc("/status/", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		idx := s.statusHits
		if idx >= len(s.script) {
			idx = len(s.script) - 1
		}
		job := s.script[idx]
		s.statusHits++
		s.mu.Unlock()
		json.NewEncoder(w).Encode(job)
	})

	mux.HandleFunc("/cancel", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.cancelHits++
		code := s.cancelCode
		s.mu.Unlock()
		if code != 0 {
			w.WriteHeader(code)
			return
		}
		json.NewEncoder(w).Encode(CancelResult{Success: true})
	})

	return mux
}

func TestStartProcessing_MalformedBodyRetriedOnce(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	client := NewJobClient(testConfig(srv.URL), zap.NewNop())
	_, err := client.StartProcessing(context.Background(), "up-1")
	require.Error(t, err)

	var clientErr *Error
	require.ErrorAs(t, err, &clientErr)
	assert.Equal(t, "DECODE_FAILED", clientErr.Code)
	assert.Equal(t, 2, hits, "a malformed body gets one retry, not the full attempt budget")
}

func TestStartProcessing(t *testing.T) {
	t.Run("missing upload id", func(t *testing.T) {
		client := NewJobClient(testConfig("http://unreachable.invalid"), zap.NewNop())
		_, err := client.StartProcessing(context.Background(), "")
		require.Error(t, err)
		var clientErr *Error
		require.ErrorAs(t, err, &clientErr)
		assert.Equal(t, KindValidation, clientErr.Kind)
	})

	t.Run("retries transient failures with backoff", func(t *testing.T) {
		fake := &jobServer{startFails: 2}
		srv := httptest.NewServer(fake.handler())
		defer srv.Close()

		client := NewJobClient(testConfig(srv.URL), zap.NewNop())
		job, err := client.StartProcessing(context.Background(), "up-1")
		require.NoError(t, err)
		assert.Equal(t, "job-test", job.JobID)
	})

	t.Run("gives up after the retry budget", func(t *testing.T) {
		fake := &jobServer{startFails: 10}
		srv := httptest.NewServer(fake.handler())
		defer srv.Close()

		client := NewJobClient(testConfig(srv.URL), zap.NewNop())
		_, err := client.StartProcessing(context.Background(), "up-1")
		require.Error(t, err)
		assert.True(t, IsRetryable(err))
	})
}

func TestPollStatus_RunsToCompletion(t *testing.T) {
	fake := &jobServer{script: []Job{
		{JobID: "job-test", Status: JobActive, Progress: 20, Stage: StageExtractingText},
		{JobID: "job-test", Status: JobActive, Progress: 70, Stage: StageClassifyingData},
		{JobID: "job-test", Status: JobCompleted, Progress: 100, Result: &Result{
			ExtractedText: "FUEL 42.00",
			Type:          "Fuel",
			Amount:        42,
		}},
	}}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client := NewJobClient(testConfig(srv.URL), zap.NewNop())

	var observed []int
	job, err := client.PollStatus(context.Background(), "job-test", func(j *Job) {
		observed = append(observed, j.Progress)
	})
	require.NoError(t, err)
	require.NotNil(t, job.Result)
	assert.Equal(t, JobCompleted, job.Status)
	assert.Equal(t, []int{20, 70}, observed, "only non-terminal snapshots are surfaced as progress")
}

func TestPollStatus_BoundedByMaxAttempts(t *testing.T) {
	fake := &jobServer{script: []Job{
		{JobID: "job-test", Status: JobActive, Progress: 10},
	}}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	cfg := testConfig(srv.URL) // MaxPollAttempts: 3
	client := NewJobClient(cfg, zap.NewNop())

	_, err := client.PollStatus(context.Background(), "job-test", nil)
	require.Error(t, err)

	var clientErr *Error
	require.ErrorAs(t, err, &clientErr)
	assert.Equal(t, KindTimeout, clientErr.Kind)
	assert.True(t, clientErr.Retryable, "a poll timeout is retryable by restarting the poll")
	assert.Equal(t, cfg.MaxPollAttempts, fake.statusHits)
}

func TestPollStatus_Cancellation(t *testing.T) {
	fake := &jobServer{script: []Job{
		{JobID: "job-test", Status: JobActive, Progress: 10},
	}}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client := NewJobClient(testConfig(srv.URL), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	_, err := client.PollStatus(ctx, "job-test", func(j *Job) {
		cancel()
	})
	require.Error(t, err)
	assert.True(t, IsCancelled(err))
	assert.Equal(t, 1, fake.statusHits, "polling must stop at the first cancellation check")
}

func TestGetStatus_SingleAttempt(t *testing.T) {
	fake := &jobServer{startFails: 0, script: []Job{{JobID: "job-test", Status: JobActive}}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fake.mu.Lock()
		fake.statusHits++
		fake.mu.Unlock()
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewJobClient(testConfig(srv.URL), zap.NewNop())
	_, err := client.GetStatus(context.Background(), "job-test")
	require.Error(t, err)
	assert.Equal(t, 1, fake.statusHits, "status fetch must not retry")
}

func TestCancelJob_AlwaysSucceeds(t *testing.T) {
	tests := []struct {
		name       string
		cancelCode int
	}{
		{"server accepts", 0},
		{"server errors", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &jobServer{cancelCode: tt.cancelCode}
			srv := httptest.NewServer(fake.handler())
			defer srv.Close()

			client := NewJobClient(testConfig(srv.URL), zap.NewNop())
			// CancelJob has no error return: user-perceived cancellation
			// never fails
			client.CancelJob(context.Background(), "job-test")
			assert.Equal(t, 1, fake.cancelHits)
		})
	}
}
