package worker

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"offload-desktop/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientListJobs(t *testing.T) {
	t.Run("Should decode the job list and pass the domain filter", func(t *testing.T) {
		var gotDomain string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/api/jobs", r.URL.Path)
			gotDomain = r.URL.Query().Get("domain")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"jobs": []models.Job{
					{ID: "job-1", Domain: models.DomainBackup, Status: models.StatusInProgress},
				},
			})
		}))
		defer server.Close()

		client := NewClient(server.URL, "")
		jobs, err := client.ListJobs(models.DomainBackup)

		require.NoError(t, err)
		assert.Equal(t, "backup", gotDomain)
		require.Len(t, jobs, 1)
		assert.Equal(t, "job-1", jobs[0].ID)
	})

	t.Run("Should surface the worker's error message", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "unknown domain"})
		}))
		defer server.Close()

		client := NewClient(server.URL, "")
		_, err := client.ListJobs("archive")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown domain")
	})
}

func TestClientAuth(t *testing.T) {
	t.Run("Should send the bearer token when configured", func(t *testing.T) {
		var gotAuth string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := NewClient(server.URL, "s3cret")
		require.NoError(t, client.Ping())

		assert.Equal(t, "Bearer s3cret", gotAuth)
	})

	t.Run("Should omit the header without a token", func(t *testing.T) {
		var gotAuth string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := NewClient(server.URL, "")
		require.NoError(t, client.Ping())

		assert.Empty(t, gotAuth)
	})
}

func TestClientCreateJob(t *testing.T) {
	t.Run("Should generate an idempotency key when the caller omits one", func(t *testing.T) {
		var got CreateJobRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			json.NewEncoder(w).Encode(models.Job{ID: "job-1", Domain: got.Domain, Status: models.StatusPending})
		}))
		defer server.Close()

		client := NewClient(server.URL, "")
		job, err := client.CreateJob(CreateJobRequest{
			Domain:          models.DomainImport,
			SourcePath:      "/Volumes/CARD01",
			DestinationPath: "/archive/shoot-012",
		})

		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, job.Status)
		assert.NotEmpty(t, got.RequestID)
	})

	t.Run("Should preserve a caller-supplied idempotency key", func(t *testing.T) {
		var got CreateJobRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			json.NewEncoder(w).Encode(models.Job{ID: "job-1"})
		}))
		defer server.Close()

		client := NewClient(server.URL, "")
		_, err := client.CreateJob(CreateJobRequest{Domain: models.DomainBackup, RequestID: "fixed-key"})

		require.NoError(t, err)
		assert.Equal(t, "fixed-key", got.RequestID)
	})
}

func TestClientJobOperations(t *testing.T) {
	t.Run("Should hit the per-job action endpoints", func(t *testing.T) {
		var paths []string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			paths = append(paths, r.Method+" "+r.URL.Path)
			if r.URL.Path == "/api/jobs/job-1/start" {
				json.NewEncoder(w).Encode(models.Job{ID: "job-1", Status: models.StatusInProgress})
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := NewClient(server.URL, "")

		job, err := client.StartJob("job-1")
		require.NoError(t, err)
		assert.Equal(t, models.StatusInProgress, job.Status)

		require.NoError(t, client.CancelJob("job-1"))
		require.NoError(t, client.RemoveJob("job-1"))
		require.NoError(t, client.CancelTransfer("tr-9"))

		assert.Equal(t, []string{
			"POST /api/jobs/job-1/start",
			"POST /api/jobs/job-1/cancel",
			"DELETE /api/jobs/job-1",
			"POST /api/transfers/tr-9/cancel",
		}, paths)
	})
}

func TestClientListVolumes(t *testing.T) {
	t.Run("Should decode the volume snapshot", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/api/volumes", r.URL.Path)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"volumes": []models.Volume{
					{Path: "/Volumes/CARD01", Name: "CARD01", FileCount: 482},
				},
			})
		}))
		defer server.Close()

		client := NewClient(server.URL, "")
		vols, err := client.ListVolumes()

		require.NoError(t, err)
		require.Len(t, vols, 1)
		assert.Equal(t, "/Volumes/CARD01", vols[0].Path)
		assert.Equal(t, 482, vols[0].FileCount)
	})
}
