package platform

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaushalkrishnax/inflow-backend/internal/domain"
	"github.com/kaushalkrishnax/inflow-backend/internal/media"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeMediaSource serves entries from a map, backing each with a real
// temp file so adapters can open and stream it.
type fakeMediaSource struct {
	entries map[string]*media.Entry
}

func newFakeMediaSource(t *testing.T) *fakeMediaSource {
	t.Helper()
	return &fakeMediaSource{entries: make(map[string]*media.Entry)}
}

func (f *fakeMediaSource) add(t *testing.T, id, name, mimeType string, content []byte) *media.Entry {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	entry := &media.Entry{
		ID:           id,
		Path:         path,
		OriginalName: name,
		MimeType:     mimeType,
		Size:         int64(len(content)),
	}
	f.entries[id] = entry
	return entry
}

func (f *fakeMediaSource) Get(id string) (*media.Entry, error) {
	entry, ok := f.entries[id]
	if !ok {
		return nil, domain.ErrMediaNotFound
	}
	return entry, nil
}

func newFacebook(serverURL string, source MediaSource) *Facebook {
	return NewFacebook(FacebookConfig{
		BaseURL:    serverURL,
		APIVersion: "v21.0",
	}, nil, source, testLogger())
}

func fbJob(contentType domain.ContentType) *domain.Job {
	return &domain.Job{
		ID:          "job-fb",
		Platform:    domain.PlatformFacebook,
		ContentType: contentType,
		Payload: domain.Payload{
			Message:     "hello from the scheduler",
			Description: "a description",
			PageID:      "page-1",
			AccessToken: "token-1",
		},
	}
}

func TestFacebook_PublishTextPost(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v21.0/page-1/feed", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "hello from the scheduler", r.PostFormValue("message"))
		assert.Equal(t, "true", r.PostFormValue("published"))
		assert.Equal(t, "token-1", r.PostFormValue("access_token"))

		json.NewEncoder(w).Encode(map[string]string{"id": "post-42"})
	}))
	defer server.Close()

	fb := newFacebook(server.URL, newFakeMediaSource(t))

	externalID, err := fb.Publish(context.Background(), fbJob(domain.ContentTypePost))
	require.NoError(t, err)
	assert.Equal(t, "post-42", externalID)
}

func TestFacebook_PublishPhotoPost(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v21.0/page-1/photos", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "hello from the scheduler", r.FormValue("caption"))
		assert.Equal(t, "token-1", r.FormValue("access_token"))

		file, header, err := r.FormFile("source")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "pic.jpg", header.Filename)

		content, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, []byte("jpegbytes"), content)

		json.NewEncoder(w).Encode(map[string]string{"id": "photo-7"})
	}))
	defer server.Close()

	source := newFakeMediaSource(t)
	source.add(t, "media-1", "pic.jpg", "image/jpeg", []byte("jpegbytes"))

	fb := newFacebook(server.URL, source)

	job := fbJob(domain.ContentTypePost)
	job.MediaID = "media-1"

	externalID, err := fb.Publish(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, "photo-7", externalID)
}

func TestFacebook_PublishReel(t *testing.T) {
	var uploadedBytes []byte

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/v21.0/page-1/video_reels", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		switch body["upload_phase"] {
		case "start":
			json.NewEncoder(w).Encode(map[string]string{
				"video_id":   "vid-1",
				"upload_url": server.URL + "/rupload/vid-1",
			})
		case "finish":
			assert.Equal(t, "PUBLISHED", body["video_state"])
			assert.Equal(t, "vid-1", body["video_id"])
			assert.Equal(t, "a description", body["description"])
			json.NewEncoder(w).Encode(map[string]string{"post_id": "reel-99"})
		default:
			t.Errorf("unexpected upload_phase %q", body["upload_phase"])
		}
	})

	mux.HandleFunc("/rupload/vid-1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "OAuth token-1", r.Header.Get("Authorization"))
		assert.Equal(t, "0", r.Header.Get("offset"))
		assert.Equal(t, "10", r.Header.Get("file_size"))

		var err error
		uploadedBytes, err = io.ReadAll(r.Body)
		require.NoError(t, err)

		json.NewEncoder(w).Encode(map[string]bool{"success": true})
	})

	source := newFakeMediaSource(t)
	source.add(t, "media-reel", "reel.mp4", "video/mp4", []byte("0123456789"))

	fb := newFacebook(server.URL, source)

	job := fbJob(domain.ContentTypeReel)
	job.MediaID = "media-reel"

	externalID, err := fb.Publish(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, "reel-99", externalID)
	assert.Equal(t, []byte("0123456789"), uploadedBytes)
}

func TestFacebook_PublishStory_Video(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/v21.0/page-1/videos", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "false", r.FormValue("published"))
		json.NewEncoder(w).Encode(map[string]string{"id": "upload-5"})
	})

	mux.HandleFunc("/v21.0/page-1/video_stories", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "upload-5", body["video_id"])
		assert.Equal(t, "finish", body["upload_phase"])
		json.NewEncoder(w).Encode(map[string]string{"id": "story-5"})
	})

	source := newFakeMediaSource(t)
	source.add(t, "media-story", "story.mp4", "video/mp4", []byte("videobytes"))

	fb := newFacebook(server.URL, source)

	job := fbJob(domain.ContentTypeStory)
	job.MediaID = "media-story"

	externalID, err := fb.Publish(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, "story-5", externalID)
}

func TestFacebook_PublishError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":{"message":"Invalid OAuth access token"}}`)
	}))
	defer server.Close()

	fb := newFacebook(server.URL, newFakeMediaSource(t))

	_, err := fb.Publish(context.Background(), fbJob(domain.ContentTypePost))
	require.Error(t, err)

	var platformErr *domain.PlatformError
	require.ErrorAs(t, err, &platformErr)
	assert.Equal(t, domain.PlatformFacebook, platformErr.Platform)
	assert.Equal(t, http.StatusBadRequest, platformErr.StatusCode)
	assert.Contains(t, platformErr.Body, "Invalid OAuth access token")
}

func TestFacebook_PublishMediaMissing(t *testing.T) {
	fb := newFacebook("http://unused", newFakeMediaSource(t))

	job := fbJob(domain.ContentTypeReel)
	job.MediaID = "does-not-exist"

	_, err := fb.Publish(context.Background(), job)
	assert.ErrorIs(t, err, domain.ErrMediaNotFound)
}
