package speech

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWhisperTranscriber_Transcribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "hi", r.URL.Query().Get("language"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "question.webm", header.Filename)
		assert.Equal(t, []byte("fake-audio"), data)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text": " सूरज क्यों चमकता है? ", "language": "hi"}`))
	}))
	defer server.Close()

	tr := NewWhisperTranscriber(server.URL + "/transcribe")
	got, err := tr.Transcribe(context.Background(), []byte("fake-audio"), "question.webm", "hi")
	require.NoError(t, err)
	assert.Equal(t, "सूरज क्यों चमकता है?", got.Text)
	assert.Equal(t, "hi", got.Language)
}

func TestWhisperTranscriber_DefaultsFilename(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, header, err := r.FormFile("file")
		require.NoError(t, err)
		assert.Equal(t, "audio.mp3", header.Filename)
		assert.Empty(t, r.URL.Query().Get("language"))
		_, _ = w.Write([]byte(`{"text": "hello"}`))
	}))
	defer server.Close()

	got, err := NewWhisperTranscriber(server.URL).Transcribe(context.Background(), []byte("x"), "", "")
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Text)
	assert.Empty(t, got.Language)
}

func TestWhisperTranscriber_AddsExtensionToBlobUploads(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, header, err := r.FormFile("file")
		require.NoError(t, err)
		assert.Equal(t, "blob.mp3", header.Filename)
		_, _ = w.Write([]byte(`{"text": "hello"}`))
	}))
	defer server.Close()

	_, err := NewWhisperTranscriber(server.URL).Transcribe(context.Background(), []byte("x"), "blob", "")
	require.NoError(t, err)
}

func TestWhisperTranscriber_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := NewWhisperTranscriber(server.URL).Transcribe(context.Background(), []byte("x"), "a.mp3", "en")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestWhisperTranscriber_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewWhisperTranscriber(server.URL).Transcribe(ctx, []byte("x"), "a.mp3", "en")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestWhisperTranscriber_EmptyAudio(t *testing.T) {
	_, err := NewWhisperTranscriber("").Transcribe(context.Background(), nil, "a.mp3", "en")
	assert.Error(t, err)
}
