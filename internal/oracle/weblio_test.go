package oracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyedai/shiritori-sugoroku/testing/logtest"
)

const notFoundMarker = "該当する単語が見つかりません"

func TestWeblioOracle_Exists(t *testing.T) {
	t.Run("a page without the marker means the word exists", func(t *testing.T) {
		// Given: a dictionary page describing the word
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/content/%E3%82%8A%E3%82%93%E3%81%94", r.URL.EscapedPath())
			_, _ = w.Write([]byte("<html><body><div>りんご：バラ科の果樹</div></body></html>"))
		}))
		defer srv.Close()

		dict := NewWeblioOracle(logtest.New(t), srv.URL, notFoundMarker, time.Second)

		// When: looking up the word
		exists, err := dict.Exists(context.Background(), "りんご")

		// Then: the word exists
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("a page with the marker means the word does not exist", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("<html><body><p>" + notFoundMarker + "</p></body></html>"))
		}))
		defer srv.Close()

		dict := NewWeblioOracle(logtest.New(t), srv.URL, notFoundMarker, time.Second)

		exists, err := dict.Exists(context.Background(), "ぞぞぞ")

		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("a non-200 answer is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		dict := NewWeblioOracle(logtest.New(t), srv.URL, notFoundMarker, time.Second)

		_, err := dict.Exists(context.Background(), "りんご")

		require.Error(t, err)
	})

	t.Run("a slow dictionary times out instead of hanging the turn", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			time.Sleep(200 * time.Millisecond)
			_, _ = w.Write([]byte("<html></html>"))
		}))
		defer srv.Close()

		dict := NewWeblioOracle(logtest.New(t), srv.URL, notFoundMarker, 20*time.Millisecond)

		_, err := dict.Exists(context.Background(), "りんご")

		require.Error(t, err)
	})
}
