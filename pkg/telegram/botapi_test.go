package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBotServer(t *testing.T, handler http.HandlerFunc) *BotClient {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	client := NewBotClient("test-token")
	client.SetBaseURL(ts.URL)
	return client
}

func TestBotClient(t *testing.T) {
	t.Run("folds channel posts with their reaction counts", func(t *testing.T) {
		client := newBotServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/bottest-token/getUpdates", r.URL.Path)
			fmt.Fprint(w, `{"ok": true, "result": [
				{"update_id": 1, "channel_post": {"message_id": 10, "chat": {"id": -100, "username": "source"}, "text": "first"}},
				{"update_id": 2, "channel_post": {"message_id": 11, "chat": {"id": -100, "username": "source"}, "text": "second"}},
				{"update_id": 3, "message_reaction_count": {"message_id": 11, "chat": {"id": -100, "username": "source"}, "reactions": [{"total_count": 7}, {"total_count": 3}]}},
				{"update_id": 4, "channel_post": {"message_id": 20, "chat": {"id": -200, "username": "other"}, "text": "elsewhere"}}
			]}`)
		})

		posts, err := client.FetchChannelPosts(context.Background(), "@source")
		require.NoError(t, err)
		require.Len(t, posts, 2)
		assert.Equal(t, int64(10), posts[0].ID)
		assert.Equal(t, 0, posts[0].ReactionCount)
		assert.Equal(t, int64(11), posts[1].ID)
		assert.Equal(t, 10, posts[1].ReactionCount)
	})

	t.Run("publish without image sends a message", func(t *testing.T) {
		var got map[string]any
		client := newBotServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/bottest-token/sendMessage", r.URL.Path)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			fmt.Fprint(w, `{"ok": true, "result": {}}`)
		})

		require.NoError(t, client.Publish(context.Background(), "@target", "hello", nil))
		assert.Equal(t, "@target", got["chat_id"])
		assert.Equal(t, "hello", got["text"])
	})

	t.Run("publish with image uploads a photo with caption", func(t *testing.T) {
		client := newBotServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/bottest-token/sendPhoto", r.URL.Path)
			require.NoError(t, r.ParseMultipartForm(1<<20))
			assert.Equal(t, "@target", r.FormValue("chat_id"))
			assert.Equal(t, "caption text", r.FormValue("caption"))
			file, _, err := r.FormFile("photo")
			require.NoError(t, err)
			defer file.Close()
			fmt.Fprint(w, `{"ok": true, "result": {}}`)
		})

		err := client.Publish(context.Background(), "@target", "caption text", []byte{0x89, 0x50})
		require.NoError(t, err)
	})

	t.Run("API rejection surfaces the description", func(t *testing.T) {
		client := newBotServer(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"ok": false, "description": "Unauthorized"}`)
		})

		err := client.Publish(context.Background(), "@target", "hi", nil)
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "Unauthorized"))
	})
}
