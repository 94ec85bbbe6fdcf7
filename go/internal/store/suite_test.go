package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreSuite checks the behavior every backend must share.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	docPath := func() Path {
		return Doc("games", fmt.Sprintf("T%s", gofakeit.LetterN(7)))
	}

	t.Run("create and fetch", func(t *testing.T) {
		s := newStore(t)
		path := docPath()

		require.NoError(t, s.CreateDocument(ctx, path, map[string]any{"phase": "lobby", "round": 1}))

		data, err := s.FetchOnce(ctx, path, time.Second)
		require.NoError(t, err)
		assert.JSONEq(t, `{"phase":"lobby","round":1}`, string(data))

		data, err = s.FetchOnce(ctx, path.Child("phase"), time.Second)
		require.NoError(t, err)
		assert.JSONEq(t, `"lobby"`, string(data))
	})

	t.Run("create twice fails", func(t *testing.T) {
		s := newStore(t)
		path := docPath()
		require.NoError(t, s.CreateDocument(ctx, path, map[string]any{"phase": "lobby"}))
		assert.ErrorIs(t, s.CreateDocument(ctx, path, map[string]any{"phase": "lobby"}), ErrExists)
	})

	t.Run("fetch missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.FetchOnce(ctx, docPath(), time.Second)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("partial update keeps siblings", func(t *testing.T) {
		s := newStore(t)
		path := docPath()
		require.NoError(t, s.CreateDocument(ctx, path, map[string]any{
			"phase":   "question",
			"players": map[string]any{"ann": map[string]any{"name": "ann", "score": 0}},
		}))

		require.NoError(t, s.PartialUpdate(ctx, path, map[string]any{
			"answers/ann_1":        map[string]any{"answer": "Paris", "player": "ann", "attemptNumber": 1},
			"playerGuessCount/ann": 1,
		}))

		data, err := s.FetchOnce(ctx, path, time.Second)
		require.NoError(t, err)
		assert.JSONEq(t, `{
			"phase": "question",
			"players": {"ann": {"name": "ann", "score": 0}},
			"answers": {"ann_1": {"answer": "Paris", "player": "ann", "attemptNumber": 1}},
			"playerGuessCount": {"ann": 1}
		}`, string(data))
	})

	t.Run("set field and delete", func(t *testing.T) {
		s := newStore(t)
		path := docPath()
		require.NoError(t, s.CreateDocument(ctx, path, map[string]any{"phase": "voting"}))

		require.NoError(t, s.SetField(ctx, path.Child("votes", "ann"), "Paris"))
		data, err := s.FetchOnce(ctx, path.Child("votes"), time.Second)
		require.NoError(t, err)
		assert.JSONEq(t, `{"ann":"Paris"}`, string(data))

		require.NoError(t, s.SetField(ctx, path.Child("votes", "ann"), nil))
		_, err = s.FetchOnce(ctx, path.Child("votes", "ann"), time.Second)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("concurrent partial updates are not lost", func(t *testing.T) {
		s := newStore(t)
		path := docPath()
		require.NoError(t, s.CreateDocument(ctx, path, map[string]any{"phase": "voting"}))

		players := []string{"ann", "bob", "cat", "dan", "eve", "fay"}
		var wg sync.WaitGroup
		for _, p := range players {
			wg.Add(1)
			go func(p string) {
				defer wg.Done()
				assert.NoError(t, s.SetField(ctx, path.Child("votes", p), "vote-"+p))
			}(p)
		}
		wg.Wait()

		data, err := s.FetchOnce(ctx, path.Child("votes"), time.Second)
		require.NoError(t, err)
		var votes map[string]string
		require.NoError(t, json.Unmarshal(data, &votes))
		assert.Len(t, votes, len(players))
	})

	t.Run("subscribe delivers current then latest", func(t *testing.T) {
		s := newStore(t)
		path := docPath()
		require.NoError(t, s.CreateDocument(ctx, path, map[string]any{"phase": "lobby", "round": 1}))

		var (
			mu     sync.Mutex
			latest string
			calls  int
		)
		sub, err := s.Subscribe(ctx, path, func(value []byte) {
			mu.Lock()
			defer mu.Unlock()
			latest = string(value)
			calls++
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Unsubscribe(sub) })

		phaseIs := func(phase string) func() bool {
			return func() bool {
				mu.Lock()
				defer mu.Unlock()
				var doc map[string]any
				if json.Unmarshal([]byte(latest), &doc) != nil {
					return false
				}
				return doc["phase"] == phase
			}
		}
		require.Eventually(t, phaseIs("lobby"), 5*time.Second, 10*time.Millisecond)

		require.NoError(t, s.PartialUpdate(ctx, path, map[string]any{"phase": "questionPreview"}))
		require.Eventually(t, phaseIs("questionPreview"), 5*time.Second, 10*time.Millisecond)

		require.NoError(t, s.Unsubscribe(sub))
		select {
		case <-sub.Done():
		case <-time.After(5 * time.Second):
			t.Fatal("subscription did not stop")
		}

		mu.Lock()
		before := calls
		mu.Unlock()
		require.NoError(t, s.PartialUpdate(ctx, path, map[string]any{"phase": "question"}))
		time.Sleep(100 * time.Millisecond)
		mu.Lock()
		assert.Equal(t, before, calls)
		mu.Unlock()
	})

	t.Run("subscribe to missing document delivers nil", func(t *testing.T) {
		s := newStore(t)
		got := make(chan []byte, 1)
		sub, err := s.Subscribe(ctx, docPath(), func(value []byte) {
			select {
			case got <- value:
			default:
			}
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Unsubscribe(sub) })

		select {
		case v := <-got:
			assert.Nil(t, v)
		case <-time.After(5 * time.Second):
			t.Fatal("no initial delivery")
		}
	})
}
