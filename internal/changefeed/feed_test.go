package changefeed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeReceivesSentinelThenUpdates(t *testing.T) {
	f := New(nil)
	_, ch, initial := f.Subscribe()
	assert.Equal(t, Update{TaskID: 0, State: "created"}, initial)

	f.Publish(Update{TaskID: 1, State: "PENDING"})
	select {
	case got := <-ch:
		assert.Equal(t, Update{TaskID: 1, State: "PENDING"}, got)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for update")
	}
}

func TestPublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	f := New(nil)
	_, _, _ = f.Subscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			f.Publish(Update{TaskID: int64(i), State: "RUNNING"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a subscriber that never drains")
	}

	assert.Equal(t, Update{TaskID: 99, State: "RUNNING"}, f.Latest())
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	f := New(nil)
	id, ch, _ := f.Subscribe()
	f.Unsubscribe(id)

	_, open := <-ch
	require.False(t, open)
}

type fakeRelay struct {
	published []Update
}

func (r *fakeRelay) PublishRemote(ctx context.Context, update Update) error {
	r.published = append(r.published, update)
	return nil
}

func TestPublishMirrorsOntoAttachedRelay(t *testing.T) {
	f := New(nil)
	relay := &fakeRelay{}
	f.SetRelay(relay)

	f.Publish(Update{TaskID: 5, State: "RUNNING"})

	require.Len(t, relay.published, 1)
	assert.Equal(t, Update{TaskID: 5, State: "RUNNING"}, relay.published[0])
}

func TestBroadcastLocalDoesNotEchoOntoRelay(t *testing.T) {
	f := New(nil)
	relay := &fakeRelay{}
	f.SetRelay(relay)

	f.broadcastLocal(Update{TaskID: 5, State: "RUNNING"})

	assert.Empty(t, relay.published)
	assert.Equal(t, Update{TaskID: 5, State: "RUNNING"}, f.Latest())
}

func TestMultipleSubscribersEachObserveLatest(t *testing.T) {
	f := New(nil)
	_, ch1, _ := f.Subscribe()
	_, ch2, _ := f.Subscribe()

	f.Publish(Update{TaskID: 7, State: "COMPLETED"})

	for _, ch := range []<-chan Update{ch1, ch2} {
		select {
		case got := <-ch:
			assert.Equal(t, Update{TaskID: 7, State: "COMPLETED"}, got)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for update")
		}
	}
}
