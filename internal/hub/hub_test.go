package hub

import (
	"testing"

	"github.com/alexanderramin/todotree/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func change(id string) domain.ChangeSet {
	return domain.ChangeSet{Upsert: []domain.Record{{ID: id, Name: id}}}
}

func TestHub_PublishReachesEverySubscriber(t *testing.T) {
	h := NewHub(4, nil)
	a := h.Subscribe()
	b := h.Subscribe()
	assert.Equal(t, 2, h.Count())

	h.Publish(change("x"))

	for _, sub := range []*Subscription{a, b} {
		got := <-sub.C()
		assert.Equal(t, []string{"x"}, got.Change.UpsertIDs())
	}
}

func TestHub_KeepsOrder(t *testing.T) {
	h := NewHub(4, nil)
	sub := h.Subscribe()

	h.Publish(change("1"))
	h.Publish(change("2"))
	h.Publish(change("3"))

	for _, want := range []string{"1", "2", "3"} {
		got := <-sub.C()
		assert.Equal(t, want, got.Change.Upsert[0].ID)
	}
}

func TestHub_NumbersEvents(t *testing.T) {
	h := NewHub(4, nil)
	assert.Zero(t, h.Seq())
	sub := h.Subscribe()

	h.Publish(change("1"))
	h.Publish(change("2"))

	assert.Equal(t, uint64(2), h.Seq())
	for _, want := range []uint64{1, 2} {
		got := <-sub.C()
		assert.Equal(t, want, got.Seq)
	}

	late := h.Subscribe()
	h.Publish(change("3"))
	got := <-late.C()
	assert.Equal(t, uint64(3), got.Seq)
}

func TestHub_SlowSubscriberIsDropped(t *testing.T) {
	h := NewHub(1, nil)
	slow := h.Subscribe()
	fast := h.Subscribe()

	h.Publish(change("1"))
	<-fast.C()
	h.Publish(change("2"))

	assert.Equal(t, 1, h.Count())
	_, open := <-slow.Done()
	assert.False(t, open)

	got, ok := <-fast.C()
	require.True(t, ok)
	assert.Equal(t, "2", got.Change.Upsert[0].ID)
}

func TestHub_UnsubscribeClosesChannel(t *testing.T) {
	h := NewHub(0, nil)
	sub := h.Subscribe()

	h.Unsubscribe(sub.ID)
	h.Unsubscribe(sub.ID)

	_, ok := <-sub.C()
	assert.False(t, ok)
	assert.Zero(t, h.Count())
}

func TestHub_CloseEndsEverySubscription(t *testing.T) {
	h := NewHub(0, nil)
	a, b := h.Subscribe(), h.Subscribe()

	h.Close()

	for _, sub := range []*Subscription{a, b} {
		_, ok := <-sub.C()
		assert.False(t, ok)
	}
	assert.Zero(t, h.Count())
	h.Publish(change("ignored"))
}
