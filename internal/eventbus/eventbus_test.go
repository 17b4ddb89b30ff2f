package eventbus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	b := New()
	var mu sync.Mutex
	var gotA, gotB []Event

	b.Subscribe(func(e Event) {
		mu.Lock()
		gotA = append(gotA, e)
		mu.Unlock()
	})
	b.Subscribe(func(e Event) {
		mu.Lock()
		gotB = append(gotB, e)
		mu.Unlock()
	})

	b.Publish(Event{Type: EventArticleDone, StoryID: 1})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(gotA) == 1 && len(gotB) == 1
	}, time.Second, time.Millisecond)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	var mu sync.Mutex
	count := 0
	token := b.Subscribe(func(e Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	b.Unsubscribe(token)
	b.Publish(Event{Type: EventTitleDone, StoryID: 2})
	time.Sleep(10 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, count)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := New()
	token := b.Subscribe(func(Event) {})

	b.Unsubscribe(token)
	assert.NotPanics(t, func() { b.Unsubscribe(token) })
}

func TestPublishDeliversPerSubscriberInOrder(t *testing.T) {
	b := New()
	var mu sync.Mutex
	var order []int

	b.Subscribe(func(e Event) {
		mu.Lock()
		order = append(order, e.StoryID)
		mu.Unlock()
	})

	for i := 1; i <= 5; i++ {
		b.Publish(Event{Type: EventArticleDone, StoryID: i})
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 5
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 3, 4, 5}, order)
}

func TestPublishWithNoSubscribersDoesNotBlock(t *testing.T) {
	b := New()
	assert.NotPanics(t, func() { b.Publish(Event{Type: EventArticleError, StoryID: 1}) })
}

func TestSubscriberCount(t *testing.T) {
	b := New()
	assert.Equal(t, 0, b.SubscriberCount())

	token := b.Subscribe(func(Event) {})
	assert.Equal(t, 1, b.SubscriberCount())

	b.Unsubscribe(token)
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestConcurrentPublishAndUnsubscribeIsSafe(t *testing.T) {
	b := New()

	var tokens []Token
	for i := 0; i < 20; i++ {
		tokens = append(tokens, b.Subscribe(func(Event) {}))
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			b.Publish(Event{Type: EventArticleDone, StoryID: i})
		}
	}()
	go func() {
		defer wg.Done()
		for _, token := range tokens {
			b.Unsubscribe(token)
		}
	}()

	assert.NotPanics(t, wg.Wait)
}
