package organize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkQueue_PushPop(t *testing.T) {
	q := NewWorkQueue()

	q.Push("a.pdf")
	q.Push("b.pdf")
	assert.Equal(t, 2, q.Len())

	done := make(chan struct{})
	name, ok := q.Pop(done)
	require.True(t, ok)
	assert.Equal(t, "a.pdf", name)

	name, ok = q.Pop(done)
	require.True(t, ok)
	assert.Equal(t, "b.pdf", name)

	assert.Equal(t, 0, q.Len())
}

func TestWorkQueue_Dedup(t *testing.T) {
	q := NewWorkQueue()

	q.Push("scan.pdf")
	q.Push("scan.pdf")
	q.Push("scan.pdf")

	assert.Equal(t, 1, q.Len())
}

func TestWorkQueue_Has(t *testing.T) {
	q := NewWorkQueue()

	q.Push("a.pdf")
	assert.True(t, q.Has("a.pdf"))
	assert.False(t, q.Has("b.pdf"))

	done := make(chan struct{})
	q.Pop(done)
	assert.False(t, q.Has("a.pdf"))
}

func TestWorkQueue_PopBlocks(t *testing.T) {
	q := NewWorkQueue()
	done := make(chan struct{})

	result := make(chan string, 1)
	go func() {
		name, ok := q.Pop(done)
		if ok {
			result <- name
		}
	}()

	select {
	case <-result:
		t.Fatal("Pop should block when queue is empty")
	case <-time.After(50 * time.Millisecond):
	}

	q.Push("wakeup.pdf")

	select {
	case name := <-result:
		assert.Equal(t, "wakeup.pdf", name)
	case <-time.After(time.Second):
		t.Fatal("Pop should have unblocked")
	}
}

func TestWorkQueue_PopDone(t *testing.T) {
	q := NewWorkQueue()
	done := make(chan struct{})

	result := make(chan bool, 1)
	go func() {
		_, ok := q.Pop(done)
		result <- ok
	}()

	close(done)

	select {
	case ok := <-result:
		assert.False(t, ok, "Pop should return false when done")
	case <-time.After(time.Second):
		t.Fatal("Pop should have returned")
	}
}

func TestWorkQueue_PushMany(t *testing.T) {
	q := NewWorkQueue()

	q.PushMany([]string{"a.pdf", "b.pdf", "c.pdf", "a.pdf"})
	assert.Equal(t, 3, q.Len())
}

func TestWorkQueue_Drain(t *testing.T) {
	q := NewWorkQueue()

	q.Push("a.pdf")
	q.Push("b.pdf")

	drained := q.Drain()
	assert.Len(t, drained, 2)
	assert.Equal(t, 0, q.Len())
}
