package stream

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, ch <-chan Chunk) []Chunk {
	t.Helper()
	var got []Chunk
	timeout := time.After(5 * time.Second)
	for {
		select {
		case c, ok := <-ch:
			if !ok {
				return got
			}
			got = append(got, c)
		case <-timeout:
			t.Fatalf("stream did not terminate, got %d chunks", len(got))
			return got
		}
	}
}

func next(t *testing.T, ch <-chan Chunk) Chunk {
	t.Helper()
	select {
	case c, ok := <-ch:
		require.True(t, ok, "stream closed early")
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for chunk")
		return Chunk{}
	}
}

func deltas(chunks []Chunk) []string {
	var out []string
	for _, c := range chunks {
		if c.Type == ChunkTextDelta {
			out = append(out, c.Delta)
		}
	}
	return out
}

// gatedProducer 依次发出 Hel、lo，然后等待 gate 关闭后发出结束标记。
func gatedProducer(gate <-chan struct{}) ProducerFactory {
	return func(ctx context.Context) (<-chan Chunk, error) {
		ch := make(chan Chunk)
		go func() {
			defer close(ch)
			ch <- Start("m1")
			ch <- TextDelta("t1", "Hel")
			ch <- TextDelta("t1", "lo")
			<-gate
			ch <- Finish()
		}()
		return ch, nil
	}
}

func TestWriteSSE(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSSE(&buf, TextDelta("t1", "Hel")))
	require.NoError(t, WriteDone(&buf))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "data:"))
	assert.Contains(t, out, `"type":"text-delta"`)
	assert.Contains(t, out, `"delta":"Hel"`)
	assert.NotContains(t, out, "toolCallId")
	assert.True(t, strings.HasSuffix(out, "[DONE]\n\n"))
}

func TestEmpty(t *testing.T) {
	got := collect(t, Empty())
	require.Len(t, got, 1)
	assert.True(t, got[0].IsTerminator())
}

func TestMemoryBackend_ReplayThenLive(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend(time.Minute)
	require.NoError(t, b.Create(ctx, "s1"))
	assert.ErrorIs(t, b.Create(ctx, "s1"), ErrStreamExists)

	require.NoError(t, b.Append(ctx, "s1", TextDelta("t", "a")))
	require.NoError(t, b.Append(ctx, "s1", TextDelta("t", "b")))

	ch, ok, err := b.Subscribe(ctx, "s1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", next(t, ch).Delta)
	assert.Equal(t, "b", next(t, ch).Delta)

	require.NoError(t, b.Append(ctx, "s1", TextDelta("t", "c")))
	require.NoError(t, b.Append(ctx, "s1", Finish()))
	require.NoError(t, b.Close(ctx, "s1"))

	rest := collect(t, ch)
	require.Len(t, rest, 2)
	assert.Equal(t, "c", rest[0].Delta)
	assert.True(t, rest[1].IsTerminator())

	_, ok, err = b.Subscribe(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, b.Append(ctx, "s1", TextDelta("t", "late")), ErrStreamClosed)
}

func TestMemoryBackend_UnknownStream(t *testing.T) {
	_, ok, err := NewMemoryBackend(0).Subscribe(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryBackend_Reclaim(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend(10 * time.Millisecond)
	require.NoError(t, b.Create(ctx, "s1"))
	require.NoError(t, b.Close(ctx, "s1"))
	require.Eventually(t, func() bool {
		return b.Create(ctx, "s1") == nil
	}, time.Second, 5*time.Millisecond)
}

func TestProvider_MemoizesFailure(t *testing.T) {
	var calls int32
	p := NewProvider(func(ctx context.Context) (Backend, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("connection refused")
	})
	assert.Nil(t, p.Backend(context.Background()))
	assert.Nil(t, p.Backend(context.Background()))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	assert.Error(t, p.Err())
}

func TestProvider_MemoizesSuccess(t *testing.T) {
	var calls int32
	mem := NewMemoryBackend(0)
	p := NewProvider(func(ctx context.Context) (Backend, error) {
		atomic.AddInt32(&calls, 1)
		return mem, nil
	})
	assert.Same(t, mem, p.Backend(context.Background()))
	assert.Same(t, mem, p.Backend(context.Background()))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	var nilProvider *Provider
	assert.Nil(t, nilProvider.Backend(context.Background()))
	assert.Nil(t, Static(nil).Backend(context.Background()))
}

func TestManager_AttachAfterBufferedChunks(t *testing.T) {
	ctx := context.Background()
	m := NewManager(Static(NewMemoryBackend(time.Minute)), time.Minute)
	gate := make(chan struct{})

	live, err := m.Publish(ctx, "S1", gatedProducer(gate))
	require.NoError(t, err)
	next(t, live)
	next(t, live)
	next(t, live)

	attached, ok := m.Attach(ctx, "S1")
	require.True(t, ok)
	close(gate)

	got := collect(t, attached)
	assert.Equal(t, []string{"Hel", "lo"}, deltas(got))
	assert.Equal(t, ChunkStart, got[0].Type)
	assert.True(t, got[len(got)-1].IsTerminator())
	assert.Len(t, got, 4)

	rest := collect(t, live)
	require.Len(t, rest, 1)
	assert.True(t, rest[0].IsTerminator())

	require.Eventually(t, func() bool {
		_, ok := m.Attach(ctx, "S1")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestManager_ConcurrentAttach(t *testing.T) {
	ctx := context.Background()
	m := NewManager(Static(NewMemoryBackend(time.Minute)), time.Minute)
	gate := make(chan struct{})

	live, err := m.Publish(ctx, "S1", gatedProducer(gate))
	require.NoError(t, err)
	next(t, live)

	readers := make([]<-chan Chunk, 3)
	for i := range readers {
		ch, ok := m.Attach(ctx, "S1")
		require.True(t, ok)
		readers[i] = ch
	}
	close(gate)

	var wg sync.WaitGroup
	results := make([][]Chunk, len(readers))
	for i, ch := range readers {
		wg.Add(1)
		go func(i int, ch <-chan Chunk) {
			defer wg.Done()
			results[i] = collect(t, ch)
		}(i, ch)
	}
	collect(t, live)
	wg.Wait()

	for _, got := range results {
		require.Len(t, got, 4)
		assert.Equal(t, []string{"Hel", "lo"}, deltas(got))
		assert.True(t, got[3].IsTerminator())
	}
}

func TestManager_PassThroughWithoutBackend(t *testing.T) {
	ctx := context.Background()
	m := NewManager(Static(nil), time.Minute)
	assert.False(t, m.Available(ctx))

	gate := make(chan struct{})
	close(gate)
	live, err := m.Publish(ctx, "S1", gatedProducer(gate))
	require.NoError(t, err)

	got := collect(t, live)
	assert.Equal(t, []string{"Hel", "lo"}, deltas(got))
	assert.True(t, got[len(got)-1].IsTerminator())

	_, ok := m.Attach(ctx, "S1")
	assert.False(t, ok)
}

func TestManager_ReaderDisconnectDoesNotCancelPublisher(t *testing.T) {
	m := NewManager(Static(NewMemoryBackend(time.Minute)), time.Minute)
	gate := make(chan struct{})
	var producerErr atomic.Value

	readerCtx, cancelReader := context.WithCancel(context.Background())
	live, err := m.Publish(readerCtx, "S1", func(ctx context.Context) (<-chan Chunk, error) {
		ch := make(chan Chunk)
		go func() {
			defer close(ch)
			ch <- TextDelta("t", "Hel")
			<-gate
			ch <- TextDelta("t", "lo")
			producerErr.Store(ctx.Err() == nil)
			ch <- Finish()
		}()
		return ch, nil
	})
	require.NoError(t, err)
	next(t, live)

	other, ok := m.Attach(context.Background(), "S1")
	require.True(t, ok)

	cancelReader()
	close(gate)

	got := collect(t, other)
	assert.Equal(t, []string{"Hel", "lo"}, deltas(got))
	assert.True(t, got[len(got)-1].IsTerminator())
	assert.Equal(t, true, producerErr.Load())
}

func TestManager_DuplicatePublish(t *testing.T) {
	ctx := context.Background()
	m := NewManager(Static(NewMemoryBackend(time.Minute)), time.Minute)
	gate := make(chan struct{})
	defer close(gate)

	_, err := m.Publish(ctx, "S1", gatedProducer(gate))
	require.NoError(t, err)

	var called bool
	_, err = m.Publish(ctx, "S1", func(ctx context.Context) (<-chan Chunk, error) {
		called = true
		return Empty(), nil
	})
	assert.ErrorIs(t, err, ErrStreamExists)
	assert.False(t, called)
}

func TestManager_SynthesizesTerminator(t *testing.T) {
	m := NewManager(Static(NewMemoryBackend(time.Minute)), time.Minute)
	live, err := m.Publish(context.Background(), "S1", func(ctx context.Context) (<-chan Chunk, error) {
		return Of(TextDelta("t", "a"), Finish(), TextDelta("t", "after")), nil
	})
	require.NoError(t, err)
	got := collect(t, live)
	require.Len(t, got, 2)
	assert.True(t, got[1].IsTerminator())

	live, err = m.Publish(context.Background(), "S2", func(ctx context.Context) (<-chan Chunk, error) {
		return Of(TextDelta("t", "a")), nil
	})
	require.NoError(t, err)
	got = collect(t, live)
	require.Len(t, got, 2)
	assert.True(t, got[1].IsTerminator())
}

func TestManager_MaxDuration(t *testing.T) {
	m := NewManager(Static(NewMemoryBackend(time.Minute)), 50*time.Millisecond)
	live, err := m.Publish(context.Background(), "S1", func(ctx context.Context) (<-chan Chunk, error) {
		ch := make(chan Chunk)
		go func() {
			defer close(ch)
			ch <- TextDelta("t", "partial")
			<-ctx.Done()
		}()
		return ch, nil
	})
	require.NoError(t, err)

	got := collect(t, live)
	require.Len(t, got, 3)
	assert.Equal(t, "partial", got[0].Delta)
	assert.Equal(t, ChunkError, got[1].Type)
	assert.True(t, got[2].IsTerminator())
}

func TestManager_FactoryError(t *testing.T) {
	ctx := context.Background()
	m := NewManager(Static(NewMemoryBackend(time.Minute)), time.Minute)
	_, err := m.Publish(ctx, "S1", func(ctx context.Context) (<-chan Chunk, error) {
		return nil, errors.New("boom")
	})
	require.Error(t, err)
	_, ok := m.Attach(ctx, "S1")
	assert.False(t, ok)
}

func TestManager_IdleCallerDoesNotStallAttachedReaders(t *testing.T) {
	const total = 200
	m := NewManager(Static(NewMemoryBackend(time.Minute)), time.Minute)
	gate := make(chan struct{})
	sent := make(chan struct{})

	callerCtx, cancelCaller := context.WithCancel(context.Background())
	defer cancelCaller()
	live, err := m.Publish(callerCtx, "S1", func(ctx context.Context) (<-chan Chunk, error) {
		ch := make(chan Chunk)
		go func() {
			defer close(ch)
			for i := 0; i < total; i++ {
				ch <- TextDelta("t", "x")
			}
			close(sent)
			<-gate
			ch <- Finish()
		}()
		return ch, nil
	})
	require.NoError(t, err)

	attached, ok := m.Attach(context.Background(), "S1")
	require.True(t, ok)

	select {
	case <-sent:
	case <-time.After(5 * time.Second):
		t.Fatal("publisher blocked on a caller that is not reading")
	}
	close(gate)

	got := collect(t, attached)
	require.Len(t, got, total+1)
	assert.True(t, got[total].IsTerminator())

	cancelCaller()
	collect(t, live)
}
