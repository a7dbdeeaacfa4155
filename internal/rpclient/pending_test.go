package rpclient

import (
	"sync"
	"testing"
	"time"

	"github.com/EgorLis/wsrpc/internal/codec"
	"github.com/EgorLis/wsrpc/internal/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTable() *pendingTable {
	return newPendingTable(codec.JSON{}.DecodePayload, zap.NewNop(), nil)
}

func TestPendingDuplicateSequence(t *testing.T) {
	tbl := newTable()
	_, err := tbl.Register(1, "A.a", "", nil, time.Time{})
	require.NoError(t, err)
	_, err = tbl.Register(1, "A.a", "", nil, time.Time{})
	assert.ErrorIs(t, err, ErrDuplicateSequence)
	assert.Equal(t, 1, tbl.Len())
}

func TestPendingResolveDecodes(t *testing.T) {
	tbl := newTable()
	var out profile
	done, err := tbl.Register(5, "User.profile", "", &out, time.Time{})
	require.NoError(t, err)

	ok := tbl.Resolve(&message.Envelope{Kind: message.KindResponse, Sequence: 5, Payload: []byte(`{"name":"n","level":2}`)})
	assert.True(t, ok)
	require.NoError(t, <-done)
	assert.Equal(t, profile{Name: "n", Level: 2}, out)
	assert.Equal(t, 0, tbl.Len())

	// повторный ответ на тот же seq — неизвестный
	assert.False(t, tbl.Resolve(&message.Envelope{Kind: message.KindResponse, Sequence: 5}))
}

func TestPendingExpire(t *testing.T) {
	tbl := newTable()
	now := time.Now()
	soon, _ := tbl.Register(1, "A.soon", "", nil, now.Add(time.Second))
	later, _ := tbl.Register(2, "A.later", "", nil, now.Add(time.Minute))
	never, _ := tbl.Register(3, "A.never", "", nil, time.Time{})

	assert.Equal(t, 0, tbl.Expire(now))
	assert.Equal(t, 1, tbl.Expire(now.Add(time.Second)))
	assert.ErrorIs(t, <-soon, ErrTimeout)

	assert.Equal(t, 1, tbl.Expire(now.Add(24*time.Hour)))
	assert.ErrorIs(t, <-later, ErrTimeout)
	assert.Equal(t, 1, tbl.Len())

	// истёкший seq больше не резолвится
	assert.False(t, tbl.Resolve(&message.Envelope{Kind: message.KindResponse, Sequence: 1}))

	assert.Equal(t, 1, tbl.FailAll(ErrCancelled))
	assert.ErrorIs(t, <-never, ErrCancelled)
	assert.Equal(t, 0, tbl.FailAll(ErrCancelled))
}

func TestPendingRemove(t *testing.T) {
	tbl := newTable()
	done, _ := tbl.Register(1, "A.a", "", nil, time.Time{})
	assert.True(t, tbl.Remove(1))
	assert.False(t, tbl.Remove(1))
	assert.False(t, tbl.Resolve(&message.Envelope{Kind: message.KindResponse, Sequence: 1}))
	select {
	case <-done:
		t.Fatal("removed call must not get a result")
	default:
	}
}

// Resolve, Expire и FailAll гоняются за одним seq: результат ровно один.
func TestPendingExactlyOnceUnderRace(t *testing.T) {
	tbl := newTable()
	for i := uint64(1); i <= 300; i++ {
		past := time.Now().Add(-time.Millisecond)
		done, err := tbl.Register(i, "Race.go", "", nil, past)
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(3)
		go func() { defer wg.Done(); tbl.Resolve(&message.Envelope{Kind: message.KindResponse, Sequence: i}) }()
		go func() { defer wg.Done(); tbl.Expire(time.Now()) }()
		go func() { defer wg.Done(); tbl.FailAll(ErrConnectionLost) }()
		wg.Wait()

		select {
		case <-done:
		default:
			t.Fatalf("seq %d: no result", i)
		}
		select {
		case <-done:
			t.Fatalf("seq %d: second result", i)
		default:
		}
	}
	assert.Equal(t, 0, tbl.Len())
}

// Снимок drain не задевает вызовы, зарегистрированные после него.
func TestPendingDrainSnapshot(t *testing.T) {
	tbl := newTable()
	old, _ := tbl.Register(1, "A.old", "", nil, time.Time{})

	calls := tbl.drain()
	fresh, err := tbl.Register(2, "A.fresh", "", nil, time.Time{})
	require.NoError(t, err)

	assert.Equal(t, 1, tbl.fail(calls, ErrConnectionLost))
	assert.ErrorIs(t, <-old, ErrConnectionLost)
	assert.Equal(t, 1, tbl.Len())
	select {
	case <-fresh:
		t.Fatal("call registered after drain was failed")
	default:
	}

	assert.True(t, tbl.Resolve(&message.Envelope{Kind: message.KindResponse, Sequence: 2}))
	assert.NoError(t, <-fresh)
}
