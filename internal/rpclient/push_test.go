package rpclient

import (
	"errors"
	"sync"
	"testing"

	"github.com/EgorLis/wsrpc/internal/message"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestPushRegistry(t *testing.T) {
	r := newPushRegistry(zap.NewNop(), nil)
	env := &message.Envelope{Kind: message.KindPush, Command: "testOn"}

	assert.False(t, r.Dispatch(env))

	var calls []string
	r.Subscribe("testOn", func(*message.Envelope) error { calls = append(calls, "a"); return nil })
	r.Subscribe("testOn", func(*message.Envelope) error { calls = append(calls, "b"); return nil })
	assert.True(t, r.Dispatch(env))
	assert.Equal(t, []string{"b"}, calls)

	r.Unsubscribe("testOn")
	assert.False(t, r.Dispatch(env))

	r.Subscribe("testOn", func(*message.Envelope) error { return errors.New("bad payload") })
	assert.True(t, r.Dispatch(env), "handler error is still a delivery")

	r.Subscribe("testOn", func(*message.Envelope) error { panic("boom") })
	assert.NotPanics(t, func() { r.Dispatch(env) })

	r.Clear()
	assert.False(t, r.Dispatch(env))
}

func TestPushRegistryConcurrentSubscribe(t *testing.T) {
	r := newPushRegistry(zap.NewNop(), nil)
	env := &message.Envelope{Kind: message.KindPush, Command: "x"}

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for range 100 {
				r.Subscribe("x", func(*message.Envelope) error { return nil })
				if i%2 == 0 {
					r.Unsubscribe("x")
				}
			}
		}()
		go func() {
			defer wg.Done()
			for range 100 {
				r.Dispatch(env)
			}
		}()
	}
	wg.Wait()
}
