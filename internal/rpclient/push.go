package rpclient

import (
	"fmt"
	"sync"

	"github.com/EgorLis/wsrpc/internal/message"
	"go.uber.org/zap"
)

// PushHandler обрабатывает входящий Push/Notify. Вызывается из read loop,
// поэтому долгую работу нужно уносить в свою горутину.
type PushHandler func(env *message.Envelope) error

// pushRegistry — command -> handler, последний зарегистрированный побеждает.
type pushRegistry struct {
	mu       sync.RWMutex
	handlers map[string]PushHandler

	log     *zap.Logger
	metrics *Metrics
}

func newPushRegistry(log *zap.Logger, m *Metrics) *pushRegistry {
	return &pushRegistry{
		handlers: make(map[string]PushHandler),
		log:      log,
		metrics:  m,
	}
}

func (r *pushRegistry) Subscribe(command string, h PushHandler) {
	r.mu.Lock()
	_, replaced := r.handlers[command]
	r.handlers[command] = h
	r.mu.Unlock()
	if replaced {
		r.log.Debug("push handler replaced", zap.String("command", command))
	}
}

func (r *pushRegistry) Unsubscribe(command string) {
	r.mu.Lock()
	delete(r.handlers, command)
	r.mu.Unlock()
}

func (r *pushRegistry) Clear() {
	r.mu.Lock()
	r.handlers = make(map[string]PushHandler)
	r.mu.Unlock()
}

// Dispatch вызывает обработчик для env.Command. Без обработчика сообщение
// отбрасывается: push может прийти раньше подписки.
func (r *pushRegistry) Dispatch(env *message.Envelope) (delivered bool) {
	r.mu.RLock()
	h, ok := r.handlers[env.Command]
	r.mu.RUnlock()
	if !ok {
		r.log.Debug("push without handler dropped", zap.String("command", env.Command), zap.Stringer("kind", env.Kind))
		r.metrics.push("unhandled")
		return false
	}

	if err := r.call(h, env); err != nil {
		r.log.Warn("push handler failed", zap.String("command", env.Command), zap.Error(err))
		r.metrics.push("handler_error")
		return true
	}
	r.metrics.push("delivered")
	return true
}

// паника в обработчике не должна ронять read loop
func (r *pushRegistry) call(h PushHandler, env *message.Envelope) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in handler: %v", p)
		}
	}()
	return h(env)
}
