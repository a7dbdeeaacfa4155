package rpclient

import (
	"fmt"
	"sync"
	"time"

	"github.com/EgorLis/wsrpc/internal/message"
	"go.uber.org/zap"
)

// pendingCall — ожидающий ответа запрос. Результат пишет ровно один раз тот,
// кто удалил запись из таблицы (Resolve, Expire, FailAll или Remove).
type pendingCall struct {
	seq      uint64
	command  string
	tag      string
	out      any // куда декодировать payload ответа
	deadline time.Time
	done     chan error // буфер 1
}

// pendingTable — seq -> ожидающий вызов.
type pendingTable struct {
	mu    sync.Mutex
	calls map[uint64]*pendingCall

	decode  func(raw []byte, v any) error
	log     *zap.Logger
	metrics *Metrics
}

func newPendingTable(decode func([]byte, any) error, log *zap.Logger, m *Metrics) *pendingTable {
	return &pendingTable{
		calls:   make(map[uint64]*pendingCall),
		decode:  decode,
		log:     log,
		metrics: m,
	}
}

// Register заводит ожидание. Нулевой deadline — без таймаута.
func (t *pendingTable) Register(seq uint64, command, tag string, out any, deadline time.Time) (<-chan error, error) {
	pc := &pendingCall{
		seq:      seq,
		command:  command,
		tag:      tag,
		out:      out,
		deadline: deadline,
		done:     make(chan error, 1),
	}
	t.mu.Lock()
	if _, dup := t.calls[seq]; dup {
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: %d", ErrDuplicateSequence, seq)
	}
	t.calls[seq] = pc
	n := len(t.calls)
	t.mu.Unlock()

	t.metrics.setPending(n)
	return pc.done, nil
}

// take удаляет запись и возвращает её; nil — уже обработана кем-то другим.
func (t *pendingTable) take(seq uint64) *pendingCall {
	t.mu.Lock()
	pc, ok := t.calls[seq]
	if ok {
		delete(t.calls, seq)
	}
	n := len(t.calls)
	t.mu.Unlock()
	if ok {
		t.metrics.setPending(n)
	}
	return pc
}

// Resolve доставляет ответ сервера. Ответы на неизвестные (истёкшие,
// отменённые) seq отбрасываются. Возвращает true, если ответ нашёл адресата.
func (t *pendingTable) Resolve(env *message.Envelope) bool {
	t.mu.Lock()
	pc, ok := t.calls[env.Sequence]
	if ok {
		delete(t.calls, env.Sequence)
	}
	n := len(t.calls)
	t.mu.Unlock()
	if !ok {
		t.log.Debug("response for unknown sequence dropped",
			zap.Uint64("seq", env.Sequence), zap.String("command", env.Command))
		t.metrics.dropped("unknown_sequence")
		return false
	}
	t.metrics.setPending(n)

	var err error
	switch {
	case pc.tag != "" && env.Tag != "" && pc.tag != env.Tag:
		t.log.Warn("response tag mismatch",
			zap.Uint64("seq", pc.seq), zap.String("want_tag", pc.tag), zap.String("tag", env.Tag))
		err = fmt.Errorf("%w: %s: response tag %q, want %q", ErrDecode, pc.command, env.Tag, pc.tag)
		t.metrics.result(outcomeDecodeError)
	case env.ErrorCode != 0:
		err = &ServerError{Command: pc.command, Code: env.ErrorCode, Message: env.ErrorMessage}
		t.metrics.result(outcomeServerError)
	default:
		if derr := t.decode(env.Payload, pc.out); derr != nil {
			t.log.Warn("response payload decode failed",
				zap.Uint64("seq", pc.seq), zap.String("command", pc.command), zap.Error(derr))
			err = fmt.Errorf("%w: %s: %w", ErrDecode, pc.command, derr)
			t.metrics.result(outcomeDecodeError)
		} else {
			t.metrics.result(outcomeOK)
		}
	}
	pc.done <- err
	return true
}

// Expire снимает все вызовы с истёкшим дедлайном и отдаёт им ErrTimeout.
func (t *pendingTable) Expire(now time.Time) int {
	var expired []*pendingCall
	t.mu.Lock()
	for seq, pc := range t.calls {
		if !pc.deadline.IsZero() && !now.Before(pc.deadline) {
			delete(t.calls, seq)
			expired = append(expired, pc)
		}
	}
	n := len(t.calls)
	t.mu.Unlock()

	if len(expired) == 0 {
		return 0
	}
	t.metrics.setPending(n)
	for _, pc := range expired {
		t.log.Debug("request timed out", zap.Uint64("seq", pc.seq), zap.String("command", pc.command))
		t.metrics.result(outcomeTimeout)
		pc.done <- fmt.Errorf("%w: %s (seq %d)", ErrTimeout, pc.command, pc.seq)
	}
	return len(expired)
}

// FailAll завершает все ожидающие вызовы ошибкой err и очищает таблицу.
func (t *pendingTable) FailAll(err error) int {
	return t.fail(t.drain(), err)
}

// drain забирает все ожидающие вызовы, не отвечая им. Клиент вызывает его
// под c.mu вместе со сменой состояния: вызовы, зарегистрированные после,
// в снимок уже не попадут.
func (t *pendingTable) drain() map[uint64]*pendingCall {
	t.mu.Lock()
	calls := t.calls
	t.calls = make(map[uint64]*pendingCall)
	t.mu.Unlock()
	if len(calls) > 0 {
		t.metrics.setPending(0)
	}
	return calls
}

// fail отдаёт err вызовам из снимка drain.
func (t *pendingTable) fail(calls map[uint64]*pendingCall, err error) int {
	for _, pc := range calls {
		t.metrics.result(outcomeFailed)
		pc.done <- err
	}
	return len(calls)
}

// Remove — вызывающий потерял интерес к ответу. false — результат уже
// отправлен в канал и его нужно забрать.
func (t *pendingTable) Remove(seq uint64) bool {
	if t.take(seq) == nil {
		return false
	}
	t.metrics.result(outcomeAbandoned)
	return true
}

func (t *pendingTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}
