// Package rpclient реализует RPC-клиент поверх одного постоянного
// WebSocket-соединения: запрос/ответ, fire-and-forget уведомления и
// push-события от сервера, мультиплексированные в одном канале.
//
// Что внутри:
//   - таблица ожидающих вызовов: каждый Request получает уникальный
//     sequence, ответ находит своего адресата по нему, а не по порядку;
//   - таймауты на вызов (периодический sweep) и отмена через context;
//   - реестр push-обработчиков по имени команды (последний побеждает);
//   - машина состояний соединения: Connect с ограниченными повторами,
//     автореконнект с экспоненциальной паузой, Cancel.
//
// Гарантии:
//   - каждый запрос завершается ровно одним результатом: ответ сервера,
//     ErrTimeout, ErrConnectionLost (разрыв) или ErrCancelled (Cancel);
//   - ошибки приложения (ненулевой код) возвращаются как *ServerError
//     только тому вызову, к которому относятся;
//   - битые фреймы, ответы на неизвестный sequence и push без подписчика
//     пишутся в лог и отбрасываются, соединение не рвётся.
//
// События (колбэки поля структуры):
//   - OnConnected, OnReconnected, OnDisconnected, OnError, OnSend.
//
// Пример:
//
//	c, err := rpclient.NewWS(cfg, rpclient.WithLogger(logger))
//	if err != nil { log.Fatal(err) }
//	c.OnReconnected = func() { logger.Info("restored") }
//	rpclient.On(c, "Room.joined", func(ev *pb.Joined) { ... })
//
//	if err := c.Connect(ctx, cfg.Token); err != nil { log.Fatal(err) }
//	defer c.Cancel(true)
//
//	reply, err := rpclient.Request[*pb.JoinReply](ctx, c, "Room.join", &pb.Join{Room: "lobby"},
//	    rpclient.WithTimeout(5*time.Second))
//	if code, ok := rpclient.ErrorCode(err); ok {
//	    // сервер отказал
//	}
//
//	_ = c.Notify("Chat.typing", &pb.Typing{})
package rpclient
