package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/EgorLis/wsrpc/internal/rpclient"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

func mustLogger(debug bool) *zap.Logger {
	var (
		l   *zap.Logger
		err error
	)
	if debug {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatal(err)
	}
	return l
}

func main() {
	os.Exit(run(os.Args[1:]))
}

// run возвращает код выхода; os.Exit только в main, чтобы отработали defer-ы
// (close-фрейм и сброс логов).
func run(args []string) int {
	fs := pflag.NewFlagSet("wsrpcctl", pflag.ContinueOnError)
	var (
		confPath = fs.StringP("config", "c", "conf/client.yaml", "client config (json or yaml)")
		command  = fs.String("command", "", "command to call")
		payload  = fs.String("payload", "{}", "request payload as JSON object")
		notify   = fs.Bool("notify", false, "send as notify, do not wait for a response")
		listen   = fs.StringSlice("listen", nil, "push commands to print until Ctrl+C")
		timeout  = fs.Duration("timeout", 0, "response timeout (0: request_timeout from config)")
		debug    = fs.Bool("debug", false, "development logger")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	logger := mustLogger(*debug)
	defer logger.Sync()

	cfg, err := rpclient.LoadConfig(*confPath)
	if err != nil {
		logger.Error("load config", zap.Error(err))
		return 1
	}

	c, err := rpclient.NewWS(cfg, rpclient.WithLogger(logger))
	if err != nil {
		logger.Error("client", zap.Error(err))
		return 1
	}
	c.OnReconnected = func() { logger.Info("reconnected") }
	c.OnDisconnected = func() { logger.Info("disconnected") }
	c.OnError = func(err error) { logger.Warn("connection error", zap.Error(err)) }

	pp := newPrinter(cfg.Codec)
	for _, cmd := range *listen {
		pp.listen(c, cmd)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := c.Connect(ctx, cfg.Token); err != nil {
		logger.Error("connect", zap.Error(err))
		return 1
	}
	defer c.Cancel(true)

	code := 0
	if *command != "" {
		var opts []rpclient.CallOption
		if *timeout > 0 {
			opts = append(opts, rpclient.WithTimeout(*timeout))
		}
		if err := pp.run(ctx, c, *command, *payload, *notify, opts...); err != nil {
			var se *rpclient.ServerError
			if errors.As(err, &se) {
				logger.Error("server error", zap.String("command", se.Command),
					zap.Int32("code", se.Code), zap.String("message", se.Message))
			} else {
				logger.Error("call failed", zap.String("command", *command), zap.Error(err))
			}
			code = 1
		}
	}
	if len(*listen) == 0 {
		return code
	}

	logger.Info("listening… press Ctrl+C to stop", zap.Strings("commands", *listen))
	<-ctx.Done()
	return code
}

// printer переводит JSON из командной строки в payload выбранного кодека
// и печатает ответы и push-сообщения как JSON.
type printer struct {
	proto bool
}

func newPrinter(codecName string) printer {
	switch codecName {
	case "", "proto", "protobuf":
		return printer{proto: true}
	}
	return printer{}
}

func (p printer) run(ctx context.Context, c *rpclient.Client, command, payload string, notify bool, opts ...rpclient.CallOption) error {
	var in map[string]any
	if err := json.Unmarshal([]byte(payload), &in); err != nil {
		return fmt.Errorf("payload: %w", err)
	}

	var req any = in
	if p.proto {
		s, err := structpb.NewStruct(in)
		if err != nil {
			return fmt.Errorf("payload: %w", err)
		}
		req = s
	}

	if notify {
		return c.Notify(command, req)
	}

	if p.proto {
		res, err := rpclient.Request[*structpb.Struct](ctx, c, command, req, opts...)
		if err != nil {
			return err
		}
		p.print(command, res)
		return nil
	}
	res, err := rpclient.Request[any](ctx, c, command, req, opts...)
	if err != nil {
		return err
	}
	p.print(command, res)
	return nil
}

func (p printer) listen(c *rpclient.Client, command string) {
	if p.proto {
		rpclient.On(c, command, func(v *structpb.Struct) { p.print(command, v) })
		return
	}
	rpclient.On(c, command, func(v any) { p.print(command, v) })
}

func (p printer) print(command string, v any) {
	var (
		b   []byte
		err error
	)
	switch m := v.(type) {
	case *structpb.Struct:
		b, err = protojson.Marshal(m)
	default:
		b, err = json.Marshal(m)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", command, err)
		return
	}
	fmt.Printf("%s %s\n", command, b)
}
