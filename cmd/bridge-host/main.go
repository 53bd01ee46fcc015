// bridge-host runs the backend side of the bridge standalone: it listens for
// a websocket connection from a UI process and serves both IPC envelopes and
// application RPC over it. Useful for developing a frontend against a real
// host without embedding one.
package main

import (
	"flag"
	"net/http"
	"time"

	"go.uber.org/zap"

	"procbridge/bridge"
	"procbridge/codec"
	"procbridge/config"
	"procbridge/dispatch"
	"procbridge/envelope"
	"procbridge/logging"
	"procbridge/transport"
)

type Echo struct{}

type EchoArgs struct {
	Text string `json:"text"`
}

type EchoReply struct {
	Text string `json:"text"`
}

func (e *Echo) Echo(args *EchoArgs, reply *EchoReply) error {
	reply.Text = args.Text
	return nil
}

func main() {
	configPath := flag.String("config", "", "path to a HuJSON config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if !cfg.WS.Enabled {
		logger.Fatal("websocket transport is disabled in config; bridge-host has nothing to serve")
	}

	ct := codec.CodecTypeCBOR
	if cfg.Codec == "json" {
		ct = codec.CodecTypeJSON
	}
	c := codec.GetCodec(ct)

	newConn := func() *bridge.Connection {
		d := dispatch.NewDispatcher(c, logger)
		d.Use(dispatch.LoggingMiddleware(logger))
		d.Use(dispatch.RateLimitMiddleware(100, 20))
		d.Use(dispatch.TimeoutMiddleware(10 * time.Second))

		conn := bridge.NewConnection(c, d, logger)
		backend := bridge.NewBackend(conn)
		if err := backend.Register(&Echo{}); err != nil {
			logger.Fatal("register service", zap.Error(err))
		}
		backend.Listen(func(env *envelope.Envelope) {
			if env.Type == envelope.TypeInvoke {
				if err := backend.Respond(env.Channel, env.Payload); err != nil {
					logger.Error("respond failed", zap.String("channel", env.Channel), zap.Error(err))
				}
			}
		})
		return conn
	}

	up := transport.NewUpgraderInterval(func(l *transport.WSLink) transport.Sink {
		conn := newConn()
		conn.Bind(l)
		logger.Info("frontend connected")
		return conn
	}, logger, time.Duration(cfg.HeartbeatSeconds)*time.Second)

	httpMux := http.NewServeMux()
	httpMux.HandleFunc(cfg.WS.Path, up.Handler)
	logger.Info("bridge host listening",
		zap.String("addr", cfg.WS.ListenAddr),
		zap.String("path", cfg.WS.Path),
		zap.String("codec", cfg.Codec))
	if err := http.ListenAndServe(cfg.WS.ListenAddr, httpMux); err != nil {
		logger.Fatal("listen failed", zap.Error(err))
	}
}
