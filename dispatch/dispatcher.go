// Package dispatch routes ordinary application RPC requests — the traffic the
// mux declines — to registered service methods via reflection, through a
// middleware chain in the onion model.
package dispatch

import (
	"context"
	"reflect"
	"sync"

	"go.uber.org/zap"

	"procbridge/codec"
	"procbridge/protocol"
)

// Dispatcher holds the registered services and the middleware chain for one
// process side.
type Dispatcher struct {
	codec       codec.Codec
	logger      *zap.Logger
	serviceMap  map[string]*service
	middlewares []Middleware

	buildOnce sync.Once
	handler   HandlerFunc
}

// NewDispatcher creates a dispatcher that unmarshals arguments with c.
func NewDispatcher(c codec.Codec, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		codec:      c,
		logger:     logger,
		serviceMap: make(map[string]*service),
	}
}

// Register exposes rcvr's RPC-shaped methods under its struct type name.
func (d *Dispatcher) Register(rcvr any) error {
	svc, err := newService(rcvr)
	if err != nil {
		return err
	}
	d.serviceMap[svc.name] = svc
	return nil
}

// Use appends a middleware. Middlewares apply in registration order and must
// all be registered before the first Handle call.
func (d *Dispatcher) Use(mw Middleware) {
	d.middlewares = append(d.middlewares, mw)
}

// Handle runs req through the middleware chain into the business handler and
// returns the fulfillment. Every failure becomes a StatusError fulfillment —
// the peer always gets an answer it can correlate.
func (d *Dispatcher) Handle(ctx context.Context, req *protocol.Request) *protocol.Fulfillment {
	// Build the chain once, on first use, not per request
	d.buildOnce.Do(func() {
		d.handler = Chain(d.middlewares...)(d.businessHandler)
	})
	return d.handler(ctx, req)
}

func (d *Dispatcher) businessHandler(_ context.Context, req *protocol.Request) *protocol.Fulfillment {
	svc, ok := d.serviceMap[req.Interface]
	if !ok {
		return d.fail(req, "unknown interface: "+req.Interface)
	}
	method, ok := svc.method[req.Operation]
	if !ok {
		return d.fail(req, "unknown operation: "+req.Interface+"."+req.Operation)
	}
	if len(req.Params) != 1 {
		return d.fail(req, "expected exactly one marshaled argument")
	}

	argv := reflect.New(method.ArgType)
	replyv := reflect.New(method.ReplyType)

	if err := d.codec.Decode(req.Params[0], argv.Interface()); err != nil {
		return d.fail(req, "decode args: "+err.Error())
	}

	if err := svc.call(method, argv, replyv); err != nil {
		return d.fail(req, err.Error())
	}

	result, err := d.codec.Encode(replyv.Interface())
	if err != nil {
		d.logger.Error("encode reply failed",
			zap.String("interface", req.Interface),
			zap.String("operation", req.Operation),
			zap.Error(err))
		return d.fail(req, "encode reply: "+err.Error())
	}

	return &protocol.Fulfillment{
		Interface: req.Interface,
		ID:        req.ID,
		Result:    result,
		Status:    protocol.StatusOK,
		// Keep the live value so a local caller can skip re-decoding Result
		RawResult: replyv.Interface(),
	}
}

func (d *Dispatcher) fail(req *protocol.Request, detail string) *protocol.Fulfillment {
	body, err := d.codec.Encode(detail)
	if err != nil {
		body = nil
	}
	return &protocol.Fulfillment{
		Interface: req.Interface,
		ID:        req.ID,
		Result:    body,
		Status:    protocol.StatusError,
	}
}
