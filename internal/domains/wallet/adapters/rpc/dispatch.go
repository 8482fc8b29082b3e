package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"walletbridge/go-backend/internal/domains/contracts"
	"walletbridge/go-backend/internal/domains/rpckit"
	"walletbridge/go-backend/internal/domains/wallet/usecase"
)

// Caller carries the per-invocation context a host transport supplies.
// Delivery is required only by listener-registering commands.
type Caller struct {
	CorrelationID string
	Delivery      contracts.DeliveryRef
}

// Recorder observes one sample per dispatched command.
type Recorder interface {
	CommandHandled(action string, code int, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) CommandHandled(string, int, time.Duration) {}

type request struct {
	action string
	args   json.RawMessage
	caller Caller
}

type handler func(ctx context.Context, req request) (any, error)

// callWithParams decodes the argument bag into P before calling fn, so a parse
// failure never reaches the session.
func callWithParams[P any, PP paramsOf[P]](fn func(context.Context, P) (any, error)) handler {
	return func(ctx context.Context, req request) (any, error) {
		var params P
		if err := decodeParams(req.action, req.args, PP(&params)); err != nil {
			return nil, err
		}
		return fn(ctx, params)
	}
}

func callWithCallerParams[P any, PP paramsOf[P]](fn func(context.Context, P, Caller) (any, error)) handler {
	return func(ctx context.Context, req request) (any, error) {
		var params P
		if err := decodeParams(req.action, req.args, PP(&params)); err != nil {
			return nil, err
		}
		return fn(ctx, params, req.caller)
	}
}

type Dispatcher struct {
	session  *usecase.Session
	logger   *slog.Logger
	recorder Recorder
	handlers map[string]handler
}

func NewDispatcher(session *usecase.Session, logger *slog.Logger, recorder Recorder) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	d := &Dispatcher{session: session, logger: logger, recorder: recorder, handlers: make(map[string]handler)}
	d.registerManager()
	d.registerMasterWallets()
	d.registerSubWallets()
	d.registerChains()
	d.registerGovernance()
	d.registerListeners()
	d.registerBackups()
	return d
}

func (d *Dispatcher) register(action string, h handler) {
	if _, dup := d.handlers[action]; dup {
		panic("duplicate wallet action " + action)
	}
	d.handlers[action] = h
}

// Actions lists every action name the dispatcher resolves, sorted.
func (d *Dispatcher) Actions() []string {
	out := make([]string, 0, len(d.handlers))
	for action := range d.handlers {
		out = append(out, action)
	}
	slices.Sort(out)
	return out
}

// Dispatch runs one command and always returns exactly one envelope. A
// panic anywhere below is reported as a fault.
func (d *Dispatcher) Dispatch(ctx context.Context, action string, args json.RawMessage, caller Caller) (result rpckit.Result) {
	start := time.Now()
	h, known := d.handlers[action]
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("wallet command panicked",
				"component", "wallet.dispatch",
				"operation", action,
				"correlation_id", caller.CorrelationID,
				"panic", fmt.Sprint(rec),
			)
			result = rpckit.Fault(fmt.Sprint(rec))
		}
		d.observe(action, known, caller, result, time.Since(start))
	}()

	if !known {
		return rpckit.DomainError(int(contracts.CodeActionNotFound), fmt.Sprintf("Action '%s' not found", action))
	}
	value, err := h(ctx, request{action: action, args: args, caller: caller})
	if err != nil {
		return resultFromError(action, err)
	}
	return rpckit.Success(value)
}

func (d *Dispatcher) observe(action string, known bool, caller Caller, result rpckit.Result, elapsed time.Duration) {
	label := action
	if !known {
		label = "unknown"
	}
	d.recorder.CommandHandled(label, result.Code(), elapsed)
	attrs := []any{
		"component", "wallet.dispatch",
		"operation", label,
		"correlation_id", caller.CorrelationID,
		"rpc_code", result.Code(),
		"latency_ms", elapsed.Milliseconds(),
	}
	if result.OK() {
		d.logger.Debug("wallet command handled", attrs...)
		return
	}
	attrs = append(attrs, "error", result.Message())
	if ex := result.Exception(); ex != "" {
		attrs = append(attrs, "exception", ex)
	}
	d.logger.Warn("wallet command failed", attrs...)
}

// ReleaseDelivery unsubscribes every listener bound to a delivery channel
// the host no longer reads from.
func (d *Dispatcher) ReleaseDelivery(ctx context.Context, deliveryKey string) {
	ids, err := d.session.ReleaseDelivery(ctx, deliveryKey)
	if err != nil {
		d.logger.Warn("release delivery failed",
			"component", "wallet.dispatch",
			"delivery_key", deliveryKey,
			"error", err.Error(),
		)
		return
	}
	if len(ids) > 0 {
		d.logger.Debug("listeners released with their delivery channel",
			"component", "wallet.dispatch",
			"delivery_key", deliveryKey,
			"subscriptions", len(ids),
		)
	}
}
