package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"

	"walletbridge/go-backend/internal/bootstrap/walletconfig"
	"walletbridge/go-backend/internal/domains/rpckit"
	walletrpc "walletbridge/go-backend/internal/domains/wallet/adapters/rpc"
	"walletbridge/go-backend/internal/platform/ratelimiter"
)

const DefaultListen = "/ip4/127.0.0.1/tcp/8787"

// Dispatcher runs one wallet command per JSON-RPC call. ReleaseDelivery is
// called once a delivery channel's stream has ended.
type Dispatcher interface {
	Dispatch(ctx context.Context, action string, args json.RawMessage, caller walletrpc.Caller) rpckit.Result
	ReleaseDelivery(ctx context.Context, deliveryKey string)
}

// Observer counts transport-level rejections and open delivery streams.
type Observer interface {
	RequestRejected(reason string)
	StreamOpened()
	StreamClosed()
}

type nopObserver struct{}

func (nopObserver) RequestRejected(string) {}
func (nopObserver) StreamOpened()          {}
func (nopObserver) StreamClosed()          {}

type Options struct {
	Config     walletconfig.RPCConfig
	Dispatcher Dispatcher
	// Metrics is served on /metrics when set.
	Metrics  http.Handler
	Observer Observer
	Logger   *slog.Logger
	Version  string
}

type Server struct {
	httpServer  *http.Server
	dispatcher  Dispatcher
	observer    Observer
	logger      *slog.Logger
	version     string
	listen      string
	rpcToken    string
	rpcLimiter  *ratelimiter.MapLimiter
	streams     *streamLimiter
	channels    *channelHub
	idempotency *replayCache

	mu       sync.Mutex
	listener net.Listener
}

func NewServer(opts Options) *Server {
	cfg := opts.Config
	if strings.TrimSpace(cfg.Listen) == "" {
		cfg.Listen = DefaultListen
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	mux := http.NewServeMux()
	s := &Server{
		httpServer: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		dispatcher:  opts.Dispatcher,
		observer:    observer,
		logger:      logger.With("component", "rpc"),
		version:     opts.Version,
		listen:      cfg.Listen,
		rpcToken:    strings.TrimSpace(cfg.Token),
		rpcLimiter:  ratelimiter.New(cfg.RateLimitRPS, cfg.RateLimitBurst, 10*time.Minute),
		streams:     newStreamLimiter(cfg.StreamMaxGlobal, cfg.StreamMaxPerClient),
		channels:    newChannelHub(),
		idempotency: newReplayCache(),
	}
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/rpc", s.handleRPC)
	mux.HandleFunc("/rpc/stream", s.handleRPCStream)
	if opts.Metrics != nil {
		mux.Handle("/metrics", s.guard(opts.Metrics))
	}
	return s
}

// Handler exposes the routes for embedding and tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Addr reports the bound address once Run is listening.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Listen accepts a multiaddr such as /ip4/127.0.0.1/tcp/8787 or a plain
// host:port.
func Listen(addr string) (net.Listener, error) {
	addr = strings.TrimSpace(addr)
	if !strings.HasPrefix(addr, "/") {
		return net.Listen("tcp", addr)
	}
	maddr, err := ma.NewMultiaddr(addr)
	if err != nil {
		return nil, fmt.Errorf("parse listen multiaddr: %w", err)
	}
	l, err := manet.Listen(maddr)
	if err != nil {
		return nil, err
	}
	return manet.NetListener(l), nil
}

func (s *Server) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	default:
	}
	if s.dispatcher == nil {
		return errors.New("rpc server has no dispatcher")
	}
	l, err := Listen(s.listen)
	if err != nil {
		return err
	}
	if s.rpcToken == "" {
		if !isLoopback(l.Addr()) {
			_ = l.Close()
			return fmt.Errorf("rpc token is required when listening on %s", l.Addr())
		}
		s.logger.Warn("rpc token is not set; auth disabled on loopback listener", "operation", "listen", "addr", l.Addr().String())
	}
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()
	s.logger.Info("rpc server listening", "operation", "listen", "addr", l.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		err := s.httpServer.Serve(l)
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
			return
		}
		errCh <- err
	}()

	select {
	case <-ctx.Done():
		s.channels.closeAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	case err := <-errCh:
		s.channels.closeAll()
		return err
	}
}

func isLoopback(addr net.Addr) bool {
	tcp, ok := addr.(*net.TCPAddr)
	return ok && tcp.IP.IsLoopback()
}
