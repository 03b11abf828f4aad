package jsonrpcfx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/gofrs/uuid"
	"github.com/uber/doc-lsp/src/dlsp/internal/serverinfofile"
	"go.lsp.dev/jsonrpc2"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	_configKeyAddress   = "jsonrpc.address"
	_configKeyTransport = "jsonrpc.transport"
	_outputKey          = "lsp-address"

	// TransportTCP listens on the configured address and serves any number of connections.
	TransportTCP = "tcp"
	// TransportStdio serves exactly one connection over the process's stdin/stdout and shuts the app down when it ends.
	TransportStdio = "stdio"
)

// Module is an fx module to handle JSON-RPC requests.
var Module = fx.Provide(New)

// JSONRPCModule represents a module to manage JSON-RPC requests.
type JSONRPCModule interface {
	OnStart(ctx context.Context) error
	ServeStream(ctx context.Context, conn jsonrpc2.Conn) error
	RegisterConnectionManager(connectionManager ConnectionManager) error
}

// Router serves as the interface through which handling of requests will be implemented.
type Router interface {
	HandleReq(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error
	UUID() uuid.UUID
}

// ConnectionManager will manage each active connection and its corresponding Router throughout the lifecycle of a connection.
type ConnectionManager interface {
	NewConnection(ctx context.Context, conn *jsonrpc2.Conn) (router Router, err error)
	RemoveConnection(ctx context.Context, id uuid.UUID)
}

type module struct {
	Address   string `json:"address"`
	Transport string `json:"transport"`

	connectionMgr  ConnectionManager
	ln             *net.TCPListener
	logger         *zap.SugaredLogger
	serverInfoFile serverinfofile.ServerInfoFile
	shutdowner     fx.Shutdowner

	stdin  io.ReadCloser
	stdout io.WriteCloser
}

// Params define values to be used by JsonRpcHandler.
type Params struct {
	fx.In

	Config         config.Provider
	Lifecycle      fx.Lifecycle
	Logger         *zap.SugaredLogger
	ServerInfoFile serverinfofile.ServerInfoFile
	Shutdowner     fx.Shutdowner `optional:"true"`
}

// New creates a new server to handle JSON-RPC requests on the given port and host, or over stdio.
func New(p Params) (JSONRPCModule, error) {
	if p.Lifecycle == nil || p.Config == nil {
		return nil, errors.New("required parameters are missing")
	}

	m := module{
		logger:         p.Logger,
		serverInfoFile: p.ServerInfoFile,
		shutdowner:     p.Shutdowner,
		stdin:          os.Stdin,
		stdout:         os.Stdout,
	}

	if err := m.processConfig(p.Config); err != nil {
		return nil, err
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: m.OnStart,
		OnStop:  m.OnStop,
	})

	return &m, nil
}

// OnStart will initialize a JSON-RPC handler and then begin handling incoming connections.
func (m *module) OnStart(ctx context.Context) error {
	if m.Transport == TransportStdio {
		go m.serveStdio()
		return nil
	}

	if err := m.setup(); err != nil {
		return err
	}

	go m.start()
	return nil
}

// OnStop stops accepting new TCP connections.
func (m *module) OnStop(ctx context.Context) error {
	if m.ln == nil {
		return nil
	}
	if err := m.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// ServeStream is called when a new connection is initiated. Requests received via the connection will be routed to the handler, and answered via the connection's replier.
func (m *module) ServeStream(ctx context.Context, conn jsonrpc2.Conn) error {
	if m.connectionMgr == nil {
		m.logger.Errorf("cannot serve connection, no connection manager set")
		return errors.New("cannot serve connection, no connection manager set")
	}

	// Start handling the connection.
	handler, err := m.connectionMgr.NewConnection(ctx, &conn)
	if err != nil {
		return err
	}
	m.logger.Infow("client connected", zap.Stringer("uuid", handler.UUID()))
	// Requests are answered in order, but a handler may wait on a call back to the editor without blocking the reader.
	conn.Go(ctx, jsonrpc2.AsyncHandler(handler.HandleReq))

	// Block until connection closed.
	<-conn.Done()

	// Cleanup after connection.
	m.connectionMgr.RemoveConnection(ctx, handler.UUID())
	m.logger.Infow("client disconnected", zap.Stringer("uuid", handler.UUID()))

	return conn.Err()
}

// RegisterConnectionManager sets the connection manager, which keeps track of current active connections and provides a Router implementation.
func (m *module) RegisterConnectionManager(connectionMgr ConnectionManager) error {
	if m.connectionMgr != nil {
		return errors.New("cannot register a duplicate connection manager")
	}
	m.connectionMgr = connectionMgr
	return nil
}

// setup should be called after creation of a new handler to set initial values.
func (m *module) setup() error {
	if m.Address == "" {
		return errors.New("setup called before address is set")
	}

	addr, err := net.ResolveTCPAddr("tcp", m.Address)
	if err != nil {
		return err
	}

	m.ln, err = net.ListenTCP("tcp", addr)
	return err
}

// start will begin serving connections, and panic on error.
func (m *module) start() {
	address := m.ln.Addr().String()
	if err := m.serverInfoFile.UpdateField(_outputKey, address); err != nil {
		panic(err)
	}

	m.logger.Infow("started JSON-RPC inbound", zap.String("address", address))
	if err := jsonrpc2.Serve(context.Background(), m.ln, m, 0); err != nil && !errors.Is(err, net.ErrClosed) {
		panic(err)
	}
}

// serveStdio serves the single editor connection over the standard streams.
func (m *module) serveStdio() {
	m.logger.Infow("started JSON-RPC inbound", zap.String("transport", TransportStdio))
	conn := jsonrpc2.NewConn(jsonrpc2.NewStream(&stdioStream{in: m.stdin, out: m.stdout}))
	if err := m.ServeStream(context.Background(), conn); err != nil && !errors.Is(err, io.EOF) {
		m.logger.Errorw("stdio connection ended", zap.Error(err))
	}

	if m.shutdowner != nil {
		if err := m.shutdowner.Shutdown(); err != nil {
			m.logger.Errorw("requesting shutdown", zap.Error(err))
		}
	}
}

// processConfig will parse the configuration for any values required by this module.
func (m *module) processConfig(cfg config.Provider) error {
	if err := cfg.Get(_configKeyTransport).Populate(&m.Transport); err != nil {
		return fmt.Errorf("getting config field %q: %w", _configKeyTransport, err)
	}
	switch m.Transport {
	case "":
		m.Transport = TransportTCP
	case TransportTCP, TransportStdio:
	default:
		return fmt.Errorf("unsupported %q value %q", _configKeyTransport, m.Transport)
	}

	val := cfg.Get(_configKeyAddress)
	if err := val.Populate(&m.Address); err != nil {
		// incorrectly formatted config
		return fmt.Errorf("getting config field %q: %w", _configKeyAddress, err)
	}

	if m.Address == "" && m.Transport == TransportTCP {
		// yaml is missing either the key or value
		return fmt.Errorf("missing field %q in config", _configKeyAddress)
	}

	return nil
}

type stdioStream struct {
	in  io.ReadCloser
	out io.WriteCloser
}

func (s *stdioStream) Read(p []byte) (int, error) {
	return s.in.Read(p)
}

func (s *stdioStream) Write(p []byte) (int, error) {
	return s.out.Write(p)
}

func (s *stdioStream) Close() error {
	return multierr.Append(s.in.Close(), s.out.Close())
}
