package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/vk/botgraph/internal/ctxlog"
	"github.com/vk/botgraph/internal/debug"
	"github.com/zishang520/socket.io/v2/socket"
)

// Namespaces served by the gateway.
const (
	BotNamespace   = "/bot"
	DebugNamespace = "/debug"
)

// Dispatcher is the part of the graph manager the gateway drives.
// *manager.Manager implements it.
type Dispatcher interface {
	Load(ctx context.Context, ownerID string) (int, error)
	Unload(ctx context.Context, ownerID string)
	HandleEvent(ctx context.Context, ownerID, eventType string, args map[string]any) error
	Call(ctx context.Context, ownerID, graphName string, data any) (any, error)
}

// Config configures the HTTP listener.
type Config struct {
	Port int
	// ShutdownTimeout bounds the graceful HTTP shutdown. Defaults to 5s.
	ShutdownTimeout time.Duration
}

// Server is the socket.io gateway. The /bot namespace bridges bot
// processes: they register as an owner, stream game events and receive
// actions. The /debug namespace serves debugger and trace observers.
type Server struct {
	cfg        Config
	bots       *Bots
	dispatcher Dispatcher
	debug      *DebugService
	telemetry  *Telemetry

	io         *socket.Server
	httpServer *http.Server

	// ctx is the server's lifetime context; event runs derive from it.
	ctx    context.Context
	cancel context.CancelFunc
	runs   sync.WaitGroup
}

// New creates a Server. The telemetry fan-out is bound to the /debug
// namespace.
func New(cfg Config, bots *Bots, dispatcher Dispatcher, dbg *DebugService, telemetry *Telemetry) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	if telemetry == nil {
		telemetry = NewTelemetry()
	}
	return &Server{cfg: cfg, bots: bots, dispatcher: dispatcher, debug: dbg, telemetry: telemetry}
}

// Handler builds the HTTP handler: socket.io under /socket.io/ and the
// health endpoint. It must be called once.
func (s *Server) Handler(ctx context.Context) http.Handler {
	s.ctx, s.cancel = context.WithCancel(ctx)

	opts := socket.DefaultServerOptions()
	s.io = socket.NewServer(nil, opts)

	s.io.Of(BotNamespace, nil).On("connection", func(clients ...any) {
		s.onBot(clients[0].(*socket.Socket))
	})
	debugNS := s.io.Of(DebugNamespace, nil)
	debugNS.On("connection", func(clients ...any) {
		s.onObserver(clients[0].(*socket.Socket))
	})
	s.telemetry.bind(func(ownerID string, payload any) {
		if err := debugNS.To(telemetryRoom(ownerID)).Emit("telemetry", payload); err != nil {
			ctxlog.FromContext(s.ctx).Warn("Failed to fan out telemetry.", "owner", ownerID, "error", err)
		}
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.Handle("/socket.io/", s.io.ServeHandler(opts))
	return mux
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctxlog.FromContext(s.ctx).Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

// Start listens on the configured port and serves in the background. The
// bound address is returned so a zero port can be used in tests.
func (s *Server) Start(ctx context.Context) (string, error) {
	logger := ctxlog.FromContext(ctx)
	handler := s.Handler(ctx)

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return "", fmt.Errorf("failed to listen on port %d: %w", s.cfg.Port, err)
	}
	s.httpServer = &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	s.spawn(func() {
		logger.Info("Gateway listening.", "address", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Gateway server failed unexpectedly.", "error", err)
		}
	})
	return ln.Addr().String(), nil
}

// Close stops accepting connections, cancels in-flight runs and waits for
// them to return.
func (s *Server) Close(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	if s.cancel != nil {
		s.cancel()
	}
	if s.io != nil {
		s.io.Close(nil)
	}

	var err error
	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
		logger.Info("Shutting down gateway...")
		if err = s.httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Gateway shutdown failed.", "error", err)
		}
	}
	s.runs.Wait()
	logger.Debug("Gateway shut down.")
	return err
}

// spawn runs fn in the background, tracked by Close.
func (s *Server) spawn(fn func()) {
	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		fn()
	}()
}

// ackOf splits the acknowledgement callback off the arguments of an
// incoming event.
func ackOf(args []any) (socket.Ack, []any) {
	if n := len(args); n > 0 {
		if ack, ok := args[n-1].(socket.Ack); ok {
			return ack, args[:n-1]
		}
	}
	return nil, args
}

// reply acknowledges an event with {ok, result} or {ok, error}.
func reply(ack socket.Ack, result any, err error) {
	if ack == nil {
		return
	}
	if err != nil {
		ack([]any{map[string]any{"ok": false, "error": err.Error()}}, nil)
		return
	}
	out, perr := plain(result)
	if perr != nil {
		ack([]any{map[string]any{"ok": false, "error": perr.Error()}}, nil)
		return
	}
	ack([]any{map[string]any{"ok": true, "result": out}}, nil)
}

func first(args []any) any {
	if len(args) == 0 {
		return nil
	}
	return args[0]
}

// socketEmitter adapts a socket to Emitter, converting payloads to plain
// maps first.
type socketEmitter struct{ s *socket.Socket }

func (e socketEmitter) Emit(event string, args ...any) error {
	converted := make([]any, len(args))
	for i, a := range args {
		p, err := plain(a)
		if err != nil {
			return err
		}
		converted[i] = p
	}
	return e.s.Emit(event, converted...)
}

// Payloads of the /bot namespace.
type (
	registerRequest struct {
		OwnerID  string `json:"ownerId"`
		Username string `json:"username"`
	}
	eventRequest struct {
		Type string         `json:"type"`
		Args map[string]any `json:"args"`
	}
	callRequest struct {
		GraphName string `json:"graphName"`
		Data      any    `json:"data"`
	}
)

func (s *Server) onBot(client *socket.Socket) {
	connID := string(client.Id())
	logger := ctxlog.FromContext(s.ctx).With("namespace", BotNamespace, "sid", connID)
	logger.Debug("Bot connected.")

	var (
		mu    sync.Mutex
		owner string
	)
	currentOwner := func() string {
		mu.Lock()
		defer mu.Unlock()
		return owner
	}

	client.On("register", func(args ...any) {
		ack, args := ackOf(args)
		var req registerRequest
		if err := decode(first(args), &req); err != nil || req.OwnerID == "" {
			reply(ack, nil, errors.New("register: ownerId is required"))
			return
		}
		mu.Lock()
		owner = req.OwnerID
		mu.Unlock()

		s.bots.Connect(req.OwnerID, connID, socketEmitter{client})
		if req.Username != "" {
			s.bots.UpdateState(req.OwnerID, State{Username: req.Username})
		}
		ctx := ctxlog.WithLogger(s.ctx, logger.With("owner", req.OwnerID))
		n, err := s.dispatcher.Load(ctx, req.OwnerID)
		if err != nil {
			logger.Error("Failed to load graphs for bot.", "owner", req.OwnerID, "error", err)
		}
		reply(ack, map[string]any{"graphs": n}, err)
	})

	client.On("state", func(args ...any) {
		o := currentOwner()
		var st State
		if o == "" || decode(first(args), &st) != nil {
			return
		}
		s.bots.UpdateState(o, st)
	})

	client.On("event", func(args ...any) {
		ack, args := ackOf(args)
		o := currentOwner()
		if o == "" {
			reply(ack, nil, errors.New("event: bot is not registered"))
			return
		}
		var req eventRequest
		if err := decode(first(args), &req); err != nil || req.Type == "" {
			reply(ack, nil, errors.New("event: type is required"))
			return
		}
		s.bots.Observe(o, req.Type, req.Args)
		ctx := ctxlog.WithLogger(s.ctx, logger.With("owner", o))
		s.spawn(func() {
			reply(ack, nil, s.dispatcher.HandleEvent(ctx, o, req.Type, req.Args))
		})
	})

	client.On("api_call", func(args ...any) {
		ack, args := ackOf(args)
		o := currentOwner()
		if o == "" {
			reply(ack, nil, errors.New("api_call: bot is not registered"))
			return
		}
		var req callRequest
		if err := decode(first(args), &req); err != nil || req.GraphName == "" {
			reply(ack, nil, errors.New("api_call: graphName is required"))
			return
		}
		ctx := ctxlog.WithLogger(s.ctx, logger.With("owner", o))
		s.spawn(func() {
			res, err := s.dispatcher.Call(ctx, o, req.GraphName, req.Data)
			reply(ack, res, err)
		})
	})

	client.On("disconnect", func(...any) {
		o := currentOwner()
		logger.Debug("Bot disconnected.", "owner", o)
		if o != "" && s.bots.Disconnect(o, connID) {
			s.dispatcher.Unload(ctxlog.WithLogger(s.ctx, logger), o)
		}
	})
}

func (s *Server) onObserver(client *socket.Socket) {
	connID := string(client.Id())
	logger := ctxlog.FromContext(s.ctx).With("namespace", DebugNamespace, "sid", connID)
	ctx := ctxlog.WithLogger(s.ctx, logger)
	logger.Debug("Observer connected.")

	var (
		mu       sync.Mutex
		detaches = make(map[debug.Key]func())
	)
	emitter := socketEmitter{client}

	client.On("attach", func(args ...any) {
		ack, args := ackOf(args)
		var req Request
		if err := decode(first(args), &req); err != nil || req.OwnerID == "" || req.GraphID == "" {
			reply(ack, nil, errors.New("attach: ownerId and graphId are required"))
			return
		}
		key := debug.Key{OwnerID: req.OwnerID, GraphID: req.GraphID}
		mu.Lock()
		if _, ok := detaches[key]; !ok {
			detaches[key] = s.debug.Attach(key, func(ev debug.Event) {
				if err := emitter.Emit("debug", ev); err != nil {
					logger.Warn("Failed to deliver debug event.", "session", ev.Key.String(), "error", err)
				}
			})
		}
		mu.Unlock()
		res, err := s.debug.Handle(ctx, connID, CmdPaused, req)
		reply(ack, map[string]any{"paused": res}, err)
	})

	client.On("detach", func(args ...any) {
		ack, args := ackOf(args)
		var req Request
		_ = decode(first(args), &req)
		key := debug.Key{OwnerID: req.OwnerID, GraphID: req.GraphID}
		mu.Lock()
		if d, ok := detaches[key]; ok {
			d()
			delete(detaches, key)
		}
		mu.Unlock()
		reply(ack, nil, nil)
	})

	client.On("subscribe", func(args ...any) {
		ack, args := ackOf(args)
		var req Request
		if err := decode(first(args), &req); err != nil || req.OwnerID == "" {
			reply(ack, nil, errors.New("subscribe: ownerId is required"))
			return
		}
		client.Join(telemetryRoom(req.OwnerID))
		reply(ack, nil, nil)
	})

	for _, cmd := range Commands {
		client.On(cmd, func(args ...any) {
			ack, args := ackOf(args)
			var req Request
			if p := first(args); p != nil {
				if err := decode(p, &req); err != nil {
					reply(ack, nil, fmt.Errorf("%s: %w", cmd, err))
					return
				}
			}
			actor := connID
			s.spawn(func() {
				res, err := s.debug.Handle(ctx, actor, cmd, req)
				reply(ack, res, err)
			})
		})
	}

	client.On("disconnect", func(...any) {
		mu.Lock()
		for id, d := range detaches {
			d()
			delete(detaches, id)
		}
		mu.Unlock()
		logger.Debug("Observer disconnected.")
	})
}

func telemetryRoom(ownerID string) socket.Room {
	return socket.Room("telemetry:" + ownerID)
}
