// Command viewerd runs a scene front end serving the built-in handle
// operations over TCP and WebSocket.
//
//	viewerd -init viewerd.toml     write a starting configuration
//	viewerd -config viewerd.toml   serve until SIGINT or SIGTERM
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	clientv3 "go.etcd.io/etcd/client/v3"

	"scene-rpc/codec"
	"scene-rpc/config"
	"scene-rpc/logging"
	"scene-rpc/middleware"
	"scene-rpc/operation"
	"scene-rpc/protocol"
	"scene-rpc/registry"
	"scene-rpc/server"
	"scene-rpc/session"
)

// defaultMaterial is what material id -1 resolves to.
type defaultMaterial struct{}

func (defaultMaterial) String() string { return "default" }

func main() {
	configPath := flag.String("config", "", "path to the TOML configuration")
	initPath := flag.String("init", "", "write a configuration template to this path and exit")
	flag.Parse()

	if *initPath != "" {
		if err := config.WriteTemplate(*initPath, false); err != nil {
			fmt.Fprintf(os.Stderr, "viewerd: %v\n", err)
			os.Exit(1)
		}
		return
	}
	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "viewerd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Options{App: "viewerd", Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return err
	}

	ops := operation.NewRegistry()
	if err := operation.RegisterBuiltins(ops); err != nil {
		return err
	}

	sessions := session.NewStore(logger,
		session.WithDefaultMaterial(defaultMaterial{}),
		session.WithRelease(func(kind codec.HandleKind, obj any) {
			logger.Debug().Stringer("kind", kind).Interface("object", obj).Msg("released")
		}),
	)

	policy, err := server.ParseFaultPolicy(cfg.Web.FaultPolicy)
	if err != nil {
		return err
	}
	svr := server.NewServer(ops, sessions, server.Options{
		Limits:      protocol.Limits{MaxBodyBytes: cfg.Server.MaxFrameBytes},
		Session:     cfg.Server.Session,
		FaultPolicy: policy,
		IdleTimeout: cfg.Server.IdleTimeout.Duration,
		Service:     cfg.Registry.Service,
		Logger:      logger,
	})
	svr.Use(middleware.Logging(logger))
	svr.Use(middleware.Metrics())
	if cfg.Server.RateLimit > 0 {
		svr.Use(middleware.RateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst))
	}
	if cfg.Server.RequestTimeout.Duration > 0 {
		svr.Use(middleware.Timeout(cfg.Server.RequestTimeout.Duration))
	}

	reg, ep, err := discovery(cfg)
	if err != nil {
		return err
	}
	if reg != nil {
		defer reg.Close()
	}

	errc := make(chan error, 2)
	if _, err := svr.Listen("tcp", cfg.Server.Addr); err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.Addr, err)
	}
	go func() {
		if reg != nil {
			errc <- svr.Serve("tcp", cfg.Server.Addr, ep, reg)
			return
		}
		errc <- svr.Serve("tcp", cfg.Server.Addr, nil, nil)
	}()

	if cfg.Web.Addr != "" {
		ln, err := net.Listen("tcp", cfg.Web.Addr)
		if err != nil {
			svr.Shutdown(cfg.Server.ShutdownTimeout.Duration)
			return fmt.Errorf("listen %s: %w", cfg.Web.Addr, err)
		}
		logger.Info().Str("addr", ln.Addr().String()).Str("websocket", cfg.Web.WebSocketPath).Msg("serving http")
		go func() { errc <- svr.ServeWeb(ln, svr.Handler(cfg.Web.WebSocketPath, cfg.Web.MetricsPath)) }()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case err := <-errc:
		if err != nil {
			svr.Shutdown(cfg.Server.ShutdownTimeout.Duration)
			return err
		}
	}
	return svr.Shutdown(cfg.Server.ShutdownTimeout.Duration)
}

// discovery connects to etcd when endpoints are configured.
func discovery(cfg config.Config) (*registry.EtcdRegistry, *registry.Endpoint, error) {
	if len(cfg.Registry.Endpoints) == 0 {
		return nil, nil, nil
	}
	reg, err := registry.NewEtcdRegistry(clientv3.Config{
		Endpoints:   cfg.Registry.Endpoints,
		DialTimeout: cfg.Registry.DialTimeout.Duration,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("etcd: %w", err)
	}
	ep := &registry.Endpoint{
		Addr:    cfg.Registry.Advertise,
		Weight:  cfg.Registry.Weight,
		Version: strconv.Itoa(int(protocol.Version)),
	}
	if cfg.Web.Addr != "" {
		ep.WebSocket = webSocketURL(cfg.Registry.Advertise, cfg.Web.Addr, cfg.Web.WebSocketPath)
	}
	return reg, ep, nil
}

// webSocketURL advertises the HTTP port on the advertised TCP host.
func webSocketURL(advertise, webAddr, path string) string {
	host, _, err := net.SplitHostPort(advertise)
	if err != nil {
		host = advertise
	}
	_, port, err := net.SplitHostPort(webAddr)
	if err != nil {
		return ""
	}
	return "ws://" + net.JoinHostPort(host, port) + path
}
