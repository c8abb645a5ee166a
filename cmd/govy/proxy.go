package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/lucidwire/govy/internal/acceptor"
	"github.com/lucidwire/govy/internal/config"
	"github.com/lucidwire/govy/internal/devtools"
	"github.com/lucidwire/govy/internal/handler"
	"github.com/lucidwire/govy/internal/metrics"
	"github.com/lucidwire/govy/internal/netconn"
	"github.com/lucidwire/govy/internal/plugin"
	"github.com/lucidwire/govy/internal/proxycore"
	"github.com/lucidwire/govy/internal/tlsca"
	"github.com/lucidwire/govy/internal/webcore"
)

// workerModeEnv is set on the re-exec'd child so it knows to receive the
// listener over the control socket inherited on fd 3 instead of binding
// one itself (spec.md §4.8).
const workerModeEnv = "GOVY_WORKER_MODE"

func runProxy(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if os.Getenv(workerModeEnv) == "1" {
		reg, err := buildRegistry(cfg, logger)
		if err != nil {
			return err
		}
		handlerFactory := func(conn net.Conn, addr net.Addr) {
			h := handler.New(cfg, logger, conn, reg)
			runHandlerLoop(context.Background(), cfg, h)
		}
		connStepFactory := func(conn *net.TCPConn) acceptor.ConnStep {
			return handler.New(cfg, logger, conn, reg)
		}
		return runWorker(cfg, logger, handlerFactory, connStepFactory)
	}
	return runAcceptor(cfg, logger)
}

// buildRegistry registers the proxycore and webcore core plugin factories
// plus whatever Proxy/Web sub-plugin factories the embedding build links
// in (none by default).
func buildRegistry(cfg *config.Config, logger *zap.Logger) (*plugin.Registry, error) {
	m := metrics.New(prometheus.NewRegistry())

	var bus *devtools.Bus
	if cfg.EnableDevtools {
		bus = devtools.New(cfg.DevtoolsCapacity, logger)
	}

	var minter *tlsca.Minter
	if cfg.TLS.Complete() {
		material, err := tlsca.LoadMaterial(cfg.TLS.CACertFile, cfg.TLS.CAKeyFile, cfg.TLS.CASigningKeyFile, cfg.TLS.CACertDir)
		if err != nil {
			return nil, errors.Wrap(err, "proxy: loading CA material")
		}
		minter = tlsca.NewMinter(material)
	}

	reg := plugin.NewRegistry()
	reg.RegisterCore("proxycore", func(client *netconn.Conn, conn *plugin.Registry, connLogger *zap.Logger) plugin.Core {
		proxies := conn.BuildProxies(cfg.Plugins.Proxy)
		return proxycore.New(cfg, connLogger, m, minter, bus, client, proxies)
	})
	if cfg.EnableWebServer {
		reg.RegisterCore("webcore", func(client *netconn.Conn, conn *plugin.Registry, connLogger *zap.Logger) plugin.Core {
			webs := conn.BuildWebs(cfg.Plugins.Web)
			router := webcore.NewRouter(webs)
			return webcore.New(cfg, connLogger, m, bus, router, client)
		})
	}
	return reg, nil
}

// runHandlerLoop steps h until it reports done, bounding each step with
// cfg.Timeout the same way the cooperative worker bounds its ticks, so
// threaded and threadless connections share one cancellation policy.
func runHandlerLoop(ctx context.Context, cfg *config.Config, h *handler.Handler) {
	for {
		stepCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		done, err := h.Step(stepCtx)
		cancel()
		if err != nil || done {
			return
		}
	}
}

// runAcceptor is the parent process: bind the listener, write the PID
// file, spawn cfg.NumWorkers re-exec'd children, and wait for SIGINT/
// SIGTERM to tear everything down (spec.md §4.8 "Acceptor pool").
func runAcceptor(cfg *config.Config, logger *zap.Logger) error {
	pool, err := acceptor.NewPool(cfg, logger)
	if err != nil {
		return errors.Wrap(err, "proxy: binding listener")
	}

	if cfg.PIDFile != "" {
		if err := writePIDFile(cfg.PIDFile); err != nil {
			return err
		}
		defer os.Remove(cfg.PIDFile)
	}

	self, err := os.Executable()
	if err != nil {
		return errors.Wrap(err, "proxy: resolving executable path")
	}
	if err := pool.Spawn(self, os.Args[1:]); err != nil {
		return errors.Wrap(err, "proxy: spawning workers")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Info("proxy: shutting down")
	pool.Shutdown()
	return pool.Wait()
}

// runWorker is a re-exec'd child: reconstruct the listener handed over the
// control socket, wire the handler factory, and run until interrupted.
func runWorker(cfg *config.Config, logger *zap.Logger, hf acceptor.HandlerFactory, csf func(conn *net.TCPConn) acceptor.ConnStep) error {
	w, err := acceptor.RunAsWorker(cfg, logger)
	if err != nil {
		return errors.Wrap(err, "proxy: reconstructing listener")
	}
	w.SetHandlerFactory(hf)
	w.SetConnStepFactory(csf)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	return w.Run(ctx)
}

func writePIDFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644)
}
