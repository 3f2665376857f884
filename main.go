package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"yegnachat/config"
	"yegnachat/db"
	"yegnachat/images"
	"yegnachat/server"
	"yegnachat/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer database.Close()

	if n, err := database.PurgeExpiredSessions(time.Now()); err != nil {
		logger.Warn("session purge failed", zap.Error(err))
	} else if n > 0 {
		logger.Info("purged expired sessions", zap.Int64("count", n))
	}

	imageStore, err := images.NewStore(cfg.ImageRoot)
	if err != nil {
		logger.Fatal("failed to initialize image store", zap.Error(err))
	}

	srv := server.New(server.Config{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxLineBytes: cfg.MaxLineBytes,
		SessionTTL:   cfg.SessionTTL,
	}, database, imageStore, logger)

	imageServer := web.NewImageServer(database, imageStore, logger)
	go func() {
		if err := imageServer.Run(fmt.Sprintf(":%d", cfg.HTTPPort)); err != nil {
			logger.Fatal("image server error", zap.Error(err))
		}
	}()

	go startControlSocket(srv, cfg.ControlSocket, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("shutting down", zap.String("signal", sig.String()))
		srv.Shutdown()
		imageServer.Shutdown()
		os.Remove(cfg.ControlSocket)
	}()

	if err := srv.Start(); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("server exited")
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// startControlSocket exposes a line-oriented management interface on a unix
// socket: "stats" and "shutdown".
func startControlSocket(srv *server.Server, path string, logger *zap.Logger) {
	os.Remove(path)

	listener, err := net.Listen("unix", path)
	if err != nil {
		logger.Warn("failed to create control socket", zap.Error(err))
		return
	}
	defer listener.Close()
	defer os.Remove(path)

	logger.Info("control socket listening", zap.String("path", path))

	for {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		go handleControlCommand(srv, conn, logger)
	}
}

func handleControlCommand(srv *server.Server, conn net.Conn, logger *zap.Logger) {
	defer conn.Close()

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return
	}

	switch strings.TrimSpace(line) {
	case "stats":
		connections, authenticated := srv.Stats()
		fmt.Fprintf(conn, "OK|connections=%d authenticated=%d\n", connections, authenticated)

	case "shutdown":
		conn.Write([]byte("OK|Shutting down\n"))
		logger.Info("shutdown requested via control socket")
		srv.Shutdown()

	default:
		conn.Write([]byte("ERROR|Unknown command\n"))
	}
}
