// Package main は翻訳エンジンの HTTP サーバーのエントリーポイントです。
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yourusername/pdf2zh-engine/internal/config"
	"github.com/yourusername/pdf2zh-engine/internal/jobs"
	"github.com/yourusername/pdf2zh-engine/internal/logging"
	"github.com/yourusername/pdf2zh-engine/internal/pdf"
)

const (
	serviceName    = "pdf2zh-engine"
	serviceVersion = "0.1.0"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := config.NewViper()
	cmd := &cobra.Command{
		Use:           serviceName,
		Short:         "PDF翻訳ジョブを受け付けて進捗をSSEで配信するローカルサーバー",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return run(cmd.Context(), cfg, os.Stdout)
		},
	}
	cmd.Flags().Int("port", 0, "待ち受けポート（0 で空きポートを自動選択）")
	cmd.Flags().String("host", "127.0.0.1", "待ち受けホスト")
	bindFlag(v, "PORT", cmd, "port")
	bindFlag(v, "HOST", cmd, "host")
	return cmd
}

func bindFlag(v *viper.Viper, key string, cmd *cobra.Command, name string) {
	if err := v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
		panic(err)
	}
}

// readyMessage は待ち受け開始を親プロセスへ知らせる1行です。
type readyMessage struct {
	Type string `json:"type"`
	Port int    `json:"port"`
}

func announceReady(w io.Writer, port int) error {
	line, err := json.Marshal(readyMessage{Type: "ready", Port: port})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", line)
	return err
}

func run(ctx context.Context, cfg *config.Config, stdout io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := logging.New(cfg)

	// 標準出力は起動通知専用なので Gin の出力も標準エラーへ向ける
	gin.DefaultWriter = os.Stderr
	gin.DefaultErrorWriter = os.Stderr
	gin.SetMode(cfg.GinMode)

	manager, err := setupJobs(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to setup jobs: %w", err)
	}
	manager.StartJanitor()

	router := newRouter(cfg, manager, logger)

	listener, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Addr(), err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	if err := announceReady(stdout, port); err != nil {
		listener.Close()
		return fmt.Errorf("failed to announce readiness: %w", err)
	}

	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	srv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(listener)
	}()
	logger.WithFields(logrus.Fields{"addr": listener.Addr().String(), "mode": cfg.GinMode}).Info("server started")

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	// SSE の読み手を解放してからシャットダウンする
	cancelBase()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http server shutdown incomplete")
	}
	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("running jobs were canceled")
	}
	logger.Info("server stopped")
	return nil
}

func newRouter(cfg *config.Config, manager *jobs.Manager, logger *logrus.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), logging.GinMiddleware(logger))
	router.Use(cors.New(corsConfig(cfg)))
	setupRoutes(router, cfg, manager)
	return router
}

func corsConfig(cfg *config.Config) cors.Config {
	corsCfg := cors.DefaultConfig()
	origins := make([]string, 0)
	for _, o := range strings.Split(cfg.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = origins
		corsCfg.AllowCredentials = true
	}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	return corsCfg
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": serviceName,
		"version": serviceVersion,
	})
}

func setupRoutes(router *gin.Engine, cfg *config.Config, manager *jobs.Manager) {
	router.GET("/health", handleHealth)

	router.POST("/translate", pdf.TranslateHandler(manager, pdf.HandlerOptions{
		IsSupportedService: cfg.IsSupportedService,
	}))
	router.GET("/events", jobEventsHandler(manager))
	router.GET("/result", jobResultHandler(manager))
	router.GET("/status", jobStatusHandler(manager))
}
