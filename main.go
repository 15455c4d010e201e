package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KNICEX/trade-alert/internal/service/monitor"
	"github.com/KNICEX/trade-alert/internal/service/policy"
	"github.com/KNICEX/trade-alert/ioc"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func initViper() {
	// --config=./config/xxx.yaml
	file := pflag.String("config", "./config/config.dev.yaml", "specify config file")
	pflag.Parse()

	// 密钥放在 .env 或环境变量里, 不进配置文件
	_ = godotenv.Load()

	viper.SetConfigFile(*file)
	err := viper.ReadInConfig()
	if err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	envs := map[string]string{
		"notify.telegram.token":   "TELEGRAM_TOKEN",
		"notify.telegram.chat_id": "CHAT_ID",
		"cex.binance.api_key":     "BINANCE_API_KEY",
		"cex.binance.api_secret":  "BINANCE_API_SECRET",
		"redis.password":          "REDIS_PASSWORD",
	}
	for key, env := range envs {
		if err := viper.BindEnv(key, env); err != nil {
			panic(err)
		}
	}
}

func main() {
	initViper()
	ioc.InitLogger()

	bian := ioc.InitBinanceFuturesCli()
	universe := ioc.InitUniverse(bian)
	refs := monitor.NewReferenceTable()

	pol, err := ioc.InitPolicy(universe, refs)
	if err != nil {
		var cfgErr *policy.ConfigError
		if errors.As(err, &cfgErr) {
			slog.Error("invalid alert config", "field", cfgErr.Field, "error", cfgErr.Err)
			os.Exit(2)
		}
		slog.Error("failed to init policy", "error", err)
		os.Exit(1)
	}

	db := ioc.InitDB()
	dd := ioc.InitDedup(db, ioc.InitRedis())
	dispatcher := ioc.InitDispatcher(ioc.InitSender())
	sup := ioc.InitSupervisor(ioc.InitConnectors(), universe, pol, refs, dd, dispatcher)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sup.Start(ctx); err != nil {
		panic(err)
	}

	srv := ioc.InitHealthServer(sup.HealthHandler())
	if srv != nil {
		go func() {
			slog.Info("health server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("health server stopped", "error", err)
			}
		}()
	}

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if srv != nil {
		_ = srv.Shutdown(shutdownCtx)
	}
	if err := sup.Stop(shutdownCtx); err != nil {
		slog.Error("failed to stop supervisor", "error", err)
	}
}
