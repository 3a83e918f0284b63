package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"shortener.local/gee"
	"shortener.local/gee/middleware"
	"shortener.local/internal/app/shortlink"
	slcache "shortener.local/internal/app/shortlink/cache"
	"shortener.local/internal/app/shortlink/events"
	shortlinkhttpapi "shortener.local/internal/app/shortlink/httpapi"
	"shortener.local/internal/app/shortlink/memstore"
	"shortener.local/internal/app/shortlink/repo"
	"shortener.local/internal/app/shortlink/sqlitestore"
	platformcache "shortener.local/internal/platform/cache"
	"shortener.local/internal/platform/config"
	"shortener.local/internal/platform/db"
	"shortener.local/internal/platform/httpmiddleware"
	"shortener.local/internal/platform/httpserver"
	"shortener.local/internal/platform/metrics"
	"shortener.local/internal/platform/migrate"
	"shortener.local/internal/platform/trace"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// codeIterator 由 repo、sqlitestore 和 memstore 实现，布隆过滤器预热用。
type codeIterator interface {
	shortlink.Store
	ForEachCode(ctx context.Context, fn func(code string) error) error
}

func main() {
	cfg := config.Load()

	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	var h slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if cfg.LogFormat == "text" {
		h = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(h).With("service", cfg.ServiceName))

	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	//存储
	var (
		store codeIterator
		ping  func(ctx context.Context) error // nil 表示内存存储，总是就绪
	)
	switch cfg.StoreDriver {
	case "postgres":
		dbCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		pool, err := db.New(dbCtx, cfg.DBDSN)
		if err == nil {
			err = pool.Ping(dbCtx)
		}
		cancel()
		if err != nil {
			log.Fatal(err)
		}
		defer pool.Close()
		slog.Info("数据库连接成功")

		if cfg.AutoMigrate {
			res, err := migrate.Up(context.Background(), pool, migrate.Options{Dir: cfg.MigrationsDir})
			if err != nil {
				log.Fatal(err)
			}
			slog.Info("migrations done", "dir", res.Dir, "applied", len(res.AppliedFiles), "skipped", len(res.SkippedFiles))
		}
		ping = pool.Ping
		store = repo.NewShortlinksRepo(pool)
	case "sqlite":
		lite, err := sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			log.Fatal(err)
		}
		defer lite.Close()
		slog.Info("sqlite opened", "path", cfg.SQLitePath)
		ping = lite.Ping
		store = lite
	case "memory":
		slog.Warn("using in-memory store, data is lost on restart", "STORE_DRIVER", cfg.StoreDriver)
		store = memstore.New()
	}

	var svcStore shortlink.Store = store
	if cfg.CacheEnabled {
		cached, closeCache := buildCache(cfg, store)
		defer closeCache()
		svcStore = cached
	} else {
		slog.Warn("Cache disabled by config", "CACHE_ENABLED", false)
	}

	gen, err := shortlink.NewGenerator(cfg.CodeGenerator, cfg.CodeLength)
	if err != nil {
		log.Fatal(err)
	}
	svc := shortlink.NewService(svcStore, gen)

	//事件投递（根据配置选择 Kafka 或日志）
	var sink events.Sink = events.LogSink{}
	if cfg.KafkaEnabled {
		slog.Info("使用 Kafka 投递短链事件", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
		kafkaSink := events.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer func() {
			if err := kafkaSink.Close(); err != nil {
				slog.Error("kafka writer close", "err", err)
			}
		}()
		sink = kafkaSink
	}
	batcher := events.NewBatcher(sink, 10000)
	// Run 用独立的 context：优雅关闭期间仍在处理的请求产生的事件也要刷出去
	go batcher.Run(context.Background())

	metrics.Init()

	if cfg.TracingEnabled {
		shutdown, err := trace.Init(cfg.OtlpGrpcEndpoint, cfg.OtlpServiceName, version)
		if err != nil {
			slog.Error("Trace init failed", "err", err)
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					slog.Error("trace shutdown", "err", err)
				}
			}()
		}
	} else {
		slog.Warn("Tracing disabled by config", "TRACING_ENABLED", false)
	}

	// 对外业务
	r := gee.Default()
	r.Use(middleware.ReqID(), middleware.AccessLog(), httpmiddleware.Metrics("/healthz"), httpmiddleware.TraceName())

	shortlinkhttpapi.RegisterRoutes(r, svc, shortlinkhttpapi.Options{
		BaseURL:        cfg.BaseURL,
		RequireHTTPURL: cfg.RequireHTTPURL,
		Events:         batcher,
	})

	r.GET("/healthz", func(ctx *gee.Context) {
		ctx.String(http.StatusOK, "ok")
	})

	publicHandler := http.Handler(r)
	if cfg.TracingEnabled {
		publicHandler = otelhttp.NewHandler(r, "http")
	}
	publicSrv := httpserver.New(cfg, publicHandler)

	// 仅本机/内网
	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", promhttp.Handler())
	// 存储连接状态检测
	adminMux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if ping == nil {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("memory store ready"))
			return
		}
		dbCtx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := ping(dbCtx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("DB Ping Err"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("DB ready"))
	})

	adminMux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"service_name": cfg.ServiceName,
			"version":      version,
			"commit":       commit,
			"build_time":   buildTime,
			"go_version":   runtime.Version(),
			"store":        cfg.StoreDriver,
			"generator":    cfg.CodeGenerator,
		})
	})

	if cfg.PprofEnabled {
		adminMux.HandleFunc("/debug/pprof/", pprof.Index)
		adminMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		adminMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		adminMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		adminMux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	adminSrv := httpserver.NewAdmin(cfg, adminMux)

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errch := make(chan error, 2)
	go func() {
		errch <- httpserver.Run(stopCtx, publicSrv, cfg.ShutdownTimeout)
	}()
	go func() {
		errch <- httpserver.Run(stopCtx, adminSrv, cfg.ShutdownTimeout)
	}()

	err = <-errch
	stop()
	select {
	case err2 := <-errch:
		if err == nil {
			err = err2
		}
	case <-time.After(cfg.ShutdownTimeout + time.Second):
	}
	// 两个 server 都停了才关 batcher，保证不会再有 Publish
	batcher.Close()
	if err != nil {
		slog.Error("server exited", "err", err)
		os.Exit(1)
	}
	slog.Info("bye")
}

// buildCache 组装 本地 ristretto -> Redis -> 存储 的读路径，Redis 连不上时只用本地缓存。
func buildCache(cfg config.Config, store codeIterator) (*slcache.CachedStore, func()) {
	local, err := slcache.NewLocalCache(cfg.LocalCacheItems, cfg.LocalCacheBytes)
	if err != nil {
		log.Fatal(err)
	}

	var remote *slcache.RecordCache
	redisClient, err := platformcache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		slog.Warn("redis unavailable, running with local cache only", "addr", cfg.RedisAddr, "err", err)
	} else {
		remote = slcache.NewRecordCache(redisClient)
	}

	var bloom *slcache.BloomFilter
	if cfg.BloomEnabled {
		bloom = slcache.NewBloomFilter(cfg.BloomExpectedItems, cfg.BloomFPRate)
		// 预热在后台跑，完成前过滤器不参与判断
		go func() {
			start := time.Now()
			if err := bloom.Warm(context.Background(), store.ForEachCode); err != nil {
				slog.Error("bloom warm failed, filter stays disabled", "err", err)
				return
			}
			slog.Info("bloom warmed", "codes", bloom.Count(), "took_ms", time.Since(start).Milliseconds())
		}()
	}

	cached := slcache.NewCachedStore(store, local, remote, bloom)
	return cached, func() {
		cached.Close()
		if redisClient != nil {
			redisClient.Close()
		}
	}
}
