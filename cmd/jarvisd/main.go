package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/LUKASS111/Jarvis-V0.19-sub002/pkg/config"
	"github.com/LUKASS111/Jarvis-V0.19-sub002/pkg/conflict"
	"github.com/LUKASS111/Jarvis-V0.19-sub002/pkg/manager"
	"github.com/LUKASS111/Jarvis-V0.19-sub002/pkg/store"
	"github.com/LUKASS111/Jarvis-V0.19-sub002/pkg/sync"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径 (yaml)")
	nodeID := flag.String("node", "", "节点 ID (覆盖配置文件)")
	metricsAddr := flag.String("metrics", "", "Prometheus 指标监听地址 (可选, 例如 :9090)")
	quiet := flag.Bool("quiet", false, "关闭运行日志")
	flag.Parse()

	if *quiet {
		log.SetOutput(io.Discard)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Read(*configPath)
		if err != nil {
			log.Fatalf("读取配置失败: %v", err)
		}
	}
	if *nodeID != "" {
		cfg.Node.ID = *nodeID
	}
	if cfg.Node.ID == "" {
		log.Fatal("必须通过 -node 或配置文件指定节点 ID")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("配置校验失败: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStore(cfg)
	if err != nil {
		log.Fatalf("打开存储失败: %v", err)
	}
	defer st.Close()

	mgr, err := manager.New(cfg.Node.ID, st)
	if err != nil {
		log.Fatalf("初始化管理器失败: %v", err)
	}
	defer mgr.Close()

	resolver := conflict.NewResolver(
		conflict.WithAutoResolve(cfg.Conflict.AutoResolve),
		conflict.WithHistory(cfg.Conflict.HistorySize, cfg.Conflict.HistoryTTL),
	)

	syncCfg := sync.DefaultConfig()
	syncCfg.ListenAddr = net.JoinHostPort(cfg.Node.BindAddress, strconv.Itoa(cfg.Node.Port))
	syncCfg.SyncInterval = cfg.Sync.Interval
	syncCfg.HeartbeatInterval = cfg.Sync.HeartbeatInterval
	syncCfg.StaleThreshold = cfg.Sync.StaleThreshold
	syncCfg.EvictThreshold = cfg.Sync.EvictThreshold
	syncCfg.HighMultiplier = cfg.Sync.HighMultiplier
	syncCfg.LowMultiplier = cfg.Sync.LowMultiplier
	syncCfg.DiscoveryPort = cfg.Discovery.Port
	syncCfg.DiscoveryInterval = cfg.Discovery.Interval

	reg := prometheus.NewRegistry()
	syncer := sync.NewSynchronizer(cfg.Node.ID, mgr, syncCfg, sync.WithRegisterer(reg))
	if cfg.Discovery.Enabled {
		syncer.EnableDiscovery(cfg.Node.Port)
	}
	for _, p := range cfg.Peers {
		syncer.AddPeer(p.ID, p.Addr)
	}

	if err := syncer.Start(ctx); err != nil {
		log.Fatalf("启动同步器失败: %v", err)
	}

	if *metricsAddr != "" {
		go serveAdmin(*metricsAddr, reg, mgr, resolver)
	}

	log.Printf("✅ jarvisd 已启动: 节点=%s, 实例数=%d", cfg.Node.ID, len(mgr.Names()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("🛑 收到信号 %v, 开始关停", sig)

	cancel()
	shutdownDone := make(chan struct{})
	go func() {
		syncer.Stop()
		close(shutdownDone)
	}()
	select {
	case <-shutdownDone:
	case <-time.After(10 * time.Second):
		log.Println("⚠️ 关停超时, 强制退出")
	}
}

func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.Storage.InMemory {
		return store.NewMemoryStore(), nil
	}
	if err := os.MkdirAll(cfg.Storage.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	return store.NewBadgerStore(cfg.Storage.Dir)
}

func serveAdmin(addr string, reg *prometheus.Registry, mgr *manager.Manager, resolver *conflict.Resolver) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	adminHandlers(mux, mgr, resolver)
	log.Printf("[Admin] ✅ 管理服务已启动: %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("[Admin] 服务退出: %v", err)
	}
}
