package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"stablecoin-mm-bot/internal/config"
	"stablecoin-mm-bot/internal/dashboard"
	"stablecoin-mm-bot/internal/downloader"
	"stablecoin-mm-bot/internal/exchange"
	"stablecoin-mm-bot/internal/ledger"
	"stablecoin-mm-bot/internal/logger"
	"stablecoin-mm-bot/internal/models"
	"stablecoin-mm-bot/internal/reporter"
	"stablecoin-mm-bot/internal/storage"
	"stablecoin-mm-bot/internal/strategy"
)

// 状态表的打印周期（主循环迭代次数）
const statusEvery = 10

// extractSymbolFromPath 从数据文件路径中提取交易对名称
// 例如: "data/USDCUSDT-2025-03-15-2025-06-15.csv" -> "USDCUSDT"
func extractSymbolFromPath(path string) string {
	name := strings.TrimSuffix(path, ".csv")
	parts := strings.Split(name, "/")
	fileName := parts[len(parts)-1]
	symbolParts := strings.Split(fileName, "-")
	if len(symbolParts) > 0 {
		return symbolParts[0]
	}
	return ""
}

func main() {
	configPath := flag.String("config", "config.json", "path to the config file")
	mode := flag.String("mode", "maker", "running mode: maker, grid or backtest")
	strategyName := flag.String("strategy", "maker", "strategy to replay in backtest mode: maker or grid")
	dataPath := flag.String("data", "", "path to historical data file for backtesting")
	symbol := flag.String("symbol", "", "symbol to download for backtesting (e.g., USDCUSDT)")
	startDate := flag.String("start", "", "start date for backtesting (YYYY-MM-DD)")
	endDate := flag.String("end", "", "end date for backtesting (YYYY-MM-DD)")
	flag.Parse()

	// 先用默认配置初始化日志，加载配置后再重建
	logger.InitLogger(models.LogConfig{Level: "info", Output: "console"})

	if err := godotenv.Load(); err != nil {
		logger.S().Info("未找到 .env 文件，将从系统环境变量中读取。")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.S().Fatalf("无法加载配置文件: %v", err)
	}

	logger.InitLogger(cfg.LogConfig)
	defer logger.Sync()

	switch *mode {
	case "maker", "grid":
		runLive(cfg, *mode)
	case "backtest":
		finalDataPath, err := resolveBacktestData(*symbol, *startDate, *endDate, *dataPath)
		if err != nil {
			logger.S().Fatal(err)
		}
		runBacktest(cfg, *strategyName, finalDataPath)
	default:
		logger.S().Fatalf("未知的运行模式: %s。请选择 'maker'、'grid' 或 'backtest'。", *mode)
	}
}

// resolveBacktestData 处理回测数据来源：给定 symbol 和日期范围时先下载，
// 否则要求 -data 指定已有文件。
func resolveBacktestData(symbol, startDate, endDate, dataPath string) (string, error) {
	if symbol != "" && startDate != "" && endDate != "" {
		startTime, err1 := time.Parse("2006-01-02", startDate)
		endTime, err2 := time.Parse("2006-01-02", endDate)
		if err1 != nil || err2 != nil {
			return "", fmt.Errorf("日期格式错误，请使用 YYYY-MM-DD 格式。start: %v, end: %v", err1, err2)
		}

		d := downloader.NewKlineDownloader()
		fileName := fmt.Sprintf("data/%s-%s-%s.csv", symbol, startDate, endDate)
		if err := d.DownloadKlines(symbol, fileName, startTime, endTime); err != nil {
			return "", fmt.Errorf("下载数据失败: %w", err)
		}
		return fileName, nil
	}

	if dataPath == "" {
		return "", fmt.Errorf("回测模式需要通过 -data 或 -symbol/-start/-end 参数指定数据源")
	}
	return dataPath, nil
}

func newStrategy(name string, cfg *models.Config, ex exchange.Exchange, store strategy.Recorder) strategy.Strategy {
	if name == "grid" {
		return strategy.NewGridStrategy(cfg, ex, store)
	}
	return strategy.NewMakerStrategy(cfg, ex, store)
}

// runLive 运行实盘交易
func runLive(cfg *models.Config, mode string) {
	logger.S().Infof("--- 启动实盘模式: %s ---", mode)

	apiKey := os.Getenv("BINANCE_API_KEY")
	secretKey := os.Getenv("BINANCE_SECRET_KEY")
	if apiKey == "" || secretKey == "" {
		logger.S().Fatal("错误：BINANCE_API_KEY 和 BINANCE_SECRET_KEY 环境变量必须被设置。")
	}

	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		logger.S().Fatalf("无法打开数据库 %s: %v", cfg.DBPath, err)
	}
	defer store.Close()

	ex := exchange.NewBinanceExchange(cfg, apiKey, secretKey)
	defer ex.Close()

	if cfg.DashboardEnabled {
		dash := dashboard.New(store, cfg)
		dash.Start(cfg.DashboardAddr)
		defer dash.Stop()
	}

	strat := newStrategy(mode, cfg, ex, store)
	if err := strat.Init(); err != nil {
		logger.S().Fatalf("策略初始化失败: %v", err)
	}

	interval := cfg.LoopInterval
	if mode == "grid" {
		interval = cfg.GridCheckInterval
	}
	ticker := time.NewTicker(time.Duration(interval) * time.Second)
	defer ticker.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var iteration int
	consecutiveErrors := 0
	for {
		select {
		case <-quit:
			logger.S().Info("收到退出信号，正在停止...")
			strat.Shutdown()
			return
		case <-ticker.C:
			iteration++
			if err := strat.Tick(); err != nil {
				if errors.Is(err, ledger.ErrPositionMismatch) {
					logger.S().Errorf("仓位对账失败，停机: %v", err)
					strat.Shutdown()
					return
				}
				consecutiveErrors++
				logger.S().Warnf("本轮迭代失败 (连续 %d 次): %v", consecutiveErrors, err)
				// 连续出错时退避，避免在交易所故障期间刷请求
				if consecutiveErrors >= 3 {
					time.Sleep(time.Duration(consecutiveErrors) * time.Second)
				}
				continue
			}
			consecutiveErrors = 0

			if iteration%statusEvery == 0 {
				printStatus(cfg, ex, store)
			}
		}
	}
}

func printStatus(cfg *models.Config, ex exchange.Exchange, store *storage.Store) {
	snap, err := store.LatestPositionSnapshot()
	if err != nil {
		logger.S().Warnf("读取仓位快照失败: %v", err)
	}
	open, err := ex.FetchOpenOrders()
	if err != nil {
		logger.S().Warnf("读取挂单失败: %v", err)
	}
	reporter.RenderStatus(os.Stdout, cfg, snap, nil, len(open))
}

// runBacktest 把历史K线逐根回放给模拟交易所，再驱动策略迭代。
func runBacktest(cfg *models.Config, strategyName, dataPath string) {
	logger.S().Infof("--- 启动回测模式: %s ---", strategyName)

	if s := extractSymbolFromPath(dataPath); s != "" {
		cfg.Symbol = s
	}

	klines, err := downloader.LoadKlines(dataPath)
	if err != nil {
		logger.S().Fatalf("加载历史数据失败: %v", err)
	}

	store, err := storage.Open(cfg.DBPath + ".backtest")
	if err != nil {
		logger.S().Fatalf("无法打开数据库: %v", err)
	}
	defer store.Close()

	sim := exchange.NewSimExchange(cfg)
	strat := newStrategy(strategyName, cfg, sim, store)

	first := klines[0]
	sim.SetPrice(first.Open, first.High, first.Low, first.Close, first.OpenTime)
	if err := strat.Init(); err != nil {
		logger.S().Fatalf("策略初始化失败: %v", err)
	}

	logger.S().Infof("开始回测，共 %d 根K线...", len(klines))
	equityCurve := make([]float64, 0, len(klines))
	for _, k := range klines {
		sim.SetPrice(k.Open, k.High, k.Low, k.Close, k.OpenTime)
		if err := strat.Tick(); err != nil {
			if errors.Is(err, ledger.ErrPositionMismatch) {
				logger.S().Errorf("仓位对账失败，提前终止回测: %v", err)
				break
			}
			logger.S().Warnf("迭代失败，跳过此根K线: %v", err)
		}
		equityCurve = append(equityCurve, sim.Equity())
	}
	strat.Shutdown()
	logger.S().Info("回测结束。")

	startTime := time.UnixMilli(klines[0].OpenTime)
	endTime := time.UnixMilli(klines[len(klines)-1].OpenTime)
	metrics := reporter.Summarize(sim, cfg, equityCurve, startTime, endTime)
	metrics.Render(os.Stdout, dataPath)
}
