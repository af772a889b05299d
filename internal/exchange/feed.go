package exchange

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"stablecoin-mm-bot/internal/logger"
	"stablecoin-mm-bot/internal/models"
)

const (
	mainnetStreamURL = "wss://stream.binance.com:9443/ws/%s@bookTicker"
	testnetStreamURL = "wss://stream.testnet.binance.vision/ws/%s@bookTicker"

	// Top-of-book older than this falls back to REST.
	feedStaleAfter = 3 * time.Second

	reconnectDelay = 5 * time.Second
)

type bookTickerEvent struct {
	BidPrice string `json:"b"`
	BidQty   string `json:"B"`
	AskPrice string `json:"a"`
	AskQty   string `json:"A"`
}

// BookTickerFeed maintains a live top-of-book via the book-ticker
// websocket stream. It only caches the latest update; consumers read
// through Top and never block on the stream.
type BookTickerFeed struct {
	url string

	mu        sync.RWMutex
	bid       models.PriceLevel
	ask       models.PriceLevel
	updatedAt time.Time

	done chan struct{}
	once sync.Once
}

func NewBookTickerFeed(symbol string, testnet bool) *BookTickerFeed {
	tmpl := mainnetStreamURL
	if testnet {
		tmpl = testnetStreamURL
	}
	return &BookTickerFeed{
		url:  fmt.Sprintf(tmpl, strings.ToLower(symbol)),
		done: make(chan struct{}),
	}
}

// Start launches the reader goroutine. Reconnects with a fixed delay
// until Close is called.
func (f *BookTickerFeed) Start() {
	go func() {
		for {
			select {
			case <-f.done:
				return
			default:
			}
			if err := f.run(); err != nil {
				logger.S().Warnf("book ticker stream: %v, reconnecting in %s", err, reconnectDelay)
			}
			select {
			case <-f.done:
				return
			case <-time.After(reconnectDelay):
			}
		}
	}()
}

func (f *BookTickerFeed) run() error {
	conn, _, err := websocket.DefaultDialer.Dial(f.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", f.url, err)
	}
	defer conn.Close()
	logger.S().Infof("book ticker stream connected: %s", f.url)

	for {
		select {
		case <-f.done:
			return nil
		default:
		}

		conn.SetReadDeadline(time.Now().Add(feedStaleAfter * 10))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		var ev bookTickerEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			logger.S().Debugf("book ticker: skipping malformed message: %v", err)
			continue
		}

		bidPrice, _ := strconv.ParseFloat(ev.BidPrice, 64)
		bidQty, _ := strconv.ParseFloat(ev.BidQty, 64)
		askPrice, _ := strconv.ParseFloat(ev.AskPrice, 64)
		askQty, _ := strconv.ParseFloat(ev.AskQty, 64)
		if bidPrice <= 0 || askPrice <= 0 {
			continue
		}

		f.mu.Lock()
		f.bid = models.PriceLevel{Price: bidPrice, Size: bidQty}
		f.ask = models.PriceLevel{Price: askPrice, Size: askQty}
		f.updatedAt = time.Now()
		f.mu.Unlock()
	}
}

// Top returns the cached top-of-book. ok is false when no update has
// arrived yet or the cache has gone stale.
func (f *BookTickerFeed) Top() (bid, ask models.PriceLevel, ok bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.updatedAt.IsZero() || time.Since(f.updatedAt) > feedStaleAfter {
		return models.PriceLevel{}, models.PriceLevel{}, false
	}
	return f.bid, f.ask, true
}

func (f *BookTickerFeed) Close() {
	f.once.Do(func() { close(f.done) })
}
