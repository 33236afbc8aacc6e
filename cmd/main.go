package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"coinpaprika-price-alerts/config"
	"coinpaprika-price-alerts/internal/alert"
	"coinpaprika-price-alerts/internal/database"
	"coinpaprika-price-alerts/internal/notify"
	"coinpaprika-price-alerts/internal/price"
	"coinpaprika-price-alerts/internal/telegram"
	"coinpaprika-price-alerts/lib/translation"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

func init() {
	config.InitConfig()
	setupLogging()
}

func main() {
	translation.Configure("locales", config.GetString("lang"))

	db, err := database.InitDB(config.GetString("database_path"))
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	alerts := database.NewAlertStore(db)
	metricStore := database.NewMetricStore(db)

	metrics := alert.NewMetrics(prometheus.DefaultRegisterer)
	metrics.Restore(metricStore)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := price.NewCoinPaprikaFeed(config.GetString("api_pro_key"), config.GetDuration("price_max_age"))
	feed.Start(ctx, config.GetDuration("price_refresh_interval"))

	channels, bot := buildChannels()

	monitor := alert.NewMonitor(alerts, feed, notify.Combine(channels...), metrics, alert.Config{
		Interval:      config.TickInterval(),
		NoiseEpsilon:  config.GetFloat64("noise_epsilon"),
		DailyCooldown: config.GetDuration("daily_cooldown"),
		NotifyTimeout: config.GetDuration("notify_timeout"),
	})
	monitor.Start()

	alert.NewSweeper(alerts, config.GetDuration("expiry_sweep_interval"), metrics).Start(ctx)

	if bot != nil {
		updates, err := bot.GetUpdatesChannel()
		if err != nil {
			log.Errorf("Failed to get updates channel: %v", err)
		} else {
			go handleUpdates(ctx, bot, updates, alerts, monitor)
		}
	}

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			saveMetrics(metrics, metricStore)
		}
	}()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		monitor.Stop()
		cancel()
		saveMetrics(metrics, metricStore)
		db.Close()
		log.Info("Metrics saved, shutting down...")
		os.Exit(0)
	}()

	if err := launchMetricsAndHealthServer(config.GetInt("metrics_port")); err != nil {
		log.Fatalf("Failed to start metrics and health server: %v", err)
	}
}

func setupLogging() {
	log.SetLevel(log.ErrorLevel)
	if lvl := config.GetString("log_level"); lvl != "" {
		level, err := log.ParseLevel(lvl)
		if err != nil {
			log.Errorf("Unknown log level %q: %v", lvl, err)
		} else {
			log.SetLevel(level)
		}
	}
	if config.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	}
	log.Debug("Starting price alert monitor...")
}

// buildChannels returns every configured notification channel, plus the
// telegram bot when one is set up so it can also answer commands.
func buildChannels() ([]notify.Channel, *telegram.Bot) {
	var channels []notify.Channel
	var bot *telegram.Bot

	if token := config.GetString("telegram_bot_token"); token != "" {
		b, err := telegram.NewBot(telegram.BotConfig{
			Token:          token,
			ChatID:         config.GetInt64("telegram_chat_id"),
			Debug:          config.GetBool("debug"),
			UpdatesTimeout: 60,
		})
		if err != nil {
			log.Errorf("Failed to create bot: %v", err)
		} else {
			bot = b
			channels = append(channels, b)
		}
	}

	if url := config.GetString("slack_webhook_url"); url != "" {
		channels = append(channels, notify.NewSlack(url))
	}

	if host := config.GetString("smtp_host"); host != "" {
		channels = append(channels, notify.NewEmail(notify.EmailConfig{
			Host:     host,
			Port:     config.GetInt("smtp_port"),
			User:     config.GetString("smtp_user"),
			Password: config.GetString("smtp_password"),
			From:     config.GetString("smtp_from"),
			To:       splitList(config.GetString("smtp_to")),
		}))
	}

	if len(channels) == 0 {
		log.Warn("⚠️ No notification channel configured, triggered alerts are only logged")
	}
	return channels, bot
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func handleUpdates(ctx context.Context, bot *telegram.Bot, updates tgbotapi.UpdatesChannel, lister telegram.AlertLister, checker telegram.Checker) {
	for update := range updates {
		if update.Message == nil || !update.Message.IsCommand() {
			continue
		}
		handleCommand(ctx, bot, update, lister, checker)
	}
}

func handleCommand(ctx context.Context, bot *telegram.Bot, update tgbotapi.Update, lister telegram.AlertLister, checker telegram.Checker) {
	defer func() {
		if r := recover(); r != nil {
			stackBuf := make([]byte, 1024)
			stackSize := runtime.Stack(stackBuf, false)
			stackTrace := bytes.TrimRight(stackBuf[:stackSize], "\x00")
			log.Errorf("Recovered from panic: %v\nStack trace: %s", r, stackTrace)
		}
	}()

	text := bot.HandleUpdate(ctx, update, lister, checker)
	if text == "" {
		return
	}
	err := bot.SendMessage(telegram.Message{
		ChatID:    update.Message.Chat.ID,
		Text:      text,
		MessageID: update.Message.MessageID,
	})
	if err != nil {
		log.Errorf("Failed to send message: %v", err)
	}
}

func saveMetrics(metrics *alert.Metrics, store alert.CounterStore) {
	if err := metrics.Persist(store); err != nil {
		log.Errorf("Failed to save metrics: %v", err)
		return
	}
	log.Debug("Metrics saved to database.")
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func launchMetricsAndHealthServer(port int) error {
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/health", healthCheckHandler)

	log.Infof("Launching metrics and health endpoint on :%d", port)
	return http.ListenAndServe(fmt.Sprintf(":%d", port), http.DefaultServeMux)
}
