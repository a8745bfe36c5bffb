package alert

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"VolPulse/internal/domain/models"
	"VolPulse/internal/metrics"
	"VolPulse/pkg/logger"
)

const (
	defaultTelegramAPI = "https://api.telegram.org"
	defaultPushoverURL = "https://api.pushover.net/1/messages.json"
)

// Config selects and parameterizes the notification channels. Empty
// credentials disable a channel; with no channel configured the payload
// falls back to local text emission.
type Config struct {
	TelegramToken  string
	TelegramChatID string
	DiscordWebhook string
	PushUserKey    string
	PushAPIToken   string
	PushRepeat     int
	PushInterval   time.Duration
	PushTitle      string
	PushDebug      bool
}

// Dispatcher fans one alert out to every configured channel. Channel
// failures are logged and swallowed; alerting is best effort and never
// fails the monitor cycle.
type Dispatcher struct {
	cfg    Config
	client *resty.Client
	log    *logger.Logger

	telegramAPI string
	pushoverURL string
	sleep       func(time.Duration)
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg Config, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.PushRepeat < 1 {
		cfg.PushRepeat = 1
	}
	return &Dispatcher{
		cfg:         cfg,
		client:      resty.New().SetTimeout(10 * time.Second),
		log:         log,
		telegramAPI: defaultTelegramAPI,
		pushoverURL: defaultPushoverURL,
		sleep:       time.Sleep,
	}
}

// Send delivers the message on every configured channel. kind labels the
// alert for metrics ("entry", "slow_bleed", "test").
func (d *Dispatcher) Send(kind string, msg models.AlertMessage) {
	payload := msg.Title + "\n" + msg.Body
	sent := false

	if d.cfg.TelegramToken != "" && d.cfg.TelegramChatID != "" {
		if d.sendTelegram(payload) {
			metrics.AlertsSent.WithLabelValues(kind, "telegram").Inc()
			sent = true
		}
	}
	if d.cfg.DiscordWebhook != "" {
		if d.sendDiscord(payload) {
			metrics.AlertsSent.WithLabelValues(kind, "discord").Inc()
			sent = true
		}
	}
	if d.cfg.PushUserKey != "" && d.cfg.PushAPIToken != "" {
		if d.sendPushover(msg) {
			metrics.AlertsSent.WithLabelValues(kind, "pushover").Inc()
			sent = true
		}
	}

	if !sent {
		fmt.Println(payload)
		metrics.AlertsSent.WithLabelValues(kind, "local").Inc()
	}
}

func (d *Dispatcher) sendTelegram(text string) bool {
	url := fmt.Sprintf("%s/bot%s/sendMessage", d.telegramAPI, d.cfg.TelegramToken)
	resp, err := d.client.R().
		SetFormData(map[string]string{
			"chat_id": d.cfg.TelegramChatID,
			"text":    text,
		}).
		Post(url)
	if err != nil {
		d.log.Warn("telegram send failed", logger.Error(err))
		return false
	}
	return resp.StatusCode() == 200
}

func (d *Dispatcher) sendDiscord(text string) bool {
	resp, err := d.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"content": text}).
		Post(d.cfg.DiscordWebhook)
	if err != nil {
		d.log.Warn("discord send failed", logger.Error(err))
		return false
	}
	return resp.StatusCode() >= 200 && resp.StatusCode() < 300
}

func (d *Dispatcher) sendPushover(msg models.AlertMessage) bool {
	ok := true
	for i := 0; i < d.cfg.PushRepeat; i++ {
		title := msg.Title
		if d.cfg.PushRepeat > 1 {
			title = fmt.Sprintf("%s %s (%d)", d.cfg.PushTitle, msg.Title, i+1)
		}
		resp, err := d.client.R().
			SetFormData(map[string]string{
				"token":    d.cfg.PushAPIToken,
				"user":     d.cfg.PushUserKey,
				"title":    title,
				"message":  msg.Body,
				"sound":    "vibrate",
				"priority": "1",
			}).
			Post(d.pushoverURL)
		if err != nil {
			d.log.Warn("pushover send failed", logger.Error(err))
			return false
		}
		if d.cfg.PushDebug {
			d.log.Info("pushover response",
				logger.Int("status", resp.StatusCode()),
				logger.String("body", resp.String()),
			)
		}
		ok = ok && resp.StatusCode() >= 200 && resp.StatusCode() < 300
		if i < d.cfg.PushRepeat-1 {
			d.sleep(d.cfg.PushInterval)
		}
	}
	return ok
}
