package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/net/proxy"
)

const defaultTelegramTimeout = 30 * time.Second

// ErrInvalidTelegramConfig indicates a missing token or channel.
var ErrInvalidTelegramConfig = errors.New("notify: invalid telegram config")

// TelegramConfig configures a TelegramTransport. ProxyAddress enables a SOCKS5 proxy ("host:port").
type TelegramConfig struct {
	Token        string
	Channel      string
	ProxyAddress string
	APIEndpoint  string
	HTTPClient   *http.Client
	Timeout      time.Duration
	Logger       *zap.Logger
}

// TelegramTransport posts Markdown messages to a channel through the Bot API.
type TelegramTransport struct {
	bot       *tgbotapi.BotAPI
	channel   string
	channelID int64
	logger    *zap.Logger
}

// NewTelegramTransport authenticates the bot and returns a transport bound to the channel.
func NewTelegramTransport(cfg TelegramConfig) (*TelegramTransport, error) {
	token := strings.TrimSpace(cfg.Token)
	channel := strings.TrimSpace(cfg.Channel)
	if token == "" || channel == "" {
		return nil, fmt.Errorf("%w: token and channel are required", ErrInvalidTelegramConfig)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		var err error
		httpClient, err = newTelegramHTTPClient(cfg.ProxyAddress, cfg.Timeout)
		if err != nil {
			return nil, err
		}
	}
	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}

	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, httpClient)
	if err != nil {
		return nil, fmt.Errorf("notify: telegram bot: %w", err)
	}
	logger.Info("telegram bot authorized", zap.String("bot", bot.Self.UserName), zap.Bool("proxy", cfg.ProxyAddress != ""))

	transport := &TelegramTransport{bot: bot, channel: channel, logger: logger}
	if id, err := strconv.ParseInt(channel, 10, 64); err == nil {
		transport.channelID = id
	}
	return transport, nil
}

// Send posts the message text with Markdown formatting.
func (t *TelegramTransport) Send(ctx context.Context, message Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var config tgbotapi.MessageConfig
	if t.channelID != 0 {
		config = tgbotapi.NewMessage(t.channelID, message.Text)
	} else {
		config = tgbotapi.NewMessageToChannel(t.channel, message.Text)
	}
	config.ParseMode = tgbotapi.ModeMarkdown

	if _, err := t.bot.Send(config); err != nil {
		return fmt.Errorf("notify: telegram send: %w", err)
	}
	return nil
}

func newTelegramHTTPClient(proxyAddress string, timeout time.Duration) (*http.Client, error) {
	if timeout <= 0 {
		timeout = defaultTelegramTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxyAddress != "" {
		dialer, err := proxy.SOCKS5("tcp", proxyAddress, nil, &net.Dialer{Timeout: timeout})
		if err != nil {
			return nil, fmt.Errorf("notify: socks5 proxy %s: %w", proxyAddress, err)
		}
		contextDialer, ok := dialer.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("notify: socks5 proxy %s: dialer does not support contexts", proxyAddress)
		}
		transport.Proxy = nil
		transport.DialContext = contextDialer.DialContext
	}
	return &http.Client{Timeout: timeout, Transport: transport}, nil
}
