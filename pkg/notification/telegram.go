package notification

import (
	"fmt"
	"time"

	"github.com/raykavin/quantcore/pkg/logger"
	tb "gopkg.in/tucnak/telebot.v2"
)

// Telegram pushes signal and error notifications to a fixed set of
// authorized chat users. Inbound messages from anyone else are dropped
// by the poller middleware.
type Telegram struct {
	client *tb.Bot
	users  []int
	log    logger.Logger
}

// authorizedFilter admits updates only from the listed chat users.
// Updates without an identifiable sender are dropped.
func authorizedFilter(users []int, log logger.Logger) func(*tb.Update) bool {
	return func(u *tb.Update) bool {
		if u.Message == nil || u.Message.Sender == nil {
			return false
		}
		for _, id := range users {
			if u.Message.Sender.ID == int64(id) {
				return true
			}
		}
		log.Warnf("telegram message from unauthorized user %d dropped", u.Message.Sender.ID)
		return false
	}
}

// NewTelegram connects a notifier bot. users lists the chat IDs that
// receive messages and whose updates pass the auth filter.
func NewTelegram(token string, users []int, log logger.Logger) (*Telegram, error) {
	poller := &tb.LongPoller{Timeout: 10 * time.Second}
	authorized := tb.NewMiddlewarePoller(poller, authorizedFilter(users, log))

	client, err := tb.NewBot(tb.Settings{
		Token:  token,
		Poller: authorized,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram bot setup failed: %w", err)
	}

	t := &Telegram{client: client, users: users, log: log}

	client.Handle("/status", func(m *tb.Message) {
		t.send(m.Sender, "bot is up")
	})

	return t, nil
}

// Start begins polling for inbound commands. Blocks.
func (t *Telegram) Start() {
	t.client.Start()
}

// Notify implements core.Notifier.
func (t *Telegram) Notify(text string) {
	for _, id := range t.users {
		t.send(&tb.User{ID: int64(id)}, text)
	}
}

// OnError implements core.Notifier.
func (t *Telegram) OnError(err error) {
	t.Notify(fmt.Sprintf("🛑 ERROR\n%s", err))
}

func (t *Telegram) send(to *tb.User, text string) {
	if _, err := t.client.Send(to, text); err != nil {
		t.log.WithError(err).Error("telegram send failed")
	}
}
