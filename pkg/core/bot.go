package core

// BotMode selects what happens when a bot's strategy emits a signal.
type BotMode string

const (
	// BotModeWatch produces notifications only, never orders.
	BotModeWatch BotMode = "watch"
	// BotModeTrade dispatches signals to order execution.
	BotModeTrade BotMode = "trade"
)

// BotStatus is the lifecycle state of a configured bot.
type BotStatus string

const (
	BotStatusStopped BotStatus = "stopped"
	BotStatusRunning BotStatus = "running"
)

// Bot is one configured live evaluation target. Bots are owned by
// profile storage; the scheduler only holds references.
type Bot struct {
	ID           int64
	ProfileID    int64
	Exchange     string
	StrategyName string
	Pair         string
	Period       Period
	Capital      float64
	Mode         BotMode
	Status       BotStatus
	Options      StrategyOptions
}
