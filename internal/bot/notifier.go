// Package bot delivers achievement unlock messages through Telegram.
// User ids of the ledger are Telegram user ids, so a private chat with the
// user has the same id.
package bot

import (
	"context"
	"fmt"
	"html"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/reputation-ledger/internal/features/achievement"
)

// Sender is the one telego call the notifier makes.
type Sender interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

var rarityIcons = map[achievement.Rarity]string{
	achievement.RarityCommon:    "⚪",
	achievement.RarityUncommon:  "🟢",
	achievement.RarityRare:      "🔵",
	achievement.RarityEpic:      "🟣",
	achievement.RarityLegendary: "🏆",
}

type Notifier struct {
	sender Sender
}

// NewNotifier connects to the Bot API with token. An empty token disables
// notifications and returns nil.
func NewNotifier(token string) (*Notifier, error) {
	if token == "" {
		return nil, nil
	}
	b, err := telego.NewBot(token, telego.WithDiscardLogger())
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	log.Info("Telegram notifier enabled")
	return &Notifier{sender: b}, nil
}

func NewNotifierWithSender(sender Sender) *Notifier {
	return &Notifier{sender: sender}
}

func (n *Notifier) NotifyUnlocked(ctx context.Context, userID int64, def achievement.Definition, p achievement.Progress) error {
	_, err := n.sender.SendMessage(ctx,
		tu.Message(tu.ID(userID), FormatUnlocked(def, p)).WithParseMode(telego.ModeHTML),
	)
	if err != nil {
		return fmt.Errorf("send unlock message: %w", err)
	}
	return nil
}

// FormatUnlocked renders the unlock message.
func FormatUnlocked(def achievement.Definition, p achievement.Progress) string {
	icon, ok := rarityIcons[def.Rarity]
	if !ok {
		icon = "🎖"
	}
	text := fmt.Sprintf("%s <b>Achievement unlocked: %s</b>\n\n%s\n\nRarity: %s",
		icon, html.EscapeString(def.Title), html.EscapeString(def.Description), def.Rarity)
	if p.TokenID != "" {
		text += fmt.Sprintf("\nToken: <code>%s</code>", html.EscapeString(p.TokenID))
	}
	return text
}
