// Package auth verifies the bot's standing in the channels it publishes to.
package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/mymmrac/telego"

	"telegram-translator/internal/logging"
	"telegram-translator/pkg/telegoapi"
)

// AdminChecker checks whether the bot administers a destination channel.
type AdminChecker struct {
	bot    telegoapi.BotAPI
	logger logging.Logger

	once  sync.Once
	botID int64
	meErr error
}

// NewAdminChecker creates a new AdminChecker.
func NewAdminChecker(bot telegoapi.BotAPI, logger logging.Logger) (*AdminChecker, error) {
	if bot == nil {
		return nil, fmt.Errorf("telego bot instance cannot be nil")
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &AdminChecker{bot: bot, logger: logger}, nil
}

func (ac *AdminChecker) self(ctx context.Context) (int64, error) {
	ac.once.Do(func() {
		me, err := ac.bot.GetMe(ctx)
		if err != nil {
			ac.meErr = fmt.Errorf("failed to get bot identity: %w", err)
			return
		}
		ac.botID = me.ID
	})
	return ac.botID, ac.meErr
}

// IsAdmin reports whether the bot is an administrator or creator of channel, given as a
// username or numeric id.
func (ac *AdminChecker) IsAdmin(ctx context.Context, channel string) (bool, error) {
	botID, err := ac.self(ctx)
	if err != nil {
		return false, err
	}

	member, err := ac.bot.GetChatMember(ctx, &telego.GetChatMemberParams{
		ChatID: telegoapi.ParseChatID(channel),
		UserID: botID,
	})
	if err != nil {
		// A bot that was never added is simply not an admin.
		if strings.Contains(strings.ToLower(err.Error()), "user not found") {
			return false, nil
		}
		return false, fmt.Errorf("failed to get chat member info for %s: %w", channel, err)
	}

	status := member.MemberStatus()
	return status == telego.MemberStatusCreator || status == telego.MemberStatusAdministrator, nil
}

// WarnNonAdmin checks every destination and logs the ones the bot cannot publish to.
// It returns the destinations that failed the check.
func (ac *AdminChecker) WarnNonAdmin(ctx context.Context, destinations []string) []string {
	var missing []string
	seen := make(map[string]struct{}, len(destinations))
	for _, dest := range destinations {
		if _, dup := seen[dest]; dup {
			continue
		}
		seen[dest] = struct{}{}

		ok, err := ac.IsAdmin(ctx, dest)
		log := ac.logger.WithField("destination", dest)
		switch {
		case err != nil:
			log.WithError(err).Warn("Could not verify bot permissions in destination")
			missing = append(missing, dest)
		case !ok:
			log.Warn("Bot is not an administrator of destination, posts will fail")
			missing = append(missing, dest)
		default:
			log.Debug("Bot can publish to destination")
		}
	}
	return missing
}
