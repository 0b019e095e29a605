// Package notification tells holders about outcomes that concern them:
// prizes won and timelocked funds released.
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/congo-pay/prizepool/internal/events"
	"github.com/congo-pay/prizepool/internal/fixedpoint"
)

const (
	KindPrizeWon         = "prize_won"
	KindExternalPrizeWon = "external_prize_won"
	KindTimelockReleased = "timelock_released"
	KindNoWinner         = "no_winner"
	KindDripClaimed      = "drip_claimed"
)

// Message describes a notification payload.
type Message struct {
	Kind        string
	Destination string
	Body        string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(ctx context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.InfoContext(ctx, "notification",
		slog.String("kind", message.Kind),
		slog.String("destination", message.Destination),
		slog.String("body", message.Body))
	return nil
}

// Subscribe routes pool events to n. Draws without a winner go to owner.
// Delivery failures are logged and never reach the pool operation that
// published the event.
func Subscribe(bus *events.Bus, n Notifier, owner string, logger *slog.Logger) {
	send := func(ctx context.Context, m Message) {
		if err := n.Send(ctx, m); err != nil {
			logger.WarnContext(ctx, "notification failed",
				slog.String("kind", m.Kind),
				slog.String("destination", m.Destination),
				slog.Any("error", err))
		}
	}
	events.On(bus, func(ctx context.Context, e events.Awarded) {
		send(ctx, Message{
			Kind:        KindPrizeWon,
			Destination: e.Winner,
			Body:        fmt.Sprintf("you won %s %s", fixedpoint.FormatUnits(e.Amount), e.Token),
		})
	})
	events.On(bus, func(ctx context.Context, e events.AwardedExternalERC20) {
		send(ctx, Message{
			Kind:        KindExternalPrizeWon,
			Destination: e.Winner,
			Body:        fmt.Sprintf("you won %s %s", fixedpoint.FormatUnits(e.Amount), e.Token),
		})
	})
	events.On(bus, func(ctx context.Context, e events.AwardedExternalERC721) {
		send(ctx, Message{
			Kind:        KindExternalPrizeWon,
			Destination: e.Winner,
			Body:        fmt.Sprintf("you won %s #%s", e.Collection, strings.Join(e.TokenIDs, ", #")),
		})
	})
	events.On(bus, func(ctx context.Context, e events.TimelockSwept) {
		send(ctx, Message{
			Kind:        KindTimelockReleased,
			Destination: e.Holder,
			Body:        fmt.Sprintf("%s released from timelock", fixedpoint.FormatUnits(e.Amount)),
		})
	})
	events.On(bus, func(ctx context.Context, e events.DripClaimed) {
		send(ctx, Message{
			Kind:        KindDripClaimed,
			Destination: e.Holder,
			Body:        fmt.Sprintf("claimed %s %s", fixedpoint.FormatUnits(e.Amount), e.DripToken),
		})
	})
	events.On(bus, func(ctx context.Context, e events.NoWinner) {
		send(ctx, Message{
			Kind:        KindNoWinner,
			Destination: owner,
			Body:        fmt.Sprintf("draw %s had no eligible winner; %s carries over", e.RequestID, fixedpoint.FormatUnits(e.Award)),
		})
	})
}
