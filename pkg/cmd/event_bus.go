// Package cmd wires shared infrastructure for the binaries: event bus and
// snapshot store construction from configuration values.
package cmd

import (
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"

	gochan "github.com/planion/planion/pkg/channels/gochannel"
	"github.com/planion/planion/pkg/eventbus"
)

func NewEventBus(provider string, logger *slog.Logger) eventbus.EventBus {
	switch provider {
	case "", "gochannel":
		pub, sub := gochan.CreateChannel(watermill.NewSlogLogger(logger))

		return eventbus.NewWatermillEventBus(pub, sub, logger)
	default:
		panic("Unsupported event bus provider: " + provider)
	}
}
