package wsclient

import (
	"time"

	"github.com/jpalmerr/pulsedeck/message"
)

// Observer receives connection lifecycle notifications. Methods are called
// outside the registry's lock and must not block.
type Observer interface {
	ConnectionOpened(path string)
	ConnectionClosed(path string)
	ReconnectScheduled(path string, attempt int, delay time.Duration)
	ConnectionAbandoned(path string)
	MessageReceived(path string, kind message.Kind)
	MessageDropped(path string)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) ConnectionOpened(string) {}
func (NopObserver) ConnectionClosed(string) {}
func (NopObserver) ReconnectScheduled(string, int, time.Duration) {}
func (NopObserver) ConnectionAbandoned(string) {}
func (NopObserver) MessageReceived(string, message.Kind) {}
func (NopObserver) MessageDropped(string) {}
