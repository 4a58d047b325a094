package a3interface

/*
#include <stdlib.h>
#include <stdio.h>
#include <string.h>
*/
import "C"

import (
	"github.com/batcom/engine/internal/dispatcher"
)

// ConfigStruct is the central configuration used by this library
type configStruct struct {
	// rvExtensionVersion is the value that will be returned when the extension is first called by the host
	rvExtensionVersion string

	// extensionName identifies this extension in async callbacks to the host
	extensionName string

	// errChan is the channel that errors will be sent to
	errChan chan []string

	// dispatcher handles event routing
	dispatcher *dispatcher.Dispatcher
}

// Init method initializes the config struct
func (c *configStruct) Init() {
	c.rvExtensionVersion = "No version set"
}

// SetVersion sets the version string that will be returned when the extension is first called by the host
func SetVersion(version string) {
	Config.rvExtensionVersion = version
}

// SetExtensionName sets the name used in async callbacks to the host
func SetExtensionName(name string) {
	Config.extensionName = name
}

// RegisterErrorChan sets the channel for error reporting
func RegisterErrorChan(channel chan []string) {
	Config.errChan = channel
}

// SetDispatcher sets the event dispatcher for handling commands. Buffered
// commands reply "queued" synchronously; their real outcome is pushed back
// to the host through the registered callback.
func SetDispatcher(d *dispatcher.Dispatcher) {
	Config.dispatcher = d
	d.OnAsyncResult(func(command string, result any, err error) {
		WriteArmaCallback(Config.extensionName, command, formatDispatchResponse(command, result, err))
	})
}

// GetDispatcher returns the configured dispatcher, or nil if not set
func GetDispatcher() *dispatcher.Dispatcher {
	return Config.dispatcher
}
