package corenodes

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/noderegistry/pkg/descriptor"
	"github.com/platinummonkey/noderegistry/pkg/loader"
)

const (
	categoryCommon  = "common"
	defaultComplete = "payload"
)

// Inject is a configured inject node
type Inject struct {
	Payload interface{}
	Repeat  time.Duration
	Once    bool
}

// Debug is a configured debug node
type Debug struct {
	// Complete is the message property shown, or "true" for the whole message
	Complete string
	Console  bool
}

// Register binds the built-in units of the host module to rt. Unit ids
// follow the scanned layout: <host>/inject and <host>/debug.
func Register(rt *loader.NativeRuntime, hostName string) {
	rt.Register(descriptor.UnitID(hostName, "inject"), injectUnit)
	rt.Register(descriptor.UnitID(hostName, "debug"), debugUnit)
}

func injectUnit(ctx context.Context, red *loader.RED) error {
	return red.RegisterType("inject", NewInject, descriptor.TypeOptions{
		"category": categoryCommon,
		"label":    red.Translate("inject.inject"),
		"inputs":   0,
		"outputs":  1,
	})
}

func debugUnit(ctx context.Context, red *loader.RED) error {
	return red.RegisterType("debug", NewDebug, descriptor.TypeOptions{
		"category": categoryCommon,
		"label":    red.Translate("debug.debug"),
		"inputs":   1,
		"outputs":  0,
	})
}

// NewInject builds an inject node from its flow configuration
func NewInject(ctx context.Context, config map[string]interface{}) (interface{}, error) {
	n := &Inject{Payload: config["payload"]}

	repeat, err := seconds(config["repeat"])
	if err != nil {
		return nil, fmt.Errorf("inject: invalid repeat: %w", err)
	}
	if repeat < 0 {
		return nil, fmt.Errorf("inject: repeat must not be negative")
	}
	n.Repeat = repeat

	if once, ok := config["once"].(bool); ok {
		n.Once = once
	}
	return n, nil
}

// NewDebug builds a debug node from its flow configuration
func NewDebug(ctx context.Context, config map[string]interface{}) (interface{}, error) {
	n := &Debug{Complete: defaultComplete}

	switch v := config["complete"].(type) {
	case nil:
	case bool:
		if v {
			n.Complete = "true"
		}
	case string:
		if v = strings.TrimPrefix(strings.TrimSpace(v), "msg."); v != "" {
			n.Complete = v
		}
	default:
		return nil, fmt.Errorf("debug: complete must be a string or bool, got %T", v)
	}

	if console, ok := config["console"].(bool); ok {
		n.Console = console
	}
	return n, nil
}

// seconds reads an interval given either as a number or a numeric string
func seconds(v interface{}) (time.Duration, error) {
	var s float64
	switch x := v.(type) {
	case nil:
		return 0, nil
	case float64:
		s = x
	case int:
		s = float64(x)
	case string:
		if strings.TrimSpace(x) == "" {
			return 0, nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, err
		}
		s = f
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
	return time.Duration(s * float64(time.Second)), nil
}
