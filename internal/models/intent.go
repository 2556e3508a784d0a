package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Command names the assistant is allowed to invoke.
const (
	CommandExecuteTrade = "execute_trade"
	CommandSetStopLoss  = "set_stop_loss"
)

// Command is the loose name + argument bag shape produced by the assistant's
// function calls. It is validated into a typed Intent at the router boundary
// and never travels deeper into the system.
type Command struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// Intent is a closed variant: TradeIntent or StopLossIntent.
type Intent interface {
	intent()
}

// TradeIntent is a validated buy/sell request addressed by display symbol.
type TradeIntent struct {
	Symbol string
	Side   TradeSide
	Amount float64
}

// StopLossIntent sets or clears a stop-loss directive for a holding.
// A nil Price clears the directive.
type StopLossIntent struct {
	Symbol string
	Price  *float64
}

func (TradeIntent) intent()    {}
func (StopLossIntent) intent() {}

// ErrUnknownCommand is returned for command names outside the closed set.
type ErrUnknownCommand struct {
	Name string
}

func (e *ErrUnknownCommand) Error() string {
	return fmt.Sprintf("unknown command '%s'", e.Name)
}

// ParseCommand validates a loose command bag into a typed Intent.
// Assistant argument values arrive as float64, string, or json.Number
// depending on the transport, so numeric fields accept all three.
func ParseCommand(cmd Command) (Intent, error) {
	switch cmd.Name {
	case CommandExecuteTrade:
		symbol := stringArg(cmd.Args, "symbol")
		if symbol == "" {
			return nil, fmt.Errorf("execute_trade: symbol is required")
		}

		action := strings.ToLower(stringArg(cmd.Args, "action"))
		side := TradeSide(action)
		if !side.Valid() {
			return nil, fmt.Errorf("execute_trade: action must be 'buy' or 'sell', got '%s'", action)
		}

		amount, ok := floatArg(cmd.Args, "amount")
		if !ok {
			return nil, fmt.Errorf("execute_trade: amount is required")
		}
		if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
			return nil, fmt.Errorf("execute_trade: amount must be a positive number")
		}

		return TradeIntent{Symbol: symbol, Side: side, Amount: amount}, nil

	case CommandSetStopLoss:
		symbol := stringArg(cmd.Args, "symbol")
		if symbol == "" {
			return nil, fmt.Errorf("set_stop_loss: symbol is required")
		}

		// A missing or non-numeric price clears the directive.
		intent := StopLossIntent{Symbol: symbol}
		if price, ok := floatArg(cmd.Args, "price"); ok && !math.IsNaN(price) && !math.IsInf(price, 0) {
			intent.Price = &price
		}
		return intent, nil

	default:
		return nil, &ErrUnknownCommand{Name: cmd.Name}
	}
}

func stringArg(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	if v, ok := args[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func floatArg(args map[string]any, key string) (float64, bool) {
	if args == nil {
		return 0, false
	}
	switch v := args[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		if n, ok := args[key].(interface{ Float64() (float64, error) }); ok {
			if f, err := n.Float64(); err == nil {
				return f, true
			}
		}
		return 0, false
	}
}
