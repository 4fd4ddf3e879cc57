package logger

import "log/slog"

// Error records err under the key "error". Nil errors produce an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Event records the event name under the key "event".
func Event(name string) slog.Attr {
	return slog.String("event", name)
}

// Shop records the shop domain under the key "shop".
func Shop(domain string) slog.Attr {
	return slog.String("shop", domain)
}

// Plan records a plan key under the key "plan". Empty keys produce an empty Attr.
func Plan(key string) slog.Attr {
	if key == "" {
		return slog.Attr{}
	}
	return slog.String("plan", key)
}

// ChargeID records a gateway charge or subscription id under the key "charge_id".
// Empty ids produce an empty Attr.
func ChargeID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("charge_id", id)
}

// Tokens records a token amount under the key "tokens".
func Tokens(n int64) slog.Attr {
	return slog.Int64("tokens", n)
}

// RequestID records the request identifier under the key "request_id".
func RequestID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("request_id", id)
}
