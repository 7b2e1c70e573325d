package logger

import "log/slog"

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// UserID records the user identifier under the key "user_id".
func UserID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("user_id", id)
}

// DeviceID records an anonymous device identifier under the key "device_id".
func DeviceID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("device_id", id)
}

// TransactionID records a store original transaction identifier.
func TransactionID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("original_transaction_id", id)
}

// ProductID records the store product identifier.
func ProductID(id string) slog.Attr {
	return slog.String("product_id", id)
}

// Resource records the metered resource kind under the key "resource".
func Resource(kind string) slog.Attr {
	return slog.String("resource", kind)
}

// RequestID records the request identifier under the key "request_id".
func RequestID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("request_id", id)
}

// NotificationType records the store notification type.
func NotificationType(t string) slog.Attr {
	return slog.String("notification_type", t)
}

// Environment records the store environment (production or sandbox).
func Environment(env string) slog.Attr {
	return slog.String("store_env", env)
}

// Duration records a duration under the key "duration".
func Duration(d any) slog.Attr {
	return slog.Any("duration", d)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Event records the event name under the key "event".
func Event(name string) slog.Attr {
	return slog.String("event", name)
}
