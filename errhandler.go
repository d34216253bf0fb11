package retry

// LogErrorHandler logs passed error
func LogErrorHandler(log Logger) ErrorHandler {
	return func(err error, msg *Message) {
		args := []any{"error", err.Error()}
		if msg != nil {
			args = append(args, "correlationId", msg.CorrelationID, "routingKey", msg.RoutingKey)
		}
		log.Error("retry: message handling failed", args...)
	}
}

// CombineErrorHandlers combines multiple error handlers by calling them sequentially
func CombineErrorHandlers(handlers ...ErrorHandler) ErrorHandler {
	return func(err error, msg *Message) {
		for _, handler := range handlers {
			handler(err, msg)
		}
	}
}
