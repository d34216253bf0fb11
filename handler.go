package retry

import (
	"context"
	"fmt"
	"reflect"
)

// Decoder defines how to decode the given data into a value
type Decoder interface {
	Decode(data []byte, v any) error
}

// DecoderFunc wraps the decoding function to use it as a Decoder
// json.Unmarshal can be used as a decoder
type DecoderFunc func(data []byte, v any) error

func (f DecoderFunc) Decode(data []byte, v any) error {
	return f(data, v)
}

// CorrelationIDAware is implemented by payloads which want to receive the message correlation id
type CorrelationIDAware interface {
	SetCorrelationID(id string)
}

// CreateHandler creates an event handler that uses a Decoder to decode the message body into
// a concrete value, which is then passed to the consumer function together with the event Handle.
// The handle is nil for untracked events.
func CreateHandler[T any](
	dec Decoder,
	consumerFunc func(ctx context.Context, target T, h *Handle) error,
	options ...DecodeOption,
) Handler {
	opts := &decodingOptions{
		logBodyErr: true,
		logBodyMax: 1024,
	}
	for _, o := range options {
		o(opts)
	}

	logErr := func(err error, e Event) {
		if opts.logger == nil {
			return
		}
		msg := e.Message()
		args := []any{"queue", e.Queue(), "correlationId", msg.CorrelationID}
		if opts.logBodyErr {
			body := msg.Body
			if opts.logBodyMax > 0 && len(body) > opts.logBodyMax {
				body = body[:opts.logBodyMax]
			}
			args = append(args, "body", string(body))
		}
		opts.logger.Error(err.Error(), args...)
	}

	return func(ctx context.Context, e Event) error {
		var target T
		var targetPtr any

		targetType := reflect.TypeOf(target)
		if targetType == nil {
			return fmt.Errorf("cannot determine type of target")
		}

		if targetType.Kind() == reflect.Pointer {
			// T is a pointer type
			// Allocate a new instance of the type pointed to by T
			targetValue := reflect.New(targetType.Elem())
			target = targetValue.Interface().(T)
			targetPtr = target
		} else {
			targetPtr = &target
		}

		message := e.Message()
		if err := dec.Decode(message.Body, targetPtr); err != nil {
			err = fmt.Errorf("failed to decode message body: %s", err)
			logErr(err, e)
			if h := e.Handle(); h != nil && opts.rejectOnErr {
				if rErr := h.Reject(ctx); rErr != nil {
					return fmt.Errorf("%s, reject failed: %w", err, rErr)
				}
			}
			return err
		}

		if message.CorrelationID != "" {
			if aware, ok := targetPtr.(CorrelationIDAware); ok {
				aware.SetCorrelationID(message.CorrelationID)
			} else if aware, ok := any(target).(CorrelationIDAware); ok {
				aware.SetCorrelationID(message.CorrelationID)
			}
		}

		if err := consumerFunc(ctx, target, e.Handle()); err != nil {
			logErr(err, e)
			return err
		}
		return nil
	}
}

type decodingOptions struct {
	logger      Logger
	logBodyErr  bool
	logBodyMax  int
	rejectOnErr bool
}

// DecodeOption sets decoding option
type DecodeOption func(o *decodingOptions)

// DecodeUseLogger sets the logger for decoding and consumer errors
func DecodeUseLogger(l Logger) DecodeOption {
	return func(o *decodingOptions) {
		o.logger = l
	}
}

// DecodeLogBodyIfErr sets the flag for logging message body if an error occurs
func DecodeLogBodyIfErr(log bool) DecodeOption {
	return func(o *decodingOptions) {
		o.logBodyErr = log
	}
}

// DecodeLogBodyMax sets the maximum body length to log
func DecodeLogBodyMax(max int) DecodeOption {
	return func(o *decodingOptions) {
		o.logBodyMax = max
	}
}

// DecodeRejectOnError rejects tracked messages which cannot be decoded
func DecodeRejectOnError(reject bool) DecodeOption {
	return func(o *decodingOptions) {
		o.rejectOnErr = reject
	}
}
