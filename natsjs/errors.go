package natsjs

type Error string

func (e Error) Error() string {
	return string(e)
}

const (
	ErrStreamName  = Error("StreamName cannot be empty")
	ErrDurableName = Error("durable name cannot be empty")
)
