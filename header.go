package retry

import (
	"strconv"

	"github.com/google/uuid"
)

const (
	// HdrCorrelationID is the unique identifier used to track and correlate messages as they flow through a system
	HdrCorrelationID = "Correlation-Id"
	// HdrRejected carries the number of rejections a dead-lettered message went through
	HdrRejected = "rejected"
)

// Header represents a set of key-value pairs
type Header map[string]string

// Get retrieves the value associated with the provided key from the header.
// Returns an empty string if the key does not exist.
func (h Header) Get(key string) string {
	if h == nil {
		return ""
	}
	return h[key]
}

// Set assigns the provided value to the provided key in the header.
func (h Header) Set(key, value string) {
	h[key] = value
}

// Clone returns a copy of the header, never nil
func (h Header) Clone() Header {
	c := make(Header, len(h)+1)
	for k, v := range h {
		c[k] = v
	}
	return c
}

// SetCorrelationID sets the correlation id in the header using a predefined key.
func (h Header) SetCorrelationID(id string) {
	h.Set(HdrCorrelationID, id)
}

// GetCorrelationID retrieves the correlation id value from the header.
// Returns an empty string if the correlation id is not set.
func (h Header) GetCorrelationID() string {
	return h.Get(HdrCorrelationID)
}

// SetRejected sets the rejection count of a dead-lettered message
func (h Header) SetRejected(count int64) {
	h.Set(HdrRejected, strconv.FormatInt(count, 10))
}

// GetRejected retrieves the rejection count, zero when absent or malformed
func (h Header) GetRejected() int64 {
	v := h.Get(HdrRejected)
	if v == "" {
		return 0
	}
	count, _ := strconv.ParseInt(v, 10, 64)
	return count
}

// NewCorrelationID generates a new random correlation id
func NewCorrelationID() string {
	return uuid.NewString()
}

// Correlate makes sure the message carries a correlation id, both in the
// CorrelationID field and in the header. It is meant to be called on the publishing side.
func Correlate(m *Message) {
	if m.Header == nil {
		m.Header = make(Header)
	}
	if m.CorrelationID == "" {
		m.CorrelationID = m.Header.GetCorrelationID()
	}
	if m.CorrelationID == "" {
		m.CorrelationID = NewCorrelationID()
	}
	m.Header.SetCorrelationID(m.CorrelationID)
}
