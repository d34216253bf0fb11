package retry_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	. "github.com/velmie/retry"
)

func TestHeaderGetSet(t *testing.T) {
	h := make(Header)

	key := "test-key"
	value := "test-value"

	h.Set(key, value)
	if got := h.Get(key); got != value {
		t.Errorf("Get() = %v; want %v", got, value)
	}
}

func TestHeaderNonexistentKey(t *testing.T) {
	h := Header{}
	if got := h.Get("nonexistent"); got != "" {
		t.Errorf("expected empty string for nonexistent key, got %v", got)
	}

	var nilHeader Header
	if got := nilHeader.Get("nonexistent"); got != "" {
		t.Errorf("expected empty string for nil header, got %v", got)
	}
}

func TestHeaderCorrelationID(t *testing.T) {
	h := Header{}
	h.SetCorrelationID("abc")
	if got := h.GetCorrelationID(); got != "abc" {
		t.Errorf("GetCorrelationID() = %v; want %v", got, "abc")
	}
	if got := h.Get("Correlation-Id"); got != "abc" {
		t.Errorf("Get(Correlation-Id) = %v; want %v", got, "abc")
	}
}

func TestHeaderRejected(t *testing.T) {
	h := Header{}
	if got := h.GetRejected(); got != 0 {
		t.Errorf("GetRejected() without setting = %v; want 0", got)
	}

	h.SetRejected(4)
	if got := h.Get("rejected"); got != "4" {
		t.Errorf("Get(rejected) = %v; want 4", got)
	}
	if got := h.GetRejected(); got != 4 {
		t.Errorf("GetRejected() = %v; want 4", got)
	}

	h.Set(HdrRejected, "four")
	if got := h.GetRejected(); got != 0 {
		t.Errorf("GetRejected() with malformed value = %v; want 0", got)
	}
}

func TestHeaderClone(t *testing.T) {
	h := Header{"a": "1"}
	c := h.Clone()
	c.Set("b", "2")

	require.Equal(t, Header{"a": "1"}, h)
	require.Equal(t, Header{"a": "1", "b": "2"}, c)

	var nilHeader Header
	require.NotNil(t, nilHeader.Clone())
}

func TestCorrelate(t *testing.T) {
	t.Run("keeps_existing_id", func(t *testing.T) {
		m := &Message{CorrelationID: "abc"}
		Correlate(m)
		require.Equal(t, "abc", m.CorrelationID)
		require.Equal(t, "abc", m.Header.GetCorrelationID())
	})

	t.Run("takes_id_from_header", func(t *testing.T) {
		m := NewMessage()
		m.Header.SetCorrelationID("from-header")
		Correlate(m)
		require.Equal(t, "from-header", m.CorrelationID)
	})

	t.Run("generates_id", func(t *testing.T) {
		m := NewMessage()
		Correlate(m)
		_, err := uuid.Parse(m.CorrelationID)
		require.NoError(t, err)
		require.Equal(t, m.CorrelationID, m.Header.GetCorrelationID())
	})
}
