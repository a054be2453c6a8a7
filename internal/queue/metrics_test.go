package queue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQueueLabelStripsNamespace(t *testing.T) {
	cases := map[string]string{
		"receipt-delivery":      "receipt-delivery",
		"duka:receipt-delivery": "receipt-delivery",
		"a:b:webhook":           "webhook",
		"":                      "",
	}
	for in, want := range cases {
		require.Equal(t, want, queueLabel(in), "kind %q", in)
	}
}
