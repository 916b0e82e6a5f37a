package connmgr

import (
	"errors"
	"testing"
	"time"

	"github.com/exchangecollector/core/pkg/clock"
	"github.com/exchangecollector/core/pkg/errkind"
	"github.com/exchangecollector/core/pkg/xlog"
	"github.com/stretchr/testify/require"
)

func TestManagerStartsIdle(t *testing.T) {
	m := New(DefaultConfig(), clock.NewFake(time.Unix(0, 0)), xlog.Noop())
	require.Equal(t, StateIdle, m.State())
}

func TestSendFailsWhenQueueFull(t *testing.T) {
	m := New(DefaultConfig(), clock.NewFake(time.Unix(0, 0)), xlog.Noop())

	ok := true
	for i := 0; i < 200 && ok; i++ {
		ok = m.Send([]byte("x"))
	}
	require.False(t, ok, "outbound queue should eventually report backpressure")
}

func TestClassifyDialErrorIsNetworkForGenericErrors(t *testing.T) {
	require.Equal(t, errkind.Network, classifyDialError(errors.New("boom")))
}

func TestClassifyDialErrorIsUnknownForNil(t *testing.T) {
	require.Equal(t, errkind.Unknown, classifyDialError(nil))
}
