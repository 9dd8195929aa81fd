package eventbus

import (
	"time"

	logx "github.com/rodrigorodrigues/kairos/pkg/logx"
)

const failureWarnThrottle = 5 * time.Second

func (b *Bus) reportFailure(channel string, err error, stack string) {
	b.failures.Add(1)
	if b.onFailure != nil {
		b.onFailure(channel, err)
	}

	now := time.Now()
	b.warnMu.Lock()
	last := b.lastWarn[channel]
	if !last.IsZero() && now.Sub(last) < failureWarnThrottle {
		b.warnMu.Unlock()
		b.log.Debug("subscriber failed", logx.String("channel", channel), logx.Err(err))
		return
	}
	b.lastWarn[channel] = now
	b.warnMu.Unlock()

	b.log.Warn("subscriber failed", logx.String("channel", channel), logx.Err(err), logx.Stack(stack))
}
