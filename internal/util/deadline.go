package util

import (
	"context"
	"io"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

// Deadline is implemented by net.Conn and net.TCPListener.
type Deadline interface {
	SetDeadline(t time.Time) error
}

// SetDeadlineWithContext expires d when ctx is done, unblocking any pending
// read, write or accept. The returned func detaches the watcher.
func SetDeadlineWithContext(ctx context.Context, d Deadline, tag string) (stop func() bool) {
	return context.AfterFunc(ctx, func() {
		log.Debugf("[util.SetDeadlineWithContext] %s expired", tag)

		if err := d.SetDeadline(time.Now()); err != nil {
			log.Errorf("[util.SetDeadlineWithContext] %s set deadline failed. %+v", tag, err)
		}
	})
}

// CloseOnCancel closes closer when ctx is done. The returned func detaches
// the watcher.
func CloseOnCancel(ctx context.Context, closer io.Closer, tag string) (stop func() bool) {
	return context.AfterFunc(ctx, func() {
		log.Debugf("[util.CloseOnCancel] %s closing", tag)

		if err := closer.Close(); err != nil {
			log.Errorf("[util.CloseOnCancel] %s close failed. %+v", tag, err)
		}
	})
}
