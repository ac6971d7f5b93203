package main

import (
	"context"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-pantheon/fabrica-dbe/client"
	tcp "github.com/go-pantheon/fabrica-dbe/tcp/client"
	"golang.org/x/sync/errgroup"
)

func main() {
	cli := tcp.NewClient(1, "127.0.0.1:17300")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := cli.Start(ctx); err != nil {
		panic(err)
	}

	defer func() {
		if err := cli.Stop(ctx); err != nil {
			log.Errorf("stop client failed. %+v", err)
		}
	}()

	log.Infof("client started. protocol version %d", cli.Version())

	r, err := cli.Call(ctx, 1, "getClock", []any{int32(7)})
	if err != nil {
		panic(err)
	}

	log.Infof("[recv] getClock(7) = %v", r.Value)

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		r, err := cli.Call(ctx, 2, "getCallTree", []any{int32(100)}, client.WithProgress(func(pct int32, msg string) {
			log.Infof("[progress] %s %d%%", msg, pct)
		}))
		if err != nil {
			return err
		}

		log.Infof("[recv] getCallTree %s %v", r.Status, r.Value)

		return nil
	})

	eg.Go(func() error {
		time.Sleep(200 * time.Millisecond)

		ok, err := cli.Cancel(ctx, 2)
		if err != nil {
			return err
		}

		log.Infof("[send] cancel channel 2 accepted=%t", ok)

		return nil
	})

	if err := eg.Wait(); err != nil {
		log.Errorf("client failed. %+v", err)
	}
}
