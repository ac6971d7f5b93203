// Command stdio serves the demo commands on stdin/stdout. Logs go to stderr.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-pantheon/fabrica-dbe/conf"
	"github.com/go-pantheon/fabrica-dbe/example/handlers"
	"github.com/go-pantheon/fabrica-dbe/http/health"
	"github.com/go-pantheon/fabrica-dbe/server"
	"github.com/go-pantheon/fabrica-dbe/stdio"
)

var confPath = flag.String("conf", "", "config file, yaml or json")

func main() {
	flag.Parse()

	logger := log.NewStdLogger(os.Stderr)

	c, err := conf.Load(*confPath)
	if err != nil {
		panic(err)
	}

	reg, err := handlers.New()
	if err != nil {
		panic(err)
	}

	svr, err := stdio.NewStdServer(reg, server.WithConf(c), server.WithLogger(logger))
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hs := health.NewServer(c.Health.Addr, func() any { return svr.Shared().Status() })

	go func() {
		if err := hs.Start(ctx); err != nil {
			log.Errorf("health server stopped. %+v", err)
		}
	}()

	defer func() {
		if err := hs.Stop(ctx); err != nil {
			log.Errorf("stop health server failed. %+v", err)
		}
	}()

	if err := svr.Serve(ctx); err != nil {
		log.Errorf("serve failed. %+v", err)
	}

	if err := svr.Stop(ctx); err != nil {
		log.Errorf("stop server failed. %+v", err)
	}

	log.Infof("server stopped")
}
