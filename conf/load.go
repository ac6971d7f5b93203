package conf

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/config/env"
	"github.com/go-kratos/kratos/v2/config/file"
	"github.com/go-pantheon/fabrica-util/errors"
)

// EnvPrefix is the prefix of environment overrides, e.g. DBE_MAX_WORKERS.
const EnvPrefix = "DBE_"

// Load reads the config file at path (yaml or json, selected by extension)
// over Default(). An empty path skips the file. DBE_MAX_WORKERS overrides the
// worker cap from the file.
func Load(path string) (Config, error) {
	ret := Default()

	sources := []config.Source{env.NewSource(EnvPrefix)}
	if path != "" {
		sources = append([]config.Source{file.NewSource(path)}, sources...)
	}

	c := config.New(config.WithSource(sources...))
	defer c.Close()

	if err := c.Load(); err != nil {
		return ret, errors.Wrapf(err, "load config %q failed", path)
	}

	var fc fileConfig
	if err := c.Scan(&fc); err != nil {
		return ret, errors.Wrapf(err, "scan config %q failed", path)
	}

	fc.apply(&ret)

	if v, err := c.Value("MAX_WORKERS").String(); err == nil {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return ret, errors.Errorf("invalid %sMAX_WORKERS %q", EnvPrefix, v)
		}

		ret.Engine.MaxWorkers = n
	}

	return ret, nil
}

// Size is a byte count written either as a number or as a human string such
// as "64KiB" or "4 MB".
type Size int

func (s *Size) UnmarshalJSON(b []byte) error {
	var n int64
	if err := json.Unmarshal(b, &n); err == nil {
		*s = Size(n)
		return nil
	}

	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.Wrapf(err, "size %s", b)
	}

	v, err := humanize.ParseBytes(str)
	if err != nil {
		return errors.Wrapf(err, "size %q", str)
	}

	*s = Size(v)

	return nil
}

// Duration accepts time.ParseDuration strings.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.Wrapf(err, "duration %s", b)
	}

	v, err := time.ParseDuration(str)
	if err != nil {
		return errors.Wrapf(err, "duration %q", str)
	}

	*d = Duration(v)

	return nil
}

type fileConfig struct {
	Engine struct {
		MaxWorkers        *int     `json:"max_workers"`
		ReadBufSize       Size     `json:"read_buf_size"`
		WriteBufSize      Size     `json:"write_buf_size"`
		SmallResponseSize Size     `json:"small_response_size"`
		SmallPoolCapacity int      `json:"small_pool_capacity"`
		LargePoolCapacity int      `json:"large_pool_capacity"`
		StopTimeout       Duration `json:"stop_timeout"`
		Cancellable       []string `json:"cancellable"`
		ImmediateCancel   []string `json:"immediate_cancel"`
	} `json:"engine"`
	Fault struct {
		HandleSignals *bool  `json:"handle_signals"`
		DumpDir       string `json:"dump_dir"`
		MemoryReserve Size   `json:"memory_reserve"`
	} `json:"fault"`
	TCP struct {
		Bind string `json:"bind"`
	} `json:"tcp"`
	WebSocket struct {
		Bind         string   `json:"bind"`
		Path         string   `json:"path"`
		AllowOrigins []string `json:"allow_origins"`
	} `json:"websocket"`
	KCP struct {
		Bind string `json:"bind"`
		Smux *bool  `json:"smux"`
	} `json:"kcp"`
	Health struct {
		Addr string `json:"addr"`
	} `json:"health"`
}

func (fc *fileConfig) apply(c *Config) {
	e := &c.Engine

	if fc.Engine.MaxWorkers != nil {
		e.MaxWorkers = *fc.Engine.MaxWorkers
	}

	setPositive(&e.ReadBufSize, int(fc.Engine.ReadBufSize))
	setPositive(&e.WriteBufSize, int(fc.Engine.WriteBufSize))
	setPositive(&e.SmallResponseSize, int(fc.Engine.SmallResponseSize))
	setPositive(&e.SmallPoolCapacity, fc.Engine.SmallPoolCapacity)
	setPositive(&e.LargePoolCapacity, fc.Engine.LargePoolCapacity)

	if fc.Engine.StopTimeout > 0 {
		e.StopTimeout = time.Duration(fc.Engine.StopTimeout)
	}

	e.Cancellable = append(e.Cancellable, fc.Engine.Cancellable...)
	e.ImmediateCancel = append(e.ImmediateCancel, fc.Engine.ImmediateCancel...)

	if fc.Fault.HandleSignals != nil {
		c.Fault.HandleSignals = *fc.Fault.HandleSignals
	}

	setString(&c.Fault.DumpDir, fc.Fault.DumpDir)
	setPositive(&c.Fault.MemoryReserve, int(fc.Fault.MemoryReserve))

	setString(&c.TCP.Bind, fc.TCP.Bind)
	setString(&c.WebSocket.Bind, fc.WebSocket.Bind)
	setString(&c.WebSocket.Path, fc.WebSocket.Path)
	c.WebSocket.AllowOrigins = append(c.WebSocket.AllowOrigins, fc.WebSocket.AllowOrigins...)
	setString(&c.KCP.Bind, fc.KCP.Bind)

	if fc.KCP.Smux != nil {
		c.KCP.Smux = *fc.KCP.Smux
	}

	setString(&c.Health.Addr, fc.Health.Addr)
}

func setPositive(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
