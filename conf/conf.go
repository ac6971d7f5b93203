package conf

import (
	"runtime"
	"time"
)

type Config struct {
	Engine    Engine
	Fault     Fault
	Bucket    Bucket
	TCP       TCP
	WebSocket WebSocket
	KCP       KCP
	Health    Health
}

type Engine struct {
	// MaxWorkers caps live handler goroutines. Zero runs every handler inline
	// on the reader goroutine.
	MaxWorkers        int
	ReadBufSize       int
	WriteBufSize      int
	SmallResponseSize int
	SmallPoolCapacity int
	LargePoolCapacity int
	StopTimeout       time.Duration
	// Cancellable and ImmediateCancel add command names to the cancellable
	// set on top of what the handler descriptors declare.
	Cancellable     []string
	ImmediateCancel []string
}

type Fault struct {
	HandleSignals bool
	DumpDir       string
	MemoryReserve int
}

type Bucket struct {
	BucketSize int
}

type TCP struct {
	Bind         string
	KeepAlive    bool
	ReadBufSize  int
	WriteBufSize int
}

type WebSocket struct {
	Bind         string
	Path         string
	ReadBufSize  int
	WriteBufSize int
	AllowOrigins []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type KCP struct {
	Bind              string
	DataShards        int
	ParityShards      int
	ReadBufSize       int
	WriteBufSize      int
	DSCP              int
	MTU               int
	NoDelay           [4]int
	WindowSize        [2]int
	ACKNoDelay        bool
	WriteDelay        bool
	Smux              bool
	KeepAliveInterval time.Duration
	KeepAliveTimeout  time.Duration
	MaxFrameSize      int
	MaxReceiveBuffer  int
}

type Health struct {
	Addr string
}

func Default() Config {
	engine := Engine{
		MaxWorkers:        runtime.NumCPU(),
		ReadBufSize:       64 * 1024,
		WriteBufSize:      64 * 1024,
		SmallResponseSize: 4096,
		SmallPoolCapacity: 256,
		LargePoolCapacity: 16,
		StopTimeout:       time.Second * 30,
	}

	fault := Fault{
		HandleSignals: true,
		DumpDir:       "",
		MemoryReserve: 4 << 20,
	}

	bucket := Bucket{
		BucketSize: 64,
	}

	tcp := TCP{
		Bind:         "127.0.0.1:17300",
		KeepAlive:    true,
		ReadBufSize:  30000,
		WriteBufSize: 30000,
	}

	ws := WebSocket{
		Bind:         "127.0.0.1:17301",
		Path:         "/dbe",
		ReadBufSize:  4096,
		WriteBufSize: 4096,
		ReadTimeout:  0,
		WriteTimeout: 0,
	}

	kcp := KCP{
		Bind:              "127.0.0.1:17302",
		DataShards:        10,
		ParityShards:      3,
		ReadBufSize:       4 * 1024 * 1024,
		WriteBufSize:      4 * 1024 * 1024,
		DSCP:              46,
		MTU:               1400,
		NoDelay:           [4]int{1, 10, 2, 1},
		WindowSize:        [2]int{256, 256},
		ACKNoDelay:        true,
		WriteDelay:        false,
		Smux:              false,
		KeepAliveInterval: time.Second * 10,
		KeepAliveTimeout:  time.Second * 30,
		MaxFrameSize:      32768,
		MaxReceiveBuffer:  4 * 1024 * 1024,
	}

	return Config{
		Engine:    engine,
		Fault:     fault,
		Bucket:    bucket,
		TCP:       tcp,
		WebSocket: ws,
		KCP:       kcp,
		Health:    Health{Addr: "127.0.0.1:17310"},
	}
}
