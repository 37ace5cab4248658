package logger

const (
	Main      = "main"
	Shaper    = "shaper"
	Link      = "link"
	Delay     = "delay"
	Loss      = "loss"
	Meter     = "meter"
	Classify  = "classify"
	Trace     = "trace"
	Graph     = "graph"
	Events    = "events"
	EventLoop = "evloop"
	Tun       = "tun"
	Watchdog  = "watchdog"
	Exporter  = "exporter"
	Config    = "configd"
)
