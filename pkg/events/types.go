package events

// LinkLifecycleEvent marks a link starting up or reaching the end of
// its schedule with repeat off.
type LinkLifecycleEvent struct {
	Link     string
	State    string // "up", "finished"
	AtMillis uint64
}

// DropEvent reports shedding at a link's queue discipline.
type DropEvent struct {
	Link     string
	Packets  int
	Bytes    int
	AtMillis uint64
}

// WatchdogEvent reports a health-state transition of a monitored
// target.
type WatchdogEvent struct {
	Target  string
	Healthy bool
	Detail  string
}
