package events

const (
	TopicLinkLifecycle = "linkshaper:events:link:lifecycle"
	TopicDrops         = "linkshaper:events:link:drops"
	TopicWatchdog      = "linkshaper:events:watchdog"
)
