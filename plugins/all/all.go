// Package all pulls in every built-in plugin for its registration
// side effects.
package all

import (
	_ "github.com/veesix-networks/linkshaper/plugins/exporter/prometheus"
)
