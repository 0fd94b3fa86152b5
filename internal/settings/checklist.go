package settings

import (
	"fmt"
	"time"

	"github.com/adamavenir/aioffice/internal/types"
)

// Grade is the state of one setup checklist item.
type Grade string

const (
	GradePass Grade = "pass"
	GradeWarn Grade = "warn"
	GradeFail Grade = "fail"
)

// Checklist item ids.
const (
	CheckProviderKey = "provider_key"
	CheckRecentTest  = "recent_test"
	CheckAgentsRoute = "agents_routed"
	CheckReady       = "project_ready"
)

// RecentTestWindow bounds how old a successful provider test may be.
const RecentTestWindow = 24 * time.Hour

// RoutedThreshold is the share of active agents that must be routed.
const RoutedThreshold = 0.8

// CheckItem is one graded checklist row.
type CheckItem struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Grade  Grade  `json:"grade"`
	Detail string `json:"detail,omitempty"`
}

func configured(p types.ProviderConfig) bool {
	if p.Provider == types.BackendOllama {
		return p.HasKey || p.BaseURL != ""
	}
	return p.HasKey
}

// Checklist grades the setup from a snapshot. project is the selected
// project name, empty when none.
func Checklist(s Snapshot, project string, now time.Time) []CheckItem {
	var keyed []types.Backend
	for _, b := range types.Backends {
		if p, ok := s.Providers[b]; ok && configured(p) {
			keyed = append(keyed, b)
		}
	}

	items := make([]CheckItem, 0, 4)

	key := CheckItem{ID: CheckProviderKey, Label: "Provider key configured"}
	switch {
	case len(keyed) == 0:
		key.Grade, key.Detail = GradeFail, "no provider has a key"
	default:
		key.Grade = GradePass
		key.Detail = fmt.Sprintf("%d of %d providers configured", len(keyed), len(types.Backends))
		for _, a := range s.Agents {
			if a.Active && HasAgentBinding(a) && !contains(keyed, a.Backend) {
				key.Grade = GradeWarn
				key.Detail = fmt.Sprintf("agent %s uses %s, which has no key", a.ID, a.Backend)
				break
			}
		}
	}
	items = append(items, key)

	test := CheckItem{ID: CheckRecentTest, Label: "Recent successful test"}
	var recent, tested int
	for _, b := range keyed {
		d, ok := s.Diagnostics[b]
		if !ok {
			continue
		}
		tested++
		if d.OK && now.Sub(d.LastTestAt) <= RecentTestWindow {
			recent++
		}
	}
	switch {
	case recent > 0 && recent == len(keyed):
		test.Grade, test.Detail = GradePass, "all configured providers passed in the last 24h"
	case recent > 0 || tested > 0:
		test.Grade = GradeWarn
		test.Detail = fmt.Sprintf("%d of %d configured providers passed in the last 24h", recent, len(keyed))
	default:
		test.Grade, test.Detail = GradeFail, "no provider has been tested"
	}
	items = append(items, test)

	route := CheckItem{ID: CheckAgentsRoute, Label: "Agents routed"}
	var active, routed int
	for _, a := range s.Agents {
		if !a.Active {
			continue
		}
		active++
		if HasAgentBinding(a) {
			routed++
		}
	}
	switch {
	case active == 0:
		route.Grade, route.Detail = GradeWarn, "no active agents"
	case float64(routed)/float64(active) >= RoutedThreshold:
		route.Grade = GradePass
		route.Detail = fmt.Sprintf("%d of %d active agents routed", routed, active)
	case routed > 0:
		route.Grade = GradeWarn
		route.Detail = fmt.Sprintf("%d of %d active agents routed", routed, active)
	default:
		route.Grade, route.Detail = GradeFail, "no active agent has a backend and model"
	}
	items = append(items, route)

	ready := CheckItem{ID: CheckReady, Label: "Project selected and providers healthy"}
	healthy := len(keyed) > 0
	for _, b := range keyed {
		if d, ok := s.Diagnostics[b]; !ok || !d.OK {
			healthy = false
		}
	}
	switch {
	case project == "":
		ready.Grade, ready.Detail = GradeFail, "no project selected"
	case !healthy:
		ready.Grade, ready.Detail = GradeWarn, "providers untested or failing"
	default:
		ready.Grade, ready.Detail = GradePass, "ready to build "+project
	}
	items = append(items, ready)
	return items
}

func contains(list []types.Backend, b types.Backend) bool {
	for _, v := range list {
		if v == b {
			return true
		}
	}
	return false
}
