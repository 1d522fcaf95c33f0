package relay

import "github.com/tmxfleet/alert-relay/internal/models"

type PlanMode string

const (
	PlanBroadcast PlanMode = "broadcast"
	PlanPerDevice PlanMode = "perDevice"
)

// SubscriptionPlan is the derived, ephemeral decision of how many
// physical subscriptions to open and with what server-side filter. It
// is recomputed whenever role or assignments change, and the superseded
// plan is torn down before the new one is installed.
type SubscriptionPlan struct {
	Mode    PlanMode
	Devices []string
}

// PlanSubscriptions picks between one server-filtered subscription per
// assigned device and a single broadcast subscription filtered
// client-side. Per-device filtering cuts irrelevant traffic for small
// fleets but does not scale past maxPerDevice physical subscriptions;
// admins see all devices anyway, so they always get broadcast.
func PlanSubscriptions(role models.Role, devices models.DeviceSet, maxPerDevice int) SubscriptionPlan {
	if role == models.RoleAdmin || devices.Len() > maxPerDevice {
		return SubscriptionPlan{Mode: PlanBroadcast}
	}
	return SubscriptionPlan{
		Mode:    PlanPerDevice,
		Devices: devices.IDs(),
	}
}
