package shopify

import "strings"

const gidPrefix = "gid://shopify/"

// AppSubscriptionGID returns the global id for a recurring charge id.
// Values that already are global ids are returned unchanged.
func AppSubscriptionGID(id string) string {
	return toGID("AppSubscription", id)
}

// OneTimeChargeGID returns the global id for a one-time purchase id.
func OneTimeChargeGID(id string) string {
	return toGID("AppPurchaseOneTime", id)
}

func toGID(resource, id string) string {
	id = strings.TrimSpace(id)
	if id == "" || strings.HasPrefix(id, gidPrefix) {
		return id
	}
	return gidPrefix + resource + "/" + id
}
