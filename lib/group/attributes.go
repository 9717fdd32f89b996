package group

import "github.com/go-i2p/logger"

// Attribute names for the numeric concurrency limits, shared by groups and
// connections. The management layer edits these as plain text fields.
const (
	MaxSessionsAttribute        = "max-connections"
	MaxSessionsPerUserAttribute = "max-connections-per-user"
)

// limitAttributes renders a limit pair in attribute form. Both keys are
// always present so editors can distinguish "unset" from "absent".
func limitAttributes(l Limits) map[string]string {
	return map[string]string{
		MaxSessionsAttribute:        l.MaxSessions.Text(),
		MaxSessionsPerUserAttribute: l.MaxSessionsPerUser.Text(),
	}
}

// parseLimitAttributes extracts both limit attributes from attrs. A missing
// key or empty value is unset. A malformed value is a configuration error on
// the management side: it is logged and treated as unset rather than
// rejected, so one bad field never blocks the rest of the update.
func parseLimitAttributes(attrs map[string]string, scopeID string) Limits {
	return Limits{
		MaxSessions:        parseLimitAttribute(attrs, MaxSessionsAttribute, scopeID),
		MaxSessionsPerUser: parseLimitAttribute(attrs, MaxSessionsPerUserAttribute, scopeID),
	}
}

func parseLimitAttribute(attrs map[string]string, name, scopeID string) Limit {
	lim, err := ParseLimit(attrs[name])
	if err != nil {
		log.WithError(err).WithFields(logger.Fields{
			"at":        "group.parseLimitAttribute",
			"reason":    "invalid_configuration",
			"attribute": name,
			"scope":     scopeID,
		}).Warn("ignoring malformed limit attribute")
		return UnsetLimit()
	}
	return lim
}
