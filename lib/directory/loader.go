package directory

import (
	"os"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"

	"github.com/conngate/conngate/lib/group"
)

var log = logger.GetGoI2PLogger()

// topologyFile is the on-disk YAML shape. Limits are pointers so an absent
// key stays distinguishable from an explicit zero.
type topologyFile struct {
	Groups      []topologyGroup      `yaml:"groups"`
	Connections []topologyConnection `yaml:"connections"`
}

type topologyGroup struct {
	ID                 string   `yaml:"id"`
	Name               string   `yaml:"name"`
	Type               string   `yaml:"type"`
	MaxSessions        *int     `yaml:"max-connections"`
	MaxSessionsPerUser *int     `yaml:"max-connections-per-user"`
	Groups             []string `yaml:"groups"`
	Connections        []string `yaml:"connections"`
}

type topologyConnection struct {
	ID                 string            `yaml:"id"`
	Name               string            `yaml:"name"`
	MaxSessions        *int              `yaml:"max-connections"`
	MaxSessionsPerUser *int              `yaml:"max-connections-per-user"`
	Parameters         map[string]string `yaml:"parameters"`
}

// Load reads a YAML topology file and builds an in-memory directory.
func Load(path string) (*Memory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, oops.Wrapf(err, "reading topology file %s", path)
	}
	dir, err := Parse(raw)
	if err != nil {
		return nil, oops.Wrapf(err, "topology file %s", path)
	}
	log.WithFields(logger.Fields{
		"at":          "directory.Load",
		"path":        path,
		"groups":      len(dir.GroupIdentifiers()),
		"connections": len(dir.ConnectionIdentifiers()),
	}).Info("topology loaded")
	return dir, nil
}

// Parse builds a directory from YAML topology bytes. The topology is
// validated before anything is returned: identifiers must be non-empty and
// unique across both kinds, child references must resolve, and a group may
// not list itself as a child. Deeper cycles are the dispatch layer's
// runtime concern.
func Parse(raw []byte) (*Memory, error) {
	var file topologyFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, oops.Wrapf(err, "parsing topology YAML")
	}

	if err := validateTopology(&file); err != nil {
		return nil, err
	}

	dir := NewMemory()
	for _, tc := range file.Connections {
		conn := group.NewConnection(tc.ID, displayName(tc.Name, tc.ID))
		limits, err := limitPair(tc.MaxSessions, tc.MaxSessionsPerUser)
		if err != nil {
			return nil, oops.Wrapf(err, "connection %q", tc.ID)
		}
		conn.SetConcurrencyLimits(limits)
		conn.SetParameters(tc.Parameters)
		dir.PutConnection(conn)
	}

	for _, tg := range file.Groups {
		typ, err := group.ParseType(tg.Type)
		if err != nil {
			return nil, oops.Wrapf(err, "group %q", tg.ID)
		}
		g := group.New(tg.ID, displayName(tg.Name, tg.ID), typ)
		limits, err := limitPair(tg.MaxSessions, tg.MaxSessionsPerUser)
		if err != nil {
			return nil, oops.Wrapf(err, "group %q", tg.ID)
		}
		g.SetConcurrencyLimits(limits)
		for _, cid := range tg.Connections {
			g.AddChildConnection(cid)
		}
		for _, gid := range tg.Groups {
			g.AddChildGroup(gid)
		}
		dir.PutGroup(g)
	}

	return dir, nil
}

func validateTopology(file *topologyFile) error {
	groupIDs := make(map[string]bool, len(file.Groups))
	connIDs := make(map[string]bool, len(file.Connections))

	for _, tc := range file.Connections {
		if tc.ID == "" {
			return oops.Errorf("connection with empty identifier")
		}
		if connIDs[tc.ID] {
			return oops.Errorf("duplicate connection identifier %q", tc.ID)
		}
		connIDs[tc.ID] = true
	}

	for _, tg := range file.Groups {
		if tg.ID == "" {
			return oops.Errorf("group with empty identifier")
		}
		if groupIDs[tg.ID] {
			return oops.Errorf("duplicate group identifier %q", tg.ID)
		}
		if connIDs[tg.ID] {
			return oops.Errorf("identifier %q used by both a group and a connection", tg.ID)
		}
		groupIDs[tg.ID] = true
	}

	for _, tg := range file.Groups {
		for _, gid := range tg.Groups {
			if gid == tg.ID {
				return oops.Errorf("group %q lists itself as a child", tg.ID)
			}
			if !groupIDs[gid] {
				return oops.Errorf("group %q references undefined child group %q", tg.ID, gid)
			}
		}
		for _, cid := range tg.Connections {
			if !connIDs[cid] {
				return oops.Errorf("group %q references undefined child connection %q", tg.ID, cid)
			}
		}
	}

	return nil
}

// limitPair converts the optional YAML ints into tri-state limits. nil is
// unset, zero is unlimited, positive bounds; negatives are rejected here so
// a bad file fails at startup rather than surprising admission later.
func limitPair(total, perUser *int) (group.Limits, error) {
	maxTotal, err := limitFrom(total)
	if err != nil {
		return group.Limits{}, oops.Wrapf(err, "max-connections")
	}
	maxPerUser, err := limitFrom(perUser)
	if err != nil {
		return group.Limits{}, oops.Wrapf(err, "max-connections-per-user")
	}
	return group.Limits{MaxSessions: maxTotal, MaxSessionsPerUser: maxPerUser}, nil
}

func limitFrom(v *int) (group.Limit, error) {
	switch {
	case v == nil:
		return group.UnsetLimit(), nil
	case *v < 0:
		return group.UnsetLimit(), oops.Errorf("limit %d is negative", *v)
	case *v == 0:
		return group.Unlimited(), nil
	default:
		return group.Bounded(*v), nil
	}
}

func displayName(name, id string) string {
	if name == "" {
		return id
	}
	return name
}
