package chooser

import (
	"fmt"

	"github.com/joeycumines/go-arbiter/internal/behavior"
)

// Toggles is a set of enable/disable requests for a chooser's entries.
//
// Stages apply in a fixed order, each later stage overriding earlier ones
// for the entries it affects: enable-all, disable-by-group,
// enable-by-group, disable-by-name, enable-by-name.
type Toggles struct {
	EnableAll     bool
	DisableGroups behavior.GroupSet
	EnableGroups  behavior.GroupSet
	DisableNames  []behavior.ID
	EnableNames   []behavior.ID
}

// Apply applies t. Names that are not entries of the chooser are an error,
// and nothing is changed in that case.
func (c *Chooser) Apply(t Toggles) error {
	for _, names := range [][]behavior.ID{t.DisableNames, t.EnableNames} {
		for _, id := range names {
			if _, ok := c.index[id]; !ok {
				return fmt.Errorf("chooser %s: toggle: %w: %s", c.name, behavior.ErrUnknownUnit, id)
			}
		}
	}

	if t.EnableAll {
		for i := range c.entries {
			c.entries[i].Enabled = true
		}
	}
	c.setByGroup(t.DisableGroups, false)
	c.setByGroup(t.EnableGroups, true)
	for _, id := range t.DisableNames {
		c.entries[c.index[id]].Enabled = false
	}
	for _, id := range t.EnableNames {
		c.entries[c.index[id]].Enabled = true
	}
	return nil
}

// DisableAll disables every entry.
func (c *Chooser) DisableAll() {
	for i := range c.entries {
		c.entries[i].Enabled = false
	}
}

func (c *Chooser) setByGroup(groups behavior.GroupSet, enabled bool) {
	if groups == 0 {
		return
	}
	for i, e := range c.entries {
		if c.registry.MustGet(e.ID).Groups().Intersects(groups) {
			c.entries[i].Enabled = enabled
		}
	}
}
