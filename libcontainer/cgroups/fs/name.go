package fs

import (
	"github.com/vortex/libcontainer/cgroups"
	"github.com/vortex/libcontainer/configs"
)

// NameGroup is a hierarchy without controllers, such as the unified
// hierarchy of a hybrid setup. It is joined but never configured.
type NameGroup struct {
	GroupName string
}

func (s *NameGroup) Name() string {
	return s.GroupName
}

func (s *NameGroup) Set(_ string, _ *configs.Resources) error {
	return nil
}

func (s *NameGroup) GetStats(_ string, _ *cgroups.Stats) error {
	return nil
}
