package api

import (
	"context"

	"ecocontrol/internal/model"
	"ecocontrol/internal/store"
)

// overlay is a repository view with unsaved configuration entries applied
// on top, used to validate changes and to run what-if forecasts.
type overlay struct {
	store.Repository
	entries []model.ConfigEntry
}

func (o overlay) DeviceConfig(ctx context.Context) ([]model.ConfigEntry, error) {
	base, err := o.Repository.DeviceConfig(ctx)
	if err != nil {
		return nil, err
	}
	return merge(base, o.entries, func(e model.ConfigEntry) bool { return e.DeviceID != 0 }), nil
}

func (o overlay) SystemConfig(ctx context.Context) ([]model.ConfigEntry, error) {
	base, err := o.Repository.SystemConfig(ctx)
	if err != nil {
		return nil, err
	}
	return merge(base, o.entries, func(e model.ConfigEntry) bool { return e.DeviceID == 0 }), nil
}

func merge(base, changes []model.ConfigEntry, keep func(model.ConfigEntry) bool) []model.ConfigEntry {
	out := append([]model.ConfigEntry(nil), base...)
	for _, c := range changes {
		if !keep(c) {
			continue
		}
		replaced := false
		for i := range out {
			if out[i].DeviceID == c.DeviceID && out[i].Key == c.Key {
				out[i].Value = c.Value
				if c.ValueType != "" {
					out[i].ValueType = c.ValueType
				}
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, c)
		}
	}
	return out
}
