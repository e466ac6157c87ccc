package settings

import (
	"fmt"

	"github.com/sweeney/grow-controller/internal/store"
)

// Namespace is the store namespace holding settings records.
const Namespace = "settings"

func channelKey(name string) string { return "channel." + name }

// Save stages every record of u in st. The caller commits.
func Save(st store.Store, u Update) error {
	for _, ch := range u.Channels {
		if err := st.Set(Namespace, channelKey(ch.Name), ch); err != nil {
			return fmt.Errorf("save channel %s: %w", ch.Name, err)
		}
	}
	if u.Irrigation != nil {
		if err := st.Set(Namespace, IrrigationKey, u.Irrigation); err != nil {
			return fmt.Errorf("save irrigation: %w", err)
		}
	}
	return nil
}

// Load reads the persisted records for the given channels. Channels that were
// never saved are omitted.
func Load(st store.Store, specs []Spec) (Update, error) {
	var u Update
	for _, s := range specs {
		var ch Channel
		err := st.Get(Namespace, channelKey(s.Name), &ch)
		if store.IsNotFound(err) {
			continue
		}
		if err != nil {
			return Update{}, fmt.Errorf("load channel %s: %w", s.Name, err)
		}
		u.Channels = append(u.Channels, ch)
	}
	var irr Irrigation
	err := st.Get(Namespace, IrrigationKey, &irr)
	switch {
	case err == nil:
		u.Irrigation = &irr
	case !store.IsNotFound(err):
		return Update{}, fmt.Errorf("load irrigation: %w", err)
	}
	return u, nil
}
