package control

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sweeney/grow-controller/internal/mqtt"
	"github.com/sweeney/grow-controller/internal/settings"
	"github.com/sweeney/grow-controller/internal/store"
)

// ErrInvalidPayload marks a settings payload that could not be decoded at all.
var ErrInvalidPayload = errors.New("invalid settings payload")

// Lifecycle is notified once valid settings have been persisted.
type Lifecycle interface {
	SettingsReceived() error
}

// SettingsHandler applies inbound settings payloads.
type SettingsHandler struct {
	Registry  *Registry
	Store     store.Store
	Lifecycle Lifecycle   // may be nil
	Client    mqtt.Client // may be nil
	Now       func() time.Time
}

// Result is the outcome of one settings payload.
type Result struct {
	Applied []string              `json:"applied"`
	Errors  []settings.FieldError `json:"errors,omitempty"`
}

// Handle validates payload, applies and persists the valid part, and reports
// the rejected part. It returns an error only when the payload is malformed
// or persisting failed.
func (h *SettingsHandler) Handle(payload []byte) (Result, error) {
	u, fieldErrs, err := settings.Parse(payload, h.Registry.Specs())
	if err != nil {
		h.reject([]string{err.Error()})
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	res := Result{Errors: fieldErrs}
	if len(fieldErrs) > 0 {
		msgs := make([]string, len(fieldErrs))
		for i, fe := range fieldErrs {
			msgs[i] = fe.Error()
		}
		h.reject(msgs)
	}
	if u.Empty() {
		return res, nil
	}

	h.apply(u)
	for _, ch := range u.Channels {
		res.Applied = append(res.Applied, ch.Name)
	}
	if u.Irrigation != nil {
		res.Applied = append(res.Applied, settings.IrrigationKey)
	}

	if err := settings.Save(h.Store, u); err != nil {
		return res, err
	}
	if err := h.Store.Commit(); err != nil {
		return res, fmt.Errorf("commit settings: %w", err)
	}
	log.Printf("settings: applied %v", res.Applied)
	if h.Lifecycle != nil {
		if err := h.Lifecycle.SettingsReceived(); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (h *SettingsHandler) apply(u settings.Update) {
	for _, s := range u.Channels {
		if ch, ok := h.Registry.Channel(s.Name); ok {
			ch.Apply(s)
		}
	}
	if u.Irrigation != nil {
		h.Registry.ApplyIrrigation(*u.Irrigation)
	}
}

func (h *SettingsHandler) reject(msgs []string) {
	log.Printf("settings: rejected %v", msgs)
	if h.Client == nil {
		return
	}
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	ev := mqtt.SystemEvent{Timestamp: now(), Event: "SETTINGS_REJECTED", Errors: msgs}
	if err := h.Client.PublishSystem(ev); err != nil {
		log.Printf("settings: publish rejection: %v", err)
	}
}

// Restore applies the persisted settings at boot. It returns whether anything
// was restored.
func (h *SettingsHandler) Restore() (bool, error) {
	u, err := settings.Load(h.Store, h.Registry.Specs())
	if err != nil {
		return false, err
	}
	h.apply(u)
	if !u.Empty() {
		log.Printf("settings: restored %d channels (irrigation=%v)", len(u.Channels), u.Irrigation != nil)
	}
	return !u.Empty(), nil
}
