package device

import "fmt"

// Registry is the ordered set of attached devices. Devices are added at
// startup and never removed.
type Registry struct {
	devices []Device
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add appends d. Ids must be unique.
func (r *Registry) Add(d Device) error {
	if r.ByID(d.ID()) != nil {
		return fmt.Errorf("device %q already registered", d.ID())
	}
	r.devices = append(r.devices, d)
	return nil
}

// All returns the devices in registration order.
func (r *Registry) All() []Device { return r.devices }

// Len returns the number of devices.
func (r *Registry) Len() int { return len(r.devices) }

func (r *Registry) find(match func(Device) bool) Device {
	for _, d := range r.devices {
		if match(d) {
			return d
		}
	}
	return nil
}

// ByID returns the device with id, or nil.
func (r *Registry) ByID(id string) Device {
	return r.find(func(d Device) bool { return d.ID() == id })
}

// ByName returns the first device named name, or nil.
func (r *Registry) ByName(name string) Device {
	return r.find(func(d Device) bool { return d.Name() == name })
}

// ByTopic returns the first device on topic, or nil.
func (r *Registry) ByTopic(topic string) Device {
	if topic == "" {
		return nil
	}
	return r.find(func(d Device) bool { return d.Topic() == topic })
}
