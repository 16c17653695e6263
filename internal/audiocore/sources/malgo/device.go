package malgo

import (
	"encoding/hex"
	"runtime"
	"strings"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/audiodevicebuffer/internal/errors"
)

// ComponentMalgo identifies errors raised by the malgo driver
const ComponentMalgo = "malgo"

// DeviceInfo describes a capture or playback device.
type DeviceInfo struct {
	Index     int    `json:"index" yaml:"index"`
	Kind      string `json:"kind" yaml:"kind"`
	Name      string `json:"name" yaml:"name"`
	ID        string `json:"id" yaml:"id"`
	IsDefault bool   `json:"is_default" yaml:"is_default"`
}

// candidate is the part of malgo.DeviceInfo used for device selection.
type candidate struct {
	name      string
	id        string
	isDefault bool
}

// backendForPlatform returns the malgo backend for the current platform.
func backendForPlatform() (malgo.Backend, error) {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa, nil
	case "windows":
		return malgo.BackendWasapi, nil
	case "darwin":
		return malgo.BackendCoreaudio, nil
	default:
		return malgo.BackendNull, errors.Newf("unsupported operating system: %s", runtime.GOOS).
			Component(ComponentMalgo).
			Category(errors.CategoryAudioDevice).
			Context("os", runtime.GOOS).
			Build()
	}
}

func initContext(logProc malgo.LogProc) (*malgo.AllocatedContext, error) {
	backend, err := backendForPlatform()
	if err != nil {
		return nil, err
	}
	ctx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, logProc)
	if err != nil {
		return nil, errors.New(err).
			Component(ComponentMalgo).
			Category(errors.CategoryAudioDevice).
			Context("operation", "init_context").
			Context("backend", runtime.GOOS).
			Build()
	}
	return ctx, nil
}

func releaseContext(ctx *malgo.AllocatedContext) {
	_ = ctx.Uninit()
	ctx.Free()
}

// ListDevices returns the capture and playback devices of the platform backend.
func ListDevices() ([]DeviceInfo, error) {
	ctx, err := initContext(nil)
	if err != nil {
		return nil, err
	}
	defer releaseContext(ctx)

	var devices []DeviceInfo
	for _, kind := range []malgo.DeviceType{malgo.Capture, malgo.Playback} {
		infos, err := ctx.Devices(kind)
		if err != nil {
			return nil, errors.New(err).
				Component(ComponentMalgo).
				Category(errors.CategoryAudioDevice).
				Context("operation", "enumerate_devices").
				Context("kind", kindName(kind)).
				Build()
		}
		for i, c := range candidates(infos) {
			// Skip the discard/null device
			if strings.Contains(c.name, "Discard all samples") {
				continue
			}
			devices = append(devices, DeviceInfo{
				Index:     i,
				Kind:      kindName(kind),
				Name:      c.name,
				ID:        c.id,
				IsDefault: c.isDefault,
			})
		}
	}
	return devices, nil
}

// findDevice returns the device of the given kind matching name.
func findDevice(ctx *malgo.AllocatedContext, kind malgo.DeviceType, name string) (*malgo.DeviceInfo, error) {
	infos, err := ctx.Devices(kind)
	if err != nil {
		return nil, errors.New(err).
			Component(ComponentMalgo).
			Category(errors.CategoryAudioDevice).
			Context("operation", "enumerate_devices").
			Context("kind", kindName(kind)).
			Build()
	}
	idx, err := selectDevice(candidates(infos), name)
	if err != nil {
		return nil, errors.New(err).
			Component(ComponentMalgo).
			Category(errors.CategoryAudioDevice).
			Context("kind", kindName(kind)).
			Context("device_name", name).
			Build()
	}
	return &infos[idx], nil
}

func candidates(infos []malgo.DeviceInfo) []candidate {
	out := make([]candidate, len(infos))
	for i := range infos {
		id, err := hexToASCII(infos[i].ID.String())
		if err != nil {
			id = infos[i].ID.String()
		}
		out[i] = candidate{name: infos[i].Name(), id: id, isDefault: infos[i].IsDefault == 1}
	}
	return out
}

// selectDevice picks a device by name: default aliases, then exact name,
// then decoded ID, then substring of the name.
func selectDevice(devices []candidate, name string) (int, error) {
	if name == "" || name == "default" || name == "sysdefault" {
		for i := range devices {
			if devices[i].isDefault {
				return i, nil
			}
		}
		if len(devices) > 0 {
			return 0, nil
		}
	}

	for i := range devices {
		if devices[i].name == name {
			return i, nil
		}
	}
	for i := range devices {
		if devices[i].id == name {
			return i, nil
		}
	}
	for i := range devices {
		if strings.Contains(devices[i].name, name) {
			return i, nil
		}
	}

	return -1, errors.Newf("no matching audio device found for %q", name).
		Component(ComponentMalgo).
		Category(errors.CategoryValidation).
		Context("available_devices", len(devices)).
		Build()
}

func kindName(kind malgo.DeviceType) string {
	switch kind {
	case malgo.Capture:
		return "capture"
	case malgo.Playback:
		return "playback"
	case malgo.Duplex:
		return "duplex"
	default:
		return "unknown"
	}
}

// hexToASCII converts a hexadecimal string to an ASCII string
func hexToASCII(hexStr string) (string, error) {
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
