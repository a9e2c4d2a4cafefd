package input

import (
	"context"
	"fmt"
	"time"

	"github.com/gethiox/keymapper/internal/pkg/logger"
	"go.uber.org/zap"
)

// DeviceChange reports device appearance or removal
type DeviceChange struct {
	Device  Device
	Removed bool
}

func fetchDevices() ([]Device, error) {
	infos, err := GetHandlers()
	if err != nil {
		return nil, err
	}
	return Normalize(infos), nil
}

// ListDevices returns currently connected devices
func ListDevices() ([]Device, error) {
	return fetchDevices()
}

// MonitorNewDevices polls the system for connected devices every rate period, channel is closed when ctx is done
func MonitorNewDevices(ctx context.Context, rate time.Duration) <-chan DeviceChange {
	return monitorDevices(ctx, rate, fetchDevices)
}

func monitorDevices(ctx context.Context, rate time.Duration, fetch func() ([]Device, error)) <-chan DeviceChange {
	var devChan = make(chan DeviceChange)

	var trackedDevs = make(map[PhysicalID]Device)

	go func() {
		defer close(devChan)
		log.Info("Monitor new devices engaged", logger.Debug)
		defer log.Info("Monitor new devices disengaged", logger.Debug)

		timer := time.NewTimer(0)
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}

			current, err := fetch()
			if err != nil {
				log.Info(fmt.Sprintf("device discovery failed: %v", err), logger.Warning)
				timer.Reset(rate)
				continue
			}

			var changes []DeviceChange
			seen := make(map[PhysicalID]bool, len(current))
			for _, d := range current {
				seen[d.PhysicalUUID()] = true
				if _, ok := trackedDevs[d.PhysicalUUID()]; !ok {
					trackedDevs[d.PhysicalUUID()] = d
					changes = append(changes, DeviceChange{Device: d})
					log.Info("New device", zap.String("device_name", d.Name), zap.String("device_type", d.DeviceType.String()), logger.Info)
				}
			}
			for id, d := range trackedDevs {
				if !seen[id] {
					delete(trackedDevs, id)
					changes = append(changes, DeviceChange{Device: d, Removed: true})
					log.Info("Device removed", zap.String("device_name", d.Name), logger.Info)
				}
			}

			for _, c := range changes {
				select {
				case devChan <- c:
				case <-ctx.Done():
					return
				}
			}
			timer.Reset(rate)
		}
	}()

	return devChan
}
