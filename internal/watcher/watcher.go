package watcher

import (
	"github.com/Hara602/usbTop/internal/model"
	"github.com/Hara602/usbTop/internal/sysfs"
)

// DeviceWatcher 定义接口
type DeviceWatcher interface {
	Start() (<-chan model.USBEvent, error)
	Stop()
}

func New(attrs *sysfs.Source) DeviceWatcher {
	return newWatcher(attrs)
}
