//go:build windows

package watcher

import (
	"github.com/Hara602/usbTop/internal/model"
	"github.com/Hara602/usbTop/internal/sysfs"
)

type winWatcher struct{}

func newWatcher(_ *sysfs.Source) DeviceWatcher              { return &winWatcher{} }
func (w *winWatcher) Start() (<-chan model.USBEvent, error) { return nil, nil }
func (w *winWatcher) Stop()                                 {}
