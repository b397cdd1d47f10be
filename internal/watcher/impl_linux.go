//go:build linux

package watcher

import (
	"strconv"
	"time"

	"github.com/pilebones/go-udev/netlink"

	"github.com/Hara602/usbTop/internal/model"
	"github.com/Hara602/usbTop/internal/sysfs"
	"github.com/Hara602/usbTop/internal/sysutil"
)

type linuxWatcher struct {
	attrs  *sysfs.Source
	events chan model.USBEvent
	stop   chan struct{}
}

func newWatcher(attrs *sysfs.Source) DeviceWatcher {
	return &linuxWatcher{
		attrs:  attrs,
		events: make(chan model.USBEvent, 10),
		stop:   make(chan struct{}),
	}
}

func (w *linuxWatcher) Start() (<-chan model.USBEvent, error) {
	// 监听 UDEV 事件,连接 NETLINK_KOBJECT_UEVENT
	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		return nil, err
	}
	queue := make(chan netlink.UEvent)
	errChan := make(chan error)

	quit := conn.Monitor(queue, errChan, nil)

	go func() {
		// 确保退出时关闭连接
		defer conn.Close()

		// 在处理新事件前，先扫描已存在的设备
		go w.scanExisting()

		for {
			select {
			case <-w.stop:
				// 发送退出信号给 Monitor
				close(quit)
				return

			case <-errChan:
				// 忽略底层网络错误，继续尝试
				continue

			case uevent := <-queue:
				w.handleUdevEvent(uevent)
			}
		}
	}()
	return w.events, nil
}

func (w *linuxWatcher) Stop() {
	close(w.stop)
}

// scanExisting 开始监听前，把 sysfs 里已经在线的设备补发一遍
func (w *linuxWatcher) scanExisting() {
	for _, p := range w.attrs.Enumerate() {
		w.events <- model.USBEvent{
			Action:    "add",
			BusID:     p.BusID,
			DeviceID:  p.DeviceID,
			Patch:     p,
			TimeStamp: time.Now(),
		}
	}
}

// handleUdevEvent 只关心 usb_device 级别的插拔，
// 接口 (usb_interface) 和下游 block/hid 事件都忽略
func (w *linuxWatcher) handleUdevEvent(uevent netlink.UEvent) {
	if uevent.Env["SUBSYSTEM"] != "usb" || uevent.Env["DEVTYPE"] != "usb_device" {
		return
	}
	busID, devID, ok := parseAddress(uevent)
	if !ok {
		return
	}

	switch uevent.Action {
	case "add", "bind":
		go w.handleAdd(busID, devID)
	case "remove", "unbind":
		w.events <- model.USBEvent{
			Action:    "remove",
			BusID:     busID,
			DeviceID:  devID,
			TimeStamp: time.Now(),
		}
	}
}

func (w *linuxWatcher) handleAdd(busID uint16, devID uint8) {
	// uevent 到达时 sysfs 属性可能还没就绪，短暂重试
	var patch *model.AttrPatch
	for i := 0; i < 5; i++ {
		if patch = w.attrs.DevicePatch(busID, devID); patch != nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if patch == nil {
		sysutil.LogSugar.Warnf("device %d:%d appeared but sysfs attributes not readable", busID, devID)
		patch = &model.AttrPatch{BusID: busID, DeviceID: devID}
	}

	w.events <- model.USBEvent{
		Action:    "add",
		BusID:     busID,
		DeviceID:  devID,
		Patch:     patch,
		TimeStamp: time.Now(),
	}
}

// parseAddress 从 uevent 环境里取 BUSNUM/DEVNUM
func parseAddress(uevent netlink.UEvent) (uint16, uint8, bool) {
	bus, err1 := strconv.ParseUint(uevent.Env["BUSNUM"], 10, 16)
	dev, err2 := strconv.ParseUint(uevent.Env["DEVNUM"], 10, 8)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return uint16(bus), uint8(dev), true
}
