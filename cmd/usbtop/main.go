package main

import (
	"flag"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/Hara602/usbTop/internal/model"
	"github.com/Hara602/usbTop/internal/sysfs"
	"github.com/Hara602/usbTop/internal/sysutil"
	"github.com/Hara602/usbTop/internal/topology"
	"github.com/Hara602/usbTop/internal/ui"
	"github.com/Hara602/usbTop/internal/usbids"
	"github.com/Hara602/usbTop/internal/usbmon"
	"github.com/Hara602/usbTop/internal/watcher"
)

func main() {
	var (
		useBinary = flag.Bool("binary", true, "Capture via the binary usbmon endpoint instead of text")
		refresh   = flag.Uint("refresh", 1000, "UI refresh interval in milliseconds")
		busList   = flag.String("buses", "", "Comma-separated bus ids to monitor (default: all)")
		idsPath   = flag.String("ids", "", "usb.ids file to import into the name database")
		dbPath    = flag.String("db", "usbids.db", "Path of the vendor/product name database")
		verbose   = flag.Bool("verbose", false, "Enable debug logging")
	)
	flag.Parse()

	sysutil.InitLogger(*verbose)
	defer sysutil.Log.Sync()

	// usbmon 的 debugfs 端点一般只有 root 可读
	if os.Geteuid() != 0 {
		sysutil.LogSugar.Warn("not running as root, usbmon capture endpoints may be unreadable")
	}

	status, err := usbmon.CheckStatus()
	if err != nil {
		sysutil.Log.Fatal("usbmon probe failed", zap.Error(err))
	}
	if !status.Available {
		sysutil.LogSugar.Error(usbmon.SetupInstructions())
		os.Exit(1)
	}

	buses, err := selectBuses(*busList, status.Buses)
	if err != nil {
		sysutil.Log.Fatal("invalid -buses", zap.Error(err))
	}
	if len(buses) == 0 {
		sysutil.Log.Fatal("no USB buses to monitor")
	}
	sysutil.LogSugar.Infof("monitoring buses %v", buses)

	// 厂商/产品名数据库，打不开只是少了名字兜底，不影响监控
	var resolver sysfs.NameResolver
	if store, err := usbids.Open(*dbPath); err != nil {
		sysutil.Log.Warn("usb.ids database unavailable", zap.Error(err))
	} else {
		defer store.Close()
		if *idsPath != "" {
			if n, err := importIDs(store, *idsPath); err != nil {
				sysutil.Log.Warn("usb.ids import failed", zap.Error(err))
			} else {
				sysutil.LogSugar.Infof("imported %d usb.ids entries", n)
			}
		}
		resolver = store
	}

	attrs := sysfs.NewSource(resolver)
	mgr := topology.NewManager(attrs)

	// 每条总线一个独立的捕获循环，互不影响
	readers := make([]*usbmon.Reader, 0, len(buses))
	for _, bus := range buses {
		r, err := usbmon.NewReader(bus, *useBinary, sysutil.LogSugar)
		if err != nil {
			sysutil.Log.Error("skip bus, capture endpoint unavailable",
				zap.Uint16("bus", bus), zap.Error(err))
			continue
		}
		readers = append(readers, r)
		go func(r *usbmon.Reader) {
			if err := r.Run(func(ev *model.TransferEvent) error {
				mgr.Record(ev)
				return nil
			}); err != nil {
				sysutil.Log.Error("capture loop terminated",
					zap.Uint16("bus", r.BusID), zap.Error(err))
			}
		}(r)
	}
	if len(readers) == 0 {
		sysutil.Log.Fatal("no capture endpoint could be opened")
	}
	defer func() {
		for _, r := range readers {
			r.Close()
		}
	}()

	// 插拔事件喂给拓扑模型
	devWatcher := watcher.New(attrs)
	usbEvents, err := devWatcher.Start()
	if err != nil {
		sysutil.Log.Fatal("udev watcher init failed", zap.Error(err))
	}
	defer devWatcher.Stop()

	stop := make(chan struct{})
	defer close(stop)
	go maintain(mgr, usbEvents, stop)

	// 捕获操作系统信号，优雅退出
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, unix.SIGINT, unix.SIGTERM)

	done := make(chan error, 1)
	go func() {
		done <- ui.New(mgr).Run(time.Duration(*refresh) * time.Millisecond)
	}()

	select {
	case err := <-done:
		if err != nil {
			sysutil.Log.Fatal("UI failed", zap.Error(err))
		}
	case <-sigCh:
		sysutil.Log.Info("shutting down...")
	}
}

// maintain 后台维护循环：应用插拔事件、定期刷新总线速率、清理离线设备
func maintain(mgr *topology.Manager, usbEvents <-chan model.USBEvent, stop <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return

		case ev := <-usbEvents:
			switch ev.Action {
			case "add":
				if ev.Patch != nil {
					mgr.Apply(ev.Patch)
				}
				sysutil.LogSugar.Debugf("device %d:%d connected", ev.BusID, ev.DeviceID)
			case "remove":
				mgr.MarkDisconnected(ev.BusID, ev.DeviceID, ev.TimeStamp)
				sysutil.LogSugar.Debugf("device %d:%d removed", ev.BusID, ev.DeviceID)
			}

		case <-ticker.C:
			mgr.UpdateBusSpeeds()
			mgr.Cleanup(time.Now())
		}
	}
}

// selectBuses 解析 -buses，为空时取探测到的全部总线 (剔除 0 号全总线伪端点)
func selectBuses(arg string, available []uint16) ([]uint16, error) {
	if arg == "" {
		var buses []uint16
		for _, b := range available {
			if b != 0 {
				buses = append(buses, b)
			}
		}
		return buses, nil
	}
	var buses []uint16
	for _, part := range strings.Split(arg, ",") {
		n, err := strconv.ParseUint(strings.TrimSpace(part), 10, 16)
		if err != nil {
			return nil, err
		}
		buses = append(buses, uint16(n))
	}
	return buses, nil
}

func importIDs(store *usbids.Store, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return store.Import(f)
}
