package ui

import (
	"fmt"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/Hara602/usbTop/internal/topology"
)

// 底部波形图保留的采样点数
const historySize = 90

// View 终端展示层。只通过 Manager 的只读快照取数，从不改核心状态。
type View struct {
	mgr *topology.Manager

	devTable *widgets.Table
	busTable *widgets.Table
	slRx     *widgets.Sparkline
	slTx     *widgets.Sparkline
	sgRx     *widgets.SparklineGroup
	sgTx     *widgets.SparklineGroup
	grid     *ui.Grid

	rxHistory []float64
	txHistory []float64
}

func New(mgr *topology.Manager) *View {
	v := &View{mgr: mgr}

	// [左上] 设备表
	v.devTable = widgets.NewTable()
	v.devTable.Title = " [ Devices ] "
	v.devTable.RowSeparator = false
	v.devTable.TextStyle = ui.NewStyle(ui.ColorWhite)
	v.devTable.BorderStyle.Fg = ui.ColorGreen

	// [右上] 总线表
	v.busTable = widgets.NewTable()
	v.busTable.Title = " [ Buses ] "
	v.busTable.RowSeparator = false
	v.busTable.TextStyle = ui.NewStyle(ui.ColorWhite)
	v.busTable.BorderStyle.Fg = ui.ColorYellow

	// [左下] 接收波形
	v.slRx = widgets.NewSparkline()
	v.slRx.LineColor = ui.ColorGreen
	v.sgRx = widgets.NewSparklineGroup(v.slRx)
	v.sgRx.Title = " RX "
	v.sgRx.BorderStyle.Fg = ui.ColorGreen

	// [右下] 发送波形
	v.slTx = widgets.NewSparkline()
	v.slTx.LineColor = ui.ColorYellow
	v.sgTx = widgets.NewSparklineGroup(v.slTx)
	v.sgTx.Title = " TX "
	v.sgTx.BorderStyle.Fg = ui.ColorYellow

	v.grid = ui.NewGrid()
	v.grid.Set(
		ui.NewRow(0.65,
			ui.NewCol(0.6, v.devTable),
			ui.NewCol(0.4, v.busTable),
		),
		ui.NewRow(0.35,
			ui.NewCol(0.5, v.sgRx),
			ui.NewCol(0.5, v.sgTx),
		),
	)
	return v
}

// Run 进入渲染循环，q / Ctrl+C 退出
func (v *View) Run(refresh time.Duration) error {
	if err := ui.Init(); err != nil {
		return fmt.Errorf("init termui: %w", err)
	}
	defer ui.Close()

	w, h := ui.TerminalDimensions()
	v.grid.SetRect(0, 0, w, h)

	uiEvents := ui.PollEvents()
	ticker := time.NewTicker(refresh)
	defer ticker.Stop()

	for {
		select {
		case e := <-uiEvents:
			if e.Type == ui.KeyboardEvent && (e.ID == "q" || e.ID == "<C-c>") {
				return nil
			}
			if e.Type == ui.ResizeEvent {
				payload := e.Payload.(ui.Resize)
				v.grid.SetRect(0, 0, payload.Width, payload.Height)
				ui.Clear()
				ui.Render(v.grid)
			}
		case <-ticker.C:
			v.refresh()
			ui.Render(v.grid)
		}
	}
}

// refresh 取一次拓扑快照并填充所有组件
func (v *View) refresh() {
	snapshot := v.mgr.Snapshot()

	var totalRx, totalTx float64

	v.devTable.Rows = [][]string{{"Bus:Dev", "ID", "Name", "Speed", "RX", "TX", "Busy", ""}}
	for _, bus := range snapshot {
		for _, d := range bus.Devices {
			totalRx += d.RxBps
			totalTx += d.TxBps
			name := d.Product
			if name == "" {
				name = d.Vendor
			}
			if name == "" {
				name = "Unknown Device"
			}
			if d.Disconnected {
				name += " (gone)"
			}
			v.devTable.Rows = append(v.devTable.Rows, []string{
				fmt.Sprintf("%d:%03d", d.BusID, d.DeviceID),
				fmt.Sprintf("%04x:%04x", d.VendorID, d.ProductID),
				name,
				shortSpeed(d.Speed.Mbps()),
				formatRate(d.RxBps),
				formatRate(d.TxBps),
				fmt.Sprintf("%5.1f%%", d.Busy),
				indicatorSymbol(d.Indicator),
			})
		}
	}

	v.busTable.Rows = [][]string{{"Bus", "Speed", "Busy", "Busy(raw)", "Limited"}}
	for _, bus := range snapshot {
		v.busTable.Rows = append(v.busTable.Rows, []string{
			fmt.Sprintf("%d", bus.ID),
			shortSpeed(bus.Speed.Mbps()),
			fmt.Sprintf("%5.1f%%", bus.BusyPractical),
			fmt.Sprintf("%5.1f%%", bus.BusyTheoretical),
			fmt.Sprintf("%d", bus.LimitedCount),
		})
	}

	// 波形图自然生长到上限后再滚动
	if len(v.rxHistory) >= historySize {
		v.rxHistory = v.rxHistory[1:]
		v.txHistory = v.txHistory[1:]
	}
	v.rxHistory = append(v.rxHistory, totalRx)
	v.txHistory = append(v.txHistory, totalTx)

	peakRx, peakTx := 0.0, 0.0
	for _, r := range v.rxHistory {
		if r > peakRx {
			peakRx = r
		}
	}
	for _, t := range v.txHistory {
		if t > peakTx {
			peakTx = t
		}
	}

	v.slRx.Data = v.rxHistory
	v.slTx.Data = v.txHistory
	v.sgRx.Title = fmt.Sprintf(" RX (now: %s | peak: %s) ", formatRate(totalRx), formatRate(peakRx))
	v.sgTx.Title = fmt.Sprintf(" TX (now: %s | peak: %s) ", formatRate(totalTx), formatRate(peakTx))
}

func indicatorSymbol(ind topology.SpeedIndicator) string {
	switch ind.Kind {
	case topology.IndicatorHighUtilization:
		return "⚡"
	case topology.IndicatorLimitedByBus:
		return "🔺" + shortSpeed(ind.Capability.Mbps())
	default:
		return ""
	}
}

func shortSpeed(mbps float64) string {
	if mbps <= 0 {
		return "?"
	}
	if mbps >= 1000 {
		return fmt.Sprintf("%.0fG", mbps/1000)
	}
	if mbps < 10 {
		return fmt.Sprintf("%.1fM", mbps)
	}
	return fmt.Sprintf("%.0fM", mbps)
}

// formatRate 字节速率转人类可读单位
func formatRate(bps float64) string {
	switch {
	case bps >= 1_000_000_000:
		return fmt.Sprintf("%.1f GB/s", bps/1_000_000_000)
	case bps >= 1_000_000:
		return fmt.Sprintf("%.1f MB/s", bps/1_000_000)
	case bps >= 1_000:
		return fmt.Sprintf("%.1f KB/s", bps/1_000)
	default:
		return fmt.Sprintf("%.0f B/s", bps)
	}
}
