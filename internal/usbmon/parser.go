package usbmon

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Hara602/usbTop/internal/model"
)

// ErrTooShort 记录字段不足或二进制帧不满 64 字节
var ErrTooShort = errors.New("usbmon record too short")

// usbmon 二进制帧固定 64 字节头部
const binaryFrameSize = 64

// 二进制帧布局 (字节偏移，全部小端序，与主机字节序无关)
const (
	offURBID    = 0  // 8 字节 URB id
	offKind     = 8  // 1 字节事件类型 'S'/'C'/'E'
	offXferType = 9  // 1 字节传输类型 (下游未使用)
	offEndpoint = 10 // 低 7 位端点号，最高位为方向 (1=IN)
	offDevice   = 11 // 1 字节设备号
	offBus      = 12 // 2 字节总线号
	offTsSec    = 16 // 8 字节秒
	offTsUsec   = 24 // 4 字节微秒
	offStatus   = 28 // 4 字节有符号状态
	offLength   = 32 // 4 字节数据长度
)

// DecodeText 解析 usbmon 文本格式的一行。
// 格式: URB_TAG TIMESTAMP EVENT ADDR:BUS:DEV:EP STATUS LENGTH [= HEXDATA...]
// 例如: ffff88007c861a00 2389264913 S Bo:1:001:0 -115 31 = 55534243 ...
func DecodeText(line string) (*model.TransferEvent, error) {
	parts := strings.Fields(line)
	if len(parts) < 7 {
		return nil, ErrTooShort
	}

	tag := parts[0]

	// 时间戳字段是内核自启动以来的微秒数，只校验不使用，
	// 统一用解码时刻的墙钟时间，保证进程内事件有序即可
	if _, err := strconv.ParseUint(parts[1], 10, 64); err != nil {
		return nil, fmt.Errorf("invalid timestamp %q: %w", parts[1], err)
	}

	kind, err := parseKind(parts[2][0])
	if err != nil {
		return nil, err
	}

	// 地址字段: Bo:1:001:0 (传输类型+方向:总线:设备:端点)
	addr := strings.Split(parts[3], ":")
	if len(addr) != 4 || len(addr[0]) < 2 {
		return nil, fmt.Errorf("invalid address field %q", parts[3])
	}
	dir := model.DirOut
	if addr[0][1] == 'i' {
		dir = model.DirIn
	}
	busID, err := strconv.ParseUint(addr[1], 10, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid bus id %q: %w", addr[1], err)
	}
	devID, err := strconv.ParseUint(addr[2], 10, 8)
	if err != nil {
		return nil, fmt.Errorf("invalid device id %q: %w", addr[2], err)
	}
	endpoint, err := strconv.ParseUint(addr[3], 10, 8)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", addr[3], err)
	}

	status, err := strconv.ParseInt(parts[4], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid status %q: %w", parts[4], err)
	}
	length, err := strconv.ParseUint(parts[5], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid data length %q: %w", parts[5], err)
	}

	// "=" 之后是十六进制数据组
	var payload []byte
	if len(parts) > 7 && parts[6] == "=" {
		payload = parseHexGroups(parts[7:])
	}

	return &model.TransferEvent{
		Timestamp: time.Now(),
		Tag:       tag,
		Kind:      kind,
		BusID:     uint16(busID),
		DeviceID:  uint8(devID),
		Endpoint:  uint8(endpoint),
		Direction: dir,
		Length:    uint32(length),
		Status:    int32(status),
		Payload:   payload,
	}, nil
}

// DecodeBinary 解析 usbmon 二进制格式的一帧 (mon_bin_hdr)。
// setup/数据区暂不解析。
func DecodeBinary(frame []byte) (*model.TransferEvent, error) {
	if len(frame) < binaryFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooShort, len(frame))
	}

	kind, err := parseKind(frame[offKind])
	if err != nil {
		return nil, err
	}

	urbID := binary.LittleEndian.Uint64(frame[offURBID:])
	endpoint := frame[offEndpoint] & 0x7F
	dir := model.DirOut
	if frame[offEndpoint]&0x80 != 0 {
		dir = model.DirIn
	}
	devID := frame[offDevice]
	busID := binary.LittleEndian.Uint16(frame[offBus:])

	tsSec := binary.LittleEndian.Uint64(frame[offTsSec:])
	tsUsec := binary.LittleEndian.Uint32(frame[offTsUsec:])
	ts := time.Now()
	// 非法时间戳回退到当前时间
	if int64(tsSec) >= 0 && tsUsec < 1_000_000 {
		ts = time.Unix(int64(tsSec), int64(tsUsec)*1000)
	}

	status := int32(binary.LittleEndian.Uint32(frame[offStatus:]))
	length := binary.LittleEndian.Uint32(frame[offLength:])

	return &model.TransferEvent{
		Timestamp: ts,
		Tag:       fmt.Sprintf("%016x", urbID),
		Kind:      kind,
		BusID:     busID,
		DeviceID:  devID,
		Endpoint:  endpoint,
		Direction: dir,
		Length:    length,
		Status:    status,
	}, nil
}

func parseKind(c byte) (model.EventKind, error) {
	switch c {
	case 'S':
		return model.Submission, nil
	case 'C':
		return model.Callback, nil
	case 'E':
		return model.ErrorEvent, nil
	default:
		return 0, fmt.Errorf("invalid URB event type %q", c)
	}
}

// parseHexGroups 解析 "55534243 1f000000 ..." 形式的数据组，
// 畸形的组直接跳过，不影响整条记录
func parseHexGroups(groups []string) []byte {
	var data []byte
	for _, g := range groups {
		if len(g)%2 != 0 {
			continue
		}
		for i := 0; i+2 <= len(g); i += 2 {
			b, err := strconv.ParseUint(g[i:i+2], 16, 8)
			if err != nil {
				continue
			}
			data = append(data, byte(b))
		}
	}
	return data
}
