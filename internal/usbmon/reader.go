package usbmon

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Hara602/usbTop/internal/model"
)

// 捕获源暂时无数据时的重试间隔。usbmon 是长活数据源，
// EOF 只表示"当前没有新记录"，不是流结束
const idleRetry = 10 * time.Millisecond

// Consumer 每成功解码一条记录回调一次，返回非 nil 错误则停止该读取循环
type Consumer func(*model.TransferEvent) error

// Reader 负责单条总线的捕获循环：打开 usbmon 端点，持续读取、
// 解码并投递给消费者。一个 Reader 只服务一个消费者。
type Reader struct {
	BusID     uint16
	Binary    bool
	path      string
	file      *os.File
	log       *zap.SugaredLogger
	stop      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewReader 打开总线对应的捕获端点，端点不存在视为配置错误直接失败
func NewReader(busID uint16, useBinary bool, log *zap.SugaredLogger) (*Reader, error) {
	return NewReaderPath(busID, useBinary, CapturePath(busID, useBinary), log)
}

// NewReaderPath 指定端点路径的构造方式，测试和非标准挂载点使用
func NewReaderPath(busID uint16, useBinary bool, path string, log *zap.SugaredLogger) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture endpoint %s: %w", path, err)
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Reader{
		BusID:  busID,
		Binary: useBinary,
		path:   path,
		file:   f,
		log:    log,
		stop:   make(chan struct{}),
	}, nil
}

// Run 执行捕获循环直到消费者报错、底层 I/O 失败或 Close 被调用。
// 单条记录解码失败只记日志并跳过。返回前保证释放文件句柄。
func (r *Reader) Run(consume Consumer) error {
	defer r.Close()
	if r.Binary {
		return r.runBinary(consume)
	}
	return r.runText(consume)
}

func (r *Reader) runText(consume Consumer) error {
	var pending strings.Builder
	buf := make([]byte, 4096)

	for {
		if r.stopped() {
			return nil
		}
		n, err := r.file.Read(buf)
		for _, c := range buf[:n] {
			if c != '\n' {
				pending.WriteByte(c)
				continue
			}
			line := pending.String()
			pending.Reset()
			if strings.TrimSpace(line) == "" {
				continue
			}
			ev, derr := DecodeText(line)
			if derr != nil {
				r.log.Debugf("skip malformed text record %q: %v", line, derr)
				continue
			}
			if cerr := consume(ev); cerr != nil {
				r.log.Infof("consumer stopped capture on bus %d: %v", r.BusID, cerr)
				return cerr
			}
		}
		if err == io.EOF {
			time.Sleep(idleRetry)
			continue
		}
		if err != nil {
			if r.stopped() {
				return nil
			}
			return fmt.Errorf("read %s: %w", r.path, err)
		}
	}
}

func (r *Reader) runBinary(consume Consumer) error {
	frame := make([]byte, binaryFrameSize)
	filled := 0

	for {
		if r.stopped() {
			return nil
		}
		n, err := r.file.Read(frame[filled:])
		filled += n
		if filled == binaryFrameSize {
			filled = 0
			ev, derr := DecodeBinary(frame)
			if derr != nil {
				r.log.Debugf("skip malformed binary frame on bus %d: %v", r.BusID, derr)
			} else if cerr := consume(ev); cerr != nil {
				r.log.Infof("consumer stopped capture on bus %d: %v", r.BusID, cerr)
				return cerr
			}
		}
		if err == io.EOF {
			time.Sleep(idleRetry)
			continue
		}
		if err != nil {
			if r.stopped() {
				return nil
			}
			return fmt.Errorf("read %s: %w", r.path, err)
		}
	}
}

// Close 幂等关闭，释放底层句柄并让下一次读取立即失败
func (r *Reader) Close() error {
	r.closeOnce.Do(func() {
		close(r.stop)
		r.closeErr = r.file.Close()
	})
	return r.closeErr
}

func (r *Reader) stopped() bool {
	select {
	case <-r.stop:
		return true
	default:
		return false
	}
}
