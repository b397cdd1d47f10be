package usbids

import (
	"bufio"
	"database/sql"
	"fmt"
	"io"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"
)

// Store usb.ids 厂商/产品名数据库的 sqlite 缓存。
// 只存静态元数据，不落任何流量历史。
type Store struct {
	db *sql.DB
}

// Open 打开 (或创建) 数据库并保证表结构存在
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS vendors (
		vid INTEGER PRIMARY KEY,
		name TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS products (
		vid INTEGER,
		pid INTEGER,
		name TEXT NOT NULL,
		PRIMARY KEY (vid, pid)
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return &Store{db: db}, nil
}

// Import 导入 usb.ids 文本格式：
//
//	1234  Vendor Name
//	<tab>abcd  Product Name
//
// 返回写入的条目数。设备 class 等后续小节 (hex 解析失败) 到达即停止。
func (s *Store) Import(r io.Reader) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	insVendor, err := tx.Prepare("INSERT OR REPLACE INTO vendors(vid, name) VALUES (?, ?)")
	if err != nil {
		return 0, err
	}
	defer insVendor.Close()
	insProduct, err := tx.Prepare("INSERT OR REPLACE INTO products(vid, pid, name) VALUES (?, ?, ?)")
	if err != nil {
		return 0, err
	}
	defer insProduct.Close()

	count := 0
	var curVendor int64 = -1
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "\t") {
			// 产品行，归属最近一个厂商
			if curVendor < 0 {
				continue
			}
			id, name, ok := splitIDLine(strings.TrimPrefix(line, "\t"))
			if !ok {
				continue
			}
			if _, err := insProduct.Exec(curVendor, id, name); err != nil {
				return count, fmt.Errorf("insert product: %w", err)
			}
			count++
			continue
		}

		id, name, ok := splitIDLine(line)
		if !ok {
			// 厂商列表之后是 class/subclass 等小节，遇到就结束
			break
		}
		curVendor = id
		if _, err := insVendor.Exec(id, name); err != nil {
			return count, fmt.Errorf("insert vendor: %w", err)
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("read usb.ids: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return count, fmt.Errorf("commit import: %w", err)
	}
	return count, nil
}

// splitIDLine 解析 "1234  Some Name" 形式的行
func splitIDLine(line string) (int64, string, bool) {
	if len(line) < 4 {
		return 0, "", false
	}
	id, err := strconv.ParseInt(line[:4], 16, 32)
	if err != nil {
		return 0, "", false
	}
	name := strings.TrimSpace(line[4:])
	if name == "" {
		return 0, "", false
	}
	return id, name, true
}

// Lookup 查厂商和产品名，实现 sysfs.NameResolver。
// 厂商命中而产品缺失时 product 返回空串。
func (s *Store) Lookup(vendorID, productID uint16) (vendor, product string, ok bool) {
	err := s.db.QueryRow("SELECT name FROM vendors WHERE vid = ?", vendorID).Scan(&vendor)
	if err != nil {
		return "", "", false
	}
	// 产品名可以没有
	s.db.QueryRow("SELECT name FROM products WHERE vid = ? AND pid = ?",
		vendorID, productID).Scan(&product)
	return vendor, product, true
}

func (s *Store) Close() error {
	return s.db.Close()
}
