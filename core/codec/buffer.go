// Package codec 实现与客户端逐字节兼容的二进制编解码
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
)

// ErrMalformedPacket 解码越界或长度校验失败
var ErrMalformedPacket = errors.New("malformed packet")

const (
	// MaxStringLength 字符串最大字节数
	MaxStringLength = 32767
	maxVarIntBytes  = 5
)

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformedPacket, fmt.Sprintf(format, args...))
}

// ========== Writer ==========

// Writer 顺序写入缓冲区，写操作不会失败
type Writer struct {
	buf []byte
}

// NewWriter 创建 Writer
func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 64)}
}

// Bytes 返回已写入的数据
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len 已写入字节数
func (w *Writer) Len() int {
	return len(w.buf)
}

// WriteRaw 原样写入
func (w *Writer) WriteRaw(p []byte) {
	w.buf = append(w.buf, p...)
}

// WriteVarInt 写入 varint，负数按无符号 32 位处理
func (w *Writer) WriteVarInt(v int32) {
	u := uint32(v)
	for u >= 0x80 {
		w.buf = append(w.buf, byte(u)|0x80)
		u >>= 7
	}
	w.buf = append(w.buf, byte(u))
}

func (w *Writer) WriteInt32(v int32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(v))
}

func (w *Writer) WriteInt64(v int64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, uint64(v))
}

func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
		return
	}
	w.buf = append(w.buf, 0)
}

// WriteUUID 高 64 位在前
func (w *Writer) WriteUUID(id uuid.UUID) {
	w.buf = append(w.buf, id[:]...)
}

// WriteString varint 字节长度 + UTF-8
func (w *Writer) WriteString(s string) {
	w.WriteVarInt(int32(len(s)))
	w.buf = append(w.buf, s...)
}

// WriteEnum 写入枚举序号
func (w *Writer) WriteEnum(ordinal int) {
	w.WriteVarInt(int32(ordinal))
}

// WriteLongArray varint 长度 + 值
func (w *Writer) WriteLongArray(values []int64) {
	w.WriteVarInt(int32(len(values)))
	for _, v := range values {
		w.WriteInt64(v)
	}
}

// WriteBoundedLongArray varint 上限 + varint 长度 + 值
func (w *Writer) WriteBoundedLongArray(values []int64, maxSize int) {
	w.WriteVarInt(int32(maxSize))
	w.WriteLongArray(values)
}

// WriteTime 年月日时分秒各 int32，随后 int32 长度的时区 ID
func (w *Writer) WriteTime(t time.Time) {
	zone := t.Location().String()
	if t.Location() == time.Local || zone == "Local" {
		t = t.UTC()
		zone = "UTC"
	}
	w.WriteInt32(int32(t.Year()))
	w.WriteInt32(int32(t.Month()))
	w.WriteInt32(int32(t.Day()))
	w.WriteInt32(int32(t.Hour()))
	w.WriteInt32(int32(t.Minute()))
	w.WriteInt32(int32(t.Second()))
	w.WriteInt32(int32(len(zone)))
	w.buf = append(w.buf, zone...)
}

// ========== Reader ==========

// Reader 字节游标
type Reader struct {
	data []byte
	pos  int
}

// NewReader 创建 Reader
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Remaining 剩余可读字节数
func (r *Reader) Remaining() int {
	return len(r.data) - r.pos
}

// Position 当前读位置
func (r *Reader) Position() int {
	return r.pos
}

// Rewind 回退到指定位置
func (r *Reader) Rewind(pos int) {
	if pos < 0 {
		pos = 0
	}
	if pos > len(r.data) {
		pos = len(r.data)
	}
	r.pos = pos
}

// Rest 返回剩余数据但不移动游标
func (r *Reader) Rest() []byte {
	return r.data[r.pos:]
}

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, malformed("need %d bytes, %d remaining", n, r.Remaining())
	}
	p := r.data[r.pos : r.pos+n]
	r.pos += n
	return p, nil
}

func (r *Reader) ReadByte() (byte, error) {
	p, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return p[0], nil
}

// ReadVarInt 最多 5 字节
func (r *Reader) ReadVarInt() (int32, error) {
	var result uint32
	for i := 0; i < maxVarIntBytes; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		result |= uint32(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			return int32(result), nil
		}
	}
	return 0, malformed("varint too big")
}

func (r *Reader) ReadInt32() (int32, error) {
	p, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(p)), nil
}

func (r *Reader) ReadInt64() (int64, error) {
	p, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(p)), nil
}

func (r *Reader) ReadBool() (bool, error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

func (r *Reader) ReadUUID() (uuid.UUID, error) {
	p, err := r.take(16)
	if err != nil {
		return uuid.Nil, err
	}
	var id uuid.UUID
	copy(id[:], p)
	return id, nil
}

func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadVarInt()
	if err != nil {
		return "", err
	}
	if n < 0 || n > MaxStringLength {
		return "", malformed("string length %d out of range", n)
	}
	p, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	return string(p), nil
}

// ReadEnum 越界序号返回 0（第一个声明值）
func (r *Reader) ReadEnum(count int) (int, error) {
	v, err := r.ReadVarInt()
	if err != nil {
		return 0, err
	}
	if v < 0 || int(v) >= count {
		return 0, nil
	}
	return int(v), nil
}

// ReadLongArray 长度不得超过剩余字节数 / 8
func (r *Reader) ReadLongArray() ([]int64, error) {
	return r.ReadLongArrayMax(r.Remaining() / 8)
}

// ReadLongArrayMax 长度不得超过调用方给定的上限
func (r *Reader) ReadLongArrayMax(maxSize int) ([]int64, error) {
	n, err := r.ReadVarInt()
	if err != nil {
		return nil, err
	}
	if n < 0 || int(n) > maxSize {
		return nil, malformed("long array length %d exceeds %d", n, maxSize)
	}
	return r.readLongs(int(n))
}

// ReadBoundedLongArray 读取带上限字段的数组，上限只用于校验
func (r *Reader) ReadBoundedLongArray() ([]int64, error) {
	maxSize, err := r.ReadVarInt()
	if err != nil {
		return nil, err
	}
	n, err := r.ReadVarInt()
	if err != nil {
		return nil, err
	}
	if n < 0 || n > maxSize {
		return nil, malformed("long array length %d exceeds declared max %d", n, maxSize)
	}
	return r.readLongs(int(n))
}

func (r *Reader) readLongs(n int) ([]int64, error) {
	if r.Remaining() < n*8 {
		return nil, malformed("long array needs %d bytes, %d remaining", n*8, r.Remaining())
	}
	values := make([]int64, n)
	for i := range values {
		v, err := r.ReadInt64()
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

// ReadTime 读取秒级时间戳与时区
func (r *Reader) ReadTime() (time.Time, error) {
	var fields [6]int32
	for i := range fields {
		v, err := r.ReadInt32()
		if err != nil {
			return time.Time{}, err
		}
		fields[i] = v
	}
	zoneLen, err := r.ReadInt32()
	if err != nil {
		return time.Time{}, err
	}
	if zoneLen < 0 || zoneLen > MaxStringLength {
		return time.Time{}, malformed("zone length %d out of range", zoneLen)
	}
	zoneBytes, err := r.take(int(zoneLen))
	if err != nil {
		return time.Time{}, err
	}
	loc, err := loadZone(string(zoneBytes))
	if err != nil {
		return time.Time{}, malformed("zone %q: %v", zoneBytes, err)
	}

	year, month, day := int(fields[0]), int(fields[1]), int(fields[2])
	hour, minute, second := int(fields[3]), int(fields[4]), int(fields[5])
	if month < 1 || month > 12 || hour < 0 || hour > 23 || minute < 0 || minute > 59 || second < 0 || second > 59 {
		return time.Time{}, malformed("invalid time fields %v", fields)
	}
	t := time.Date(year, time.Month(month), day, hour, minute, second, 0, loc)
	if t.Day() != day {
		return time.Time{}, malformed("invalid day %d", day)
	}
	return t, nil
}

// loadZone 支持地区 ID（Asia/Shanghai）、偏移 ID（Z、+08:00）以及带前缀的偏移（GMT+08:00、UTC+8）
func loadZone(id string) (*time.Location, error) {
	if id == "Z" {
		return time.FixedZone(id, 0), nil
	}
	offset := id
	for _, prefix := range []string{"UTC", "GMT", "UT"} {
		if strings.HasPrefix(id, prefix) {
			offset = id[len(prefix):]
			if offset == "" {
				return time.FixedZone(id, 0), nil
			}
			break
		}
	}
	if strings.HasPrefix(offset, "+") || strings.HasPrefix(offset, "-") {
		seconds, err := parseOffset(offset)
		if err != nil {
			return nil, err
		}
		// 保留原 ID 作为时区名，重新编码时字节不变
		return time.FixedZone(id, seconds), nil
	}
	return time.LoadLocation(id)
}

// parseOffset 解析 ±H、±HH:MM 形式的偏移
func parseOffset(offset string) (int, error) {
	sign := 1
	if offset[0] == '-' {
		sign = -1
	}
	parts := strings.Split(offset[1:], ":")
	if len(parts) > 2 {
		return 0, fmt.Errorf("bad offset")
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 || hours > 18 {
		return 0, fmt.Errorf("bad offset")
	}
	minutes := 0
	if len(parts) > 1 {
		if minutes, err = strconv.Atoi(parts[1]); err != nil || minutes < 0 || minutes > 59 {
			return 0, fmt.Errorf("bad offset")
		}
	}
	return sign * (hours*3600 + minutes*60), nil
}

// ========== 列表 ==========

// WriteList 以固定 int32 长度前缀写入同类元素
func WriteList[T any](w *Writer, items []T, write func(*Writer, T)) {
	w.WriteInt32(int32(len(items)))
	for _, item := range items {
		write(w, item)
	}
}

// ReadList 读取 int32 长度前缀的列表，空列表返回 nil
func ReadList[T any](r *Reader, read func(*Reader) (T, error)) ([]T, error) {
	n, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	if n < 0 || int(n) > r.Remaining() {
		return nil, malformed("list length %d out of range", n)
	}
	if n == 0 {
		return nil, nil
	}
	items := make([]T, 0, n)
	for i := int32(0); i < n; i++ {
		item, err := read(r)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}
