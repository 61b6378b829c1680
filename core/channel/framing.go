package channel

import "musichud/core/codec"

// StripLengthPrefix 部分客户端会在包体前加 varint 长度，部分不会，协议里没有标志位区分。
// 若读到的 varint 恰好等于其后剩余字节数则视为长度前缀并消费，否则回退。
// 内容本身恰好以等长 varint 开头时也会被当作前缀，这是已知风险。
func StripLengthPrefix(r *codec.Reader) bool {
	if r.Remaining() == 0 {
		return false
	}
	start := r.Position()
	n, err := r.ReadVarInt()
	if err == nil && n >= 0 && int(n) == r.Remaining() {
		return true
	}
	r.Rewind(start)
	return false
}

// Frame 出站包体一律加 varint 长度前缀
func Frame(payload []byte) []byte {
	w := codec.NewWriter()
	w.WriteVarInt(int32(len(payload)))
	w.WriteRaw(payload)
	return w.Bytes()
}

// EncodeFrame 编码并加长度前缀
func EncodeFrame(p Packet) []byte {
	return Frame(EncodePayload(p))
}

// DecodeFrame 解码入站数据，兼容有无长度前缀两种形式
func DecodeFrame(kind Kind, data []byte) (Packet, error) {
	r := codec.NewReader(data)
	StripLengthPrefix(r)
	return Decode(kind, r)
}
