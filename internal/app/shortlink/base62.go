package shortlink

// Base62 把整数编码成短字符串，生成器在 sqids 失败时用它兜底。
//
// 注意：纯编码不做打乱，顺序 ID 直接编码容易被枚举；这里的输入都是随机数。
const alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// EncodeBase62 将正整数编码为 Base62 字符串。
// 约定：0 编码为 "0"。
func EncodeBase62(n uint64) string {
	if n == 0 {
		return "0"
	}

	var buf [11]byte // 62^11 > 2^64
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = alphabet[n%62]
		n /= 62
	}
	return string(buf[i:])
}

// padBase62 左侧补 '0' 到固定长度，保证随机码长度一致。
func padBase62(s string, length int) string {
	if len(s) >= length {
		return s
	}
	buf := make([]byte, length)
	pad := length - len(s)
	for i := 0; i < pad; i++ {
		buf[i] = alphabet[0]
	}
	copy(buf[pad:], s)
	return string(buf)
}
