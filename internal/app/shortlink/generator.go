package shortlink

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/sqids/sqids-go"
)

// DefaultCodeLength 7 位 base62 约 3.5 万亿个码，千万级记录下碰撞概率可以忽略。
const DefaultCodeLength = 7

// sqids 的整数空间要放进 int64，62^10 是上限。
const maxSqidsLength = 10

// CodeGenerator 生成短码。
//
// preferredAlias 非空时原样返回（唯一性由 Service 先检查、由 Store 的唯一约束兜底）；
// 为空时返回新的随机码。实现不能访问存储，也不保证全局唯一。
type CodeGenerator interface {
	Generate(preferredAlias string) string
}

// RandomGenerator 用 crypto/rand 逐位生成定长 base62 码。
type RandomGenerator struct {
	length int
}

func NewRandomGenerator(length int) *RandomGenerator {
	if length <= 0 {
		length = DefaultCodeLength
	}
	return &RandomGenerator{length: length}
}

func (g *RandomGenerator) Generate(preferredAlias string) string {
	if preferredAlias != "" {
		return preferredAlias
	}
	return randomBase62(g.length)
}

// randomBase62 拒绝采样：字节 >= 248 丢弃，保证 62 个字符均匀分布。
func randomBase62(n int) string {
	var b strings.Builder
	b.Grow(n)
	buf := make([]byte, n+n/2)
	for b.Len() < n {
		// crypto/rand.Read 在 Go 1.24 不会返回错误
		_, _ = rand.Read(buf)
		for _, c := range buf {
			if c >= 248 {
				continue
			}
			b.WriteByte(alphabet[c%62])
			if b.Len() == n {
				break
			}
		}
	}
	return b.String()
}

// SqidsGenerator 在 [0, 62^length) 内随机取数，再用打乱字母表的 sqids 编码。
// sqids 自带屏蔽词表，输出一般为 length 或 length+1 位。
type SqidsGenerator struct {
	sq     *sqids.Sqids
	space  *big.Int
	length int
}

func NewSqidsGenerator(length int) (*SqidsGenerator, error) {
	if length <= 0 {
		length = DefaultCodeLength
	}
	if length > maxSqidsLength {
		length = maxSqidsLength
	}
	sq, err := sqids.New(sqids.Options{
		Alphabet:  "k3G7QAe51FCsiWrNOYBUwM6XzZvdLT4j9JhyHKg2cVbxfERq0mSoI8lDpunPat",
		MinLength: uint8(length),
	})
	if err != nil {
		return nil, fmt.Errorf("sqids init: %w", err)
	}
	space := new(big.Int).Exp(big.NewInt(62), big.NewInt(int64(length)), nil)
	return &SqidsGenerator{sq: sq, space: space, length: length}, nil
}

func (g *SqidsGenerator) Generate(preferredAlias string) string {
	if preferredAlias != "" {
		return preferredAlias
	}
	n, err := rand.Int(rand.Reader, g.space)
	if err != nil {
		return randomBase62(g.length)
	}
	id := n.Uint64()
	code, err := g.sq.Encode([]uint64{id})
	if err != nil || code == "" {
		slog.Warn("sqids encode failed, fallback to base62", "err", err)
		return padBase62(EncodeBase62(id), g.length)
	}
	return code
}

// NewGenerator 按配置名称选择实现："random"（默认）或 "sqids"。
func NewGenerator(kind string, length int) (CodeGenerator, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "random":
		return NewRandomGenerator(length), nil
	case "sqids":
		return NewSqidsGenerator(length)
	default:
		return nil, fmt.Errorf("unknown code generator %q", kind)
	}
}
