// Package ledger 生成展示给用户的链上风格标识。
// 形如以太坊合约地址与交易哈希，实际只是随机字符串，背后没有区块链。
package ledger

import (
	"crypto/rand"
	"regexp"
)

const hexDigits = "0123456789abcdef"

const (
	ContractAddressDigits = 40
	TxHashDigits          = 64
)

var (
	contractAddressPattern = regexp.MustCompile(`^0x[0-9a-f]{40}$`)
	txHashPattern          = regexp.MustCompile(`^0x[0-9a-f]{64}$`)
)

// OpaqueID 返回 "0x" 加 n 位小写十六进制数字
// 每位取随机字节的低 4 位，256 是 16 的倍数，分布均匀
func OpaqueID(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand.Read 在受支持的平台上不会返回错误
		panic("ledger: crypto/rand unavailable: " + err.Error())
	}
	out := make([]byte, 2+n)
	out[0], out[1] = '0', 'x'
	for i, b := range buf {
		out[2+i] = hexDigits[b&0x0f]
	}
	return string(out)
}

// NewContractAddress 新选举的 40 位合约地址
func NewContractAddress() string { return OpaqueID(ContractAddressDigits) }

// NewTxHash 新投票的 64 位交易哈希
func NewTxHash() string { return OpaqueID(TxHashDigits) }

// IsContractAddress 校验合约地址格式
func IsContractAddress(s string) bool { return contractAddressPattern.MatchString(s) }

// IsTxHash 校验交易哈希格式，用于投票成功页的 tx 参数
func IsTxHash(s string) bool { return txHashPattern.MatchString(s) }
