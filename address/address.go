package address

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Size 地址字节长度
const Size = 32

// PollNamespace 所有投票相关账户的命名空间前缀
const PollNamespace = "poll"

// programDomain 派生哈希使用的域分隔密钥，保证与其他系统的派生结果不冲突
var programDomain = []byte("voting-workshop/accounts/v1")

// ErrInvalidAddress 地址格式错误
var ErrInvalidAddress = errors.New("invalid account address")

// Address 由命名空间和键字段确定性派生出的账户地址
type Address [Size]byte

// Derive 根据字节串路径派生地址
// 每个分段先写入长度前缀再写入内容，因此 ["ab","c"] 与 ["a","bc"] 派生结果不同
func Derive(parts ...[]byte) Address {
	h, err := blake2b.New256(programDomain)
	if err != nil {
		// 密钥长度固定且小于64字节，不会出错
		panic(fmt.Sprintf("blake2b: %v", err))
	}

	var prefix [binary.MaxVarintLen64]byte
	for _, part := range parts {
		n := binary.PutUvarint(prefix[:], uint64(len(part)))
		h.Write(prefix[:n])
		h.Write(part)
	}

	var addr Address
	copy(addr[:], h.Sum(nil))
	return addr
}

// PollIDBytes poll_id 的小端字节编码
func PollIDBytes(pollID uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, pollID)
	return b
}

// PollAddress derive(["poll", poll_id])
func PollAddress(pollID uint64) Address {
	return Derive([]byte(PollNamespace), PollIDBytes(pollID))
}

// CandidateAddress derive(["poll", poll_id, candidate_name])
func CandidateAddress(pollID uint64, candidateName string) Address {
	return Derive([]byte(PollNamespace), PollIDBytes(pollID), []byte(candidateName))
}

// ParticipationAddress derive(["poll", poll_id, voter_identity])
func ParticipationAddress(pollID uint64, voter []byte) Address {
	return Derive([]byte(PollNamespace), PollIDBytes(pollID), voter)
}

// String 返回小写十六进制表示
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// IsZero 是否为零地址
func (a Address) IsZero() bool {
	return a == Address{}
}

// Parse 解析十六进制地址
func Parse(s string) (Address, error) {
	var addr Address
	raw, err := hex.DecodeString(s)
	if err != nil {
		return addr, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(raw) != Size {
		return addr, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidAddress, Size, len(raw))
	}
	copy(addr[:], raw)
	return addr, nil
}

// MarshalText 实现 encoding.TextMarshaler
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
