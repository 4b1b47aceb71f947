package ledger

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/asmb123/voting-workshop-bhu/address"
)

var (
	// ErrAccountNotFound 派生地址上不存在账户
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountAlreadyInUse 派生地址已被占用
	ErrAccountAlreadyInUse = errors.New("account already in use")

	// ErrReadOnly 只读视图中尝试写入
	ErrReadOnly = errors.New("write attempted in read-only view")
)

// Account 存放在派生地址上的账户模型
type Account interface {
	AccountKind() string
	AccountAddress() string
}

// Tx 一次状态转换中可见的账户存储
type Tx struct {
	db       *gorm.DB
	now      uint64
	readOnly bool
}

// Now 本次转换的时间戳，转换内保持不变
func (tx *Tx) Now() uint64 {
	return tx.now
}

// Load 读取地址上的账户，不存在时返回 ErrAccountNotFound
// 在写事务中会对行加锁（数据库支持时）
func Load[T Account](tx *Tx, addr address.Address) (*T, error) {
	var acct T
	q := tx.db
	// SQLite 以库级写锁串行化事务，没有行锁
	if !tx.readOnly && tx.db.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := q.Where("address = ?", addr.String()).Take(&acct).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%s %s: %w", acct.AccountKind(), addr, ErrAccountNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s %s: %w", acct.AccountKind(), addr, err)
	}
	return &acct, nil
}

// CreateExclusive 在账户地址上创建账户，地址已占用时返回 ErrAccountAlreadyInUse
func CreateExclusive[T Account](tx *Tx, acct *T) error {
	if tx.readOnly {
		return ErrReadOnly
	}
	kind, addr := (*acct).AccountKind(), (*acct).AccountAddress()

	var existing int64
	if err := tx.db.Model(new(T)).Where("address = ?", addr).Count(&existing).Error; err != nil {
		return fmt.Errorf("check %s %s: %w", kind, addr, err)
	}
	if existing > 0 {
		return fmt.Errorf("%s %s: %w", kind, addr, ErrAccountAlreadyInUse)
	}

	if err := tx.db.Create(acct).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%s %s: %w", kind, addr, ErrAccountAlreadyInUse)
		}
		return fmt.Errorf("create %s %s: %w", kind, addr, err)
	}
	return nil
}

// LoadOrInit 读取账户，不存在时用 init 创建，第二个返回值表示是否新建
func LoadOrInit[T Account](tx *Tx, addr address.Address, init func() *T) (*T, bool, error) {
	acct, err := Load[T](tx, addr)
	if err == nil {
		return acct, false, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, false, err
	}

	acct = init()
	if err := CreateExclusive(tx, acct); err != nil {
		return nil, false, err
	}
	return acct, true, nil
}

// Save 写回账户的指定字段
func Save[T Account](tx *Tx, acct *T, fields ...string) error {
	if tx.readOnly {
		return ErrReadOnly
	}
	kind, addr := (*acct).AccountKind(), (*acct).AccountAddress()

	res := tx.db.Model(acct).Select(fields).Updates(acct)
	if res.Error != nil {
		return fmt.Errorf("save %s %s: %w", kind, addr, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s %s: %w", kind, addr, ErrAccountNotFound)
	}
	return nil
}

// Increment 原子地将计数列加一
func Increment[T Account](tx *Tx, addr address.Address, column string) error {
	if tx.readOnly {
		return ErrReadOnly
	}
	var zero T

	res := tx.db.Model(new(T)).
		Where("address = ?", addr.String()).
		UpdateColumn(column, gorm.Expr(column+" + ?", 1))
	if res.Error != nil {
		return fmt.Errorf("increment %s.%s %s: %w", zero.AccountKind(), column, addr, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s %s: %w", zero.AccountKind(), addr, ErrAccountNotFound)
	}
	return nil
}
