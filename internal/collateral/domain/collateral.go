// Package domain 抵押品管理领域模型
// 抵押品估值规则：eligible_value = round_half_up(market_value * (1 - haircut), 2)，
// 任何触及市值或折扣率的写路径都必须重算。
package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/kpstreasury/internal/apperror"
)

// CollateralType 抵押品类型
type CollateralType string

const (
	CollateralTypeGovernmentBond CollateralType = "GOVERNMENT_BOND"
	CollateralTypeCorporateBond  CollateralType = "CORPORATE_BOND"
	CollateralTypeEquity         CollateralType = "EQUITY"
	CollateralTypeRealEstate     CollateralType = "REAL_ESTATE"
	CollateralTypeCommodity      CollateralType = "COMMODITY"
	CollateralTypeCashDeposit    CollateralType = "CASH_DEPOSIT"
	CollateralTypeLetterOfCredit CollateralType = "LETTER_OF_CREDIT" // 信用证
)

// Valid 是否为已知抵押品类型
func (t CollateralType) Valid() bool {
	switch t {
	case CollateralTypeGovernmentBond, CollateralTypeCorporateBond, CollateralTypeEquity,
		CollateralTypeRealEstate, CollateralTypeCommodity, CollateralTypeCashDeposit,
		CollateralTypeLetterOfCredit:
		return true
	}
	return false
}

// Rating 信用评级，按信用质量降序排列
type Rating string

const (
	RatingAAA Rating = "AAA"
	RatingAA  Rating = "AA"
	RatingA   Rating = "A"
	RatingBBB Rating = "BBB"
	RatingBB  Rating = "BB"
	RatingB   Rating = "B"
	RatingCCC Rating = "CCC"
	RatingCC  Rating = "CC"
	RatingC   Rating = "C"
	RatingD   Rating = "D"
)

// ratingOrder 越小信用质量越高
var ratingOrder = map[Rating]int{
	RatingAAA: 0, RatingAA: 1, RatingA: 2, RatingBBB: 3, RatingBB: 4,
	RatingB: 5, RatingCCC: 6, RatingCC: 7, RatingC: 8, RatingD: 9,
}

// Valid 是否为已知评级
func (r Rating) Valid() bool {
	_, ok := ratingOrder[r]
	return ok
}

// AtLeast r 的信用质量是否不低于 min
func (r Rating) AtLeast(min Rating) bool {
	ri, ok1 := ratingOrder[r]
	mi, ok2 := ratingOrder[min]
	return ok1 && ok2 && ri <= mi
}

// Order 评级序号，用于排序（AAA 最小）
func (r Rating) Order() int {
	if i, ok := ratingOrder[r]; ok {
		return i
	}
	return len(ratingOrder)
}

// RatingsAtLeast 信用质量不低于 min 的全部评级
func RatingsAtLeast(min Rating) []Rating {
	all := []Rating{RatingAAA, RatingAA, RatingA, RatingBBB, RatingBB,
		RatingB, RatingCCC, RatingCC, RatingC, RatingD}
	out := make([]Rating, 0, len(all))
	for _, r := range all {
		if r.AtLeast(min) {
			out = append(out, r)
		}
	}
	return out
}

// CollateralStatus 抵押品状态
// 状态变更是无条件覆盖，不设迁移表。
type CollateralStatus string

const (
	CollateralStatusEligible   CollateralStatus = "ELIGIBLE"
	CollateralStatusIneligible CollateralStatus = "INELIGIBLE"
	CollateralStatusPledged    CollateralStatus = "PLEDGED"
	CollateralStatusReturned   CollateralStatus = "RETURNED"
	CollateralStatusMatured    CollateralStatus = "MATURED"
)

// Valid 是否为已知抵押品状态
func (s CollateralStatus) Valid() bool {
	switch s {
	case CollateralStatusEligible, CollateralStatusIneligible, CollateralStatusPledged,
		CollateralStatusReturned, CollateralStatusMatured:
		return true
	}
	return false
}

// Collateral 抵押品聚合根
type Collateral struct {
	ID             uint64           `gorm:"primaryKey;autoIncrement" json:"id"`
	CollateralType CollateralType   `gorm:"column:collateral_type;type:varchar(30);not null" json:"collateral_type"`
	Description    string           `gorm:"column:description;type:varchar(255);not null" json:"description"`
	MarketValue    decimal.Decimal  `gorm:"column:market_value;type:decimal(19,2);not null" json:"market_value"`
	Haircut        decimal.Decimal  `gorm:"column:haircut;type:decimal(5,4);not null" json:"haircut"` // 折扣率，0.05 = 5%
	EligibleValue  decimal.Decimal  `gorm:"column:eligible_value;type:decimal(19,2);not null" json:"eligible_value"`
	Currency       string           `gorm:"column:currency;type:char(3);not null" json:"currency"`
	Rating         Rating           `gorm:"column:rating;type:varchar(4);not null" json:"rating"`
	MaturityDate   time.Time        `gorm:"column:maturity_date;not null" json:"maturity_date"`
	Status         CollateralStatus `gorm:"column:status;type:varchar(20);not null;default:'ELIGIBLE'" json:"status"`
	Counterparty   string           `gorm:"column:counterparty;type:varchar(100);not null" json:"counterparty"`
	Location       string           `gorm:"column:location;type:varchar(100)" json:"location"`
	CreatedAt      time.Time        `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time        `gorm:"column:updated_at" json:"updated_at"`
}

// TableName 表名
func (Collateral) TableName() string { return "collaterals" }

// one 常量 1，避免每次估值重新分配
var one = decimal.NewFromInt(1)

// ComputeEligibleValue 折后可抵押价值 = market * (1 - haircut)，半进位保留两位
func ComputeEligibleValue(marketValue, haircut decimal.Decimal) decimal.Decimal {
	return marketValue.Mul(one.Sub(haircut)).Round(2)
}

// Revalue 重估：更新市值与折扣率并重算折后价值
func (c *Collateral) Revalue(marketValue, haircut decimal.Decimal) error {
	if !marketValue.IsPositive() {
		return apperror.Validation("market_value", "market value must be positive")
	}
	if haircut.IsNegative() || haircut.GreaterThan(one) {
		return apperror.Validation("haircut", "haircut must be between 0 and 1")
	}
	c.MarketValue = marketValue
	c.Haircut = haircut
	c.EligibleValue = ComputeEligibleValue(marketValue, haircut)
	return nil
}

// SetMarketValue 仅更新市值，折扣率保持不变
func (c *Collateral) SetMarketValue(marketValue decimal.Decimal) error {
	return c.Revalue(marketValue, c.Haircut)
}

// Validate 字段校验（创建路径要求到期日严格晚于当前时间）
func (c *Collateral) Validate(requireFutureMaturity bool) error {
	if !c.CollateralType.Valid() {
		return apperror.Validation("collateral_type", "unknown collateral type")
	}
	if strings.TrimSpace(c.Description) == "" {
		return apperror.Validation("description", "description is required")
	}
	if len(c.Description) > 255 {
		return apperror.Validation("description", "description must not exceed 255 characters")
	}
	if !c.MarketValue.IsPositive() {
		return apperror.Validation("market_value", "market value must be positive")
	}
	if c.Haircut.IsNegative() || c.Haircut.GreaterThan(one) {
		return apperror.Validation("haircut", "haircut must be between 0 and 1")
	}
	if len(c.Currency) != 3 {
		return apperror.Validation("currency", "currency must be a 3-letter ISO code")
	}
	if !c.Rating.Valid() {
		return apperror.Validation("rating", "unknown rating")
	}
	if c.MaturityDate.IsZero() {
		return apperror.Validation("maturity_date", "maturity date is required")
	}
	if requireFutureMaturity && !c.MaturityDate.After(time.Now()) {
		return apperror.Validation("maturity_date", "maturity date must be in the future")
	}
	if !c.Status.Valid() {
		return apperror.Validation("status", "unknown collateral status")
	}
	if strings.TrimSpace(c.Counterparty) == "" {
		return apperror.Validation("counterparty", "counterparty is required")
	}
	if len(c.Counterparty) > 100 {
		return apperror.Validation("counterparty", "counterparty must not exceed 100 characters")
	}
	if len(c.Location) > 100 {
		return apperror.Validation("location", "location must not exceed 100 characters")
	}
	return nil
}

// SetStatus 无条件状态覆盖
func (c *Collateral) SetStatus(status CollateralStatus) error {
	if !status.Valid() {
		return apperror.Validation("status", "unknown collateral status")
	}
	c.Status = status
	return nil
}

// MarkEligible 标记为可抵押
func (c *Collateral) MarkEligible() { c.Status = CollateralStatusEligible }

// MarkIneligible 标记为不可抵押
func (c *Collateral) MarkIneligible() { c.Status = CollateralStatusIneligible }

// MarkMatured 标记为已到期
func (c *Collateral) MarkMatured() { c.Status = CollateralStatusMatured }

// IsMaturedBy 到期日是否不晚于给定时点
func (c *Collateral) IsMaturedBy(t time.Time) bool {
	return !c.MaturityDate.After(t)
}
