package domain

// AccountType 账户类型 (1-5)
type AccountType int16

const (
	Asset     AccountType = 1 // 资产
	Liability AccountType = 2 // 负债
	Equity    AccountType = 3 // 权益
	Revenue   AccountType = 4 // 收入
	Expense   AccountType = 5 // 费用
)

// NormalSide 余额方向：资产、费用在借方，其余在贷方
func (t AccountType) NormalSide() Direction {
	if t == Asset || t == Expense {
		return Debit
	}
	return Credit
}

func (t AccountType) String() string {
	switch t {
	case Asset:
		return "asset"
	case Liability:
		return "liability"
	case Equity:
		return "equity"
	case Revenue:
		return "revenue"
	case Expense:
		return "expense"
	default:
		return "unknown"
	}
}

// ParseAccountType 科目种子文件 (glctl seed accounts --file) 使用
func ParseAccountType(s string) (AccountType, bool) {
	for t := Asset; t <= Expense; t++ {
		if t.String() == s {
			return t, true
		}
	}
	return 0, false
}

// Direction 借贷方向 (D/C)
type Direction string

const (
	Debit  Direction = "D"
	Credit Direction = "C"
)

// IsValid 校验方向合法性
func (d Direction) IsValid() bool {
	return d == Debit || d == Credit
}

// Opposite 冲销时借贷互换
func (d Direction) Opposite() Direction {
	if d == Debit {
		return Credit
	}
	return Debit
}

// SourceType 分录来源 (上游业务单据类型)
type SourceType string

const (
	SourceInvoice  SourceType = "invoice"
	SourceBilling  SourceType = "billing"
	SourcePayroll  SourceType = "payroll"
	SourceManual   SourceType = "manual"
	SourceReversal SourceType = "reversal" // 仅由作废流程生成
)

// IsValid 外部草稿不能声明自己是冲销分录
func (s SourceType) IsValid() bool {
	switch s {
	case SourceInvoice, SourceBilling, SourcePayroll, SourceManual:
		return true
	}
	return false
}

// AccountStatus 科目状态
type AccountStatus int16

const (
	AccountActive   AccountStatus = 0 // 零值即启用
	AccountArchived AccountStatus = 1
)
