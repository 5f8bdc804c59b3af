package records

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tildaslashalef/congregate/internal/entity"
)

// DateLayout is the format of calendar dates stored in records
const DateLayout = "2006-01-02"

// ChurchPosition is a member's role in the congregation
type ChurchPosition string

const (
	PositionMember   ChurchPosition = "Miembro"
	PositionMinister ChurchPosition = "Ministro"
	PositionDeacon   ChurchPosition = "Diácono"
	PositionHelper   ChurchPosition = "Ayudante"
	PositionPastor   ChurchPosition = "Pastor"
	PositionCoPastor ChurchPosition = "Co-Pastor"
	PositionOther    ChurchPosition = "Otro"
)

// Defaults applied to new members
const (
	DefaultPosition = PositionMember
	DefaultStatus   = StatusActive
)

// ChurchPositions lists every accepted position
func ChurchPositions() []ChurchPosition {
	return []ChurchPosition{
		PositionMember, PositionMinister, PositionDeacon, PositionHelper,
		PositionPastor, PositionCoPastor, PositionOther,
	}
}

// MemberStatus is a member's standing
type MemberStatus string

const (
	StatusActive      MemberStatus = "Activo"
	StatusInactive    MemberStatus = "Inactivo"
	StatusDisciplined MemberStatus = "Disciplinado"
)

// MemberStatuses lists every accepted status
func MemberStatuses() []MemberStatus {
	return []MemberStatus{StatusActive, StatusInactive, StatusDisciplined}
}

// IncomeCategory classifies income entries
type IncomeCategory string

const (
	IncomeTithe           IncomeCategory = "Diezmo"
	IncomeGeneralOffering IncomeCategory = "Ofrenda General"
	IncomeBuildingFund    IncomeCategory = "Pro-templo"
	IncomeSpecialOffering IncomeCategory = "Ofrenda Especial"
)

// IncomeCategories lists every accepted income category
func IncomeCategories() []IncomeCategory {
	return []IncomeCategory{IncomeTithe, IncomeGeneralOffering, IncomeBuildingFund, IncomeSpecialOffering}
}

// ExpenseCategory classifies expense entries
type ExpenseCategory string

const (
	ExpenseUtilities   ExpenseCategory = "Servicios Basicos"
	ExpenseMaintenance ExpenseCategory = "Mantenimiento"
	ExpenseSocialAid   ExpenseCategory = "Ayuda Social"
	ExpenseCleaning    ExpenseCategory = "Limpieza"
	ExpenseOther       ExpenseCategory = "Otros"
)

// ExpenseCategories lists every accepted expense category
func ExpenseCategories() []ExpenseCategory {
	return []ExpenseCategory{ExpenseUtilities, ExpenseMaintenance, ExpenseSocialAid, ExpenseCleaning, ExpenseOther}
}

// Sector is a geographic group of members. Sectors are managed on the server.
type Sector struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Member is a person on the roster
type Member struct {
	ID             string         `json:"id"`
	FullName       string         `json:"full_name"`
	DUI            string         `json:"dui,omitempty"`
	Phone          string         `json:"phone,omitempty"`
	Address        string         `json:"address,omitempty"`
	BaptismDate    string         `json:"baptism_date,omitempty"`
	IsBaptized     bool           `json:"is_baptized"`
	SectorID       *int64         `json:"sector_id,omitempty"`
	ChurchPosition ChurchPosition `json:"church_position"`
	Status         MemberStatus   `json:"status"`
	CreatedAt      string         `json:"created_at,omitempty"`
	UpdatedAt      string         `json:"updated_at,omitempty"`
	Synced         bool           `json:"synced"`
}

// Income is one entry on the income side of the ledger
type Income struct {
	ID        string          `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	Date      string          `json:"date"`
	Category  IncomeCategory  `json:"category"`
	Period    string          `json:"period,omitempty"`
	MemberID  string          `json:"member_id,omitempty"`
	SectorID  *int64          `json:"sector_id,omitempty"`
	Notes     string          `json:"notes,omitempty"`
	CreatedAt string          `json:"created_at,omitempty"`
	UpdatedAt string          `json:"updated_at,omitempty"`
	DeletedAt string          `json:"deleted_at,omitempty"`
	Synced    bool            `json:"synced"`
}

// Expense is one entry on the expense side of the ledger
type Expense struct {
	ID            string          `json:"id"`
	Amount        decimal.Decimal `json:"amount"`
	Date          string          `json:"date"`
	Category      ExpenseCategory `json:"category"`
	Description   string          `json:"description"`
	ReceiptURL    string          `json:"receipt_url,omitempty"`
	FundingSource IncomeCategory  `json:"funding_source,omitempty"`
	CreatedAt     string          `json:"created_at,omitempty"`
	UpdatedAt     string          `json:"updated_at,omitempty"`
	DeletedAt     string          `json:"deleted_at,omitempty"`
	Synced        bool            `json:"synced"`
}

// MemberInput holds the fields of a new member
type MemberInput struct {
	FullName       string
	DUI            string
	Phone          string
	Address        string
	BaptismDate    string
	SectorID       int64
	ChurchPosition ChurchPosition
	Status         MemberStatus
}

// Validate applies defaults and checks the input
func (in *MemberInput) Validate() error {
	in.FullName = strings.TrimSpace(in.FullName)
	if in.FullName == "" {
		return invalid("full name is required")
	}
	if in.ChurchPosition == "" {
		in.ChurchPosition = DefaultPosition
	}
	if in.Status == "" {
		in.Status = DefaultStatus
	}
	if !slices.Contains(ChurchPositions(), in.ChurchPosition) {
		return invalid("unknown church position %q", in.ChurchPosition)
	}
	if !slices.Contains(MemberStatuses(), in.Status) {
		return invalid("unknown member status %q", in.Status)
	}
	if err := checkDate("baptism date", in.BaptismDate, false); err != nil {
		return err
	}
	if in.SectorID < 0 {
		return invalid("sector id must be positive")
	}
	return nil
}

// Record converts the input into the fields sent to the server. Optional
// fields left empty are sent as null.
func (in *MemberInput) Record() entity.Record {
	return entity.Record{
		"full_name":       in.FullName,
		"dui":             nullable(in.DUI),
		"phone":           nullable(in.Phone),
		"address":         nullable(in.Address),
		"baptism_date":    nullable(in.BaptismDate),
		"sector_id":       nullableID(in.SectorID),
		"church_position": string(in.ChurchPosition),
		"status":          string(in.Status),
	}
}

// MemberPatch holds the member fields to change; nil fields are left alone
type MemberPatch struct {
	FullName       *string
	DUI            *string
	Phone          *string
	Address        *string
	BaptismDate    *string
	SectorID       *int64
	ChurchPosition *ChurchPosition
	Status         *MemberStatus
}

// Validate checks the fields that are set
func (p *MemberPatch) Validate() error {
	if p.FullName != nil && strings.TrimSpace(*p.FullName) == "" {
		return invalid("full name cannot be empty")
	}
	if p.ChurchPosition != nil && !slices.Contains(ChurchPositions(), *p.ChurchPosition) {
		return invalid("unknown church position %q", *p.ChurchPosition)
	}
	if p.Status != nil && !slices.Contains(MemberStatuses(), *p.Status) {
		return invalid("unknown member status %q", *p.Status)
	}
	if p.BaptismDate != nil {
		if err := checkDate("baptism date", *p.BaptismDate, false); err != nil {
			return err
		}
	}
	if p.SectorID != nil && *p.SectorID < 0 {
		return invalid("sector id must be positive")
	}
	if len(p.Fields()) == 0 {
		return invalid("nothing to update")
	}
	return nil
}

// Fields returns the changed fields
func (p *MemberPatch) Fields() entity.Record {
	fields := entity.Record{}
	if p.FullName != nil {
		fields["full_name"] = strings.TrimSpace(*p.FullName)
	}
	if p.DUI != nil {
		fields["dui"] = nullable(*p.DUI)
	}
	if p.Phone != nil {
		fields["phone"] = nullable(*p.Phone)
	}
	if p.Address != nil {
		fields["address"] = nullable(*p.Address)
	}
	if p.BaptismDate != nil {
		fields["baptism_date"] = nullable(*p.BaptismDate)
	}
	if p.SectorID != nil {
		fields["sector_id"] = nullableID(*p.SectorID)
	}
	if p.ChurchPosition != nil {
		fields["church_position"] = string(*p.ChurchPosition)
	}
	if p.Status != nil {
		fields["status"] = string(*p.Status)
	}
	return fields
}

// IncomeInput holds the fields of a new income entry
type IncomeInput struct {
	Amount   decimal.Decimal
	Date     string
	Category IncomeCategory
	Period   string
	MemberID string
	SectorID int64
	Notes    string
}

// Validate checks the input
func (in *IncomeInput) Validate() error {
	if err := checkAmount(in.Amount); err != nil {
		return err
	}
	if err := checkDate("date", in.Date, true); err != nil {
		return err
	}
	if !slices.Contains(IncomeCategories(), in.Category) {
		return invalid("unknown income category %q", in.Category)
	}
	if in.SectorID < 0 {
		return invalid("sector id must be positive")
	}
	return nil
}

// Record converts the input into the fields sent to the server
func (in *IncomeInput) Record() entity.Record {
	return entity.Record{
		"amount":    amountValue(in.Amount),
		"date":      in.Date,
		"category":  string(in.Category),
		"period":    nullable(in.Period),
		"member_id": nullable(in.MemberID),
		"sector_id": nullableID(in.SectorID),
		"notes":     nullable(in.Notes),
	}
}

// ExpenseInput holds the fields of a new expense entry
type ExpenseInput struct {
	Amount        decimal.Decimal
	Date          string
	Category      ExpenseCategory
	Description   string
	ReceiptURL    string
	FundingSource IncomeCategory
}

// Validate checks the input
func (in *ExpenseInput) Validate() error {
	if err := checkAmount(in.Amount); err != nil {
		return err
	}
	if err := checkDate("date", in.Date, true); err != nil {
		return err
	}
	if !slices.Contains(ExpenseCategories(), in.Category) {
		return invalid("unknown expense category %q", in.Category)
	}
	in.Description = strings.TrimSpace(in.Description)
	if in.Description == "" {
		return invalid("description is required")
	}
	if in.FundingSource != "" && !slices.Contains(IncomeCategories(), in.FundingSource) {
		return invalid("unknown funding source %q", in.FundingSource)
	}
	return nil
}

// Record converts the input into the fields sent to the server
func (in *ExpenseInput) Record() entity.Record {
	return entity.Record{
		"amount":         amountValue(in.Amount),
		"date":           in.Date,
		"category":       string(in.Category),
		"description":    in.Description,
		"receipt_url":    nullable(in.ReceiptURL),
		"funding_source": nullable(string(in.FundingSource)),
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func checkAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return invalid("amount must be greater than zero")
	}
	if !amount.Equal(amount.Round(2)) {
		return invalid("amount has more than two decimal places")
	}
	return nil
}

func checkDate(name, value string, required bool) error {
	if value == "" {
		if required {
			return invalid("%s is required", name)
		}
		return nil
	}
	if _, err := time.Parse(DateLayout, value); err != nil {
		return invalid("%s must look like YYYY-MM-DD", name)
	}
	return nil
}

// amountValue keeps the exact decimal text so no float rounding happens on the way out
func amountValue(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

func nullable(s string) any {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return s
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

// decode converts a stored record into its typed model
func decode[T any](record entity.Record) (*T, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decoding record %s: %w", record.ID(), err)
	}
	return &out, nil
}

func decodeAll[T any](records []entity.Record) ([]*T, error) {
	out := make([]*T, 0, len(records))
	for _, r := range records {
		v, err := decode[T](r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
