package records

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tildaslashalef/congregate/internal/entity"
)

func TestMemberInputValidate(t *testing.T) {
	tests := []struct {
		name    string
		input   MemberInput
		wantErr string
	}{
		{name: "minimal", input: MemberInput{FullName: "Ana Ruiz"}},
		{name: "blank name", input: MemberInput{FullName: "   "}, wantErr: "full name is required"},
		{name: "unknown position", input: MemberInput{FullName: "Ana", ChurchPosition: "Obispo"}, wantErr: "unknown church position"},
		{name: "unknown status", input: MemberInput{FullName: "Ana", Status: "Ausente"}, wantErr: "unknown member status"},
		{name: "bad baptism date", input: MemberInput{FullName: "Ana", BaptismDate: "02/05/2010"}, wantErr: "YYYY-MM-DD"},
		{name: "negative sector", input: MemberInput{FullName: "Ana", SectorID: -1}, wantErr: "sector id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.input.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMemberInputDefaults(t *testing.T) {
	in := MemberInput{FullName: "  Ana Ruiz ", SectorID: 3}
	require.NoError(t, in.Validate())

	record := in.Record()
	assert.Equal(t, "Ana Ruiz", record["full_name"])
	assert.Equal(t, "Miembro", record["church_position"])
	assert.Equal(t, "Activo", record["status"])
	assert.Equal(t, int64(3), record["sector_id"])
	assert.Nil(t, record["phone"])
	assert.NotContains(t, record, entity.FieldID, "ids are assigned by the service")
}

func TestMemberPatch(t *testing.T) {
	assert.ErrorIs(t, (&MemberPatch{}).Validate(), ErrInvalidInput, "empty patch")

	status := StatusDisciplined
	phone := ""
	patch := MemberPatch{Status: &status, Phone: &phone}
	require.NoError(t, patch.Validate())
	assert.Equal(t, entity.Record{"status": "Disciplinado", "phone": nil}, patch.Fields())

	bad := ChurchPosition("Rey")
	assert.ErrorIs(t, (&MemberPatch{ChurchPosition: &bad}).Validate(), ErrInvalidInput)
}

func TestLedgerInputValidate(t *testing.T) {
	amount := decimal.RequireFromString

	tests := []struct {
		name    string
		input   interface{ Validate() error }
		wantErr string
	}{
		{
			name:  "income",
			input: &IncomeInput{Amount: amount("125.50"), Date: "2024-03-10", Category: IncomeTithe},
		},
		{
			name:    "zero amount",
			input:   &IncomeInput{Amount: decimal.Zero, Date: "2024-03-10", Category: IncomeTithe},
			wantErr: "greater than zero",
		},
		{
			name:    "negative amount",
			input:   &ExpenseInput{Amount: amount("-5"), Date: "2024-03-10", Category: ExpenseOther, Description: "x"},
			wantErr: "greater than zero",
		},
		{
			name:    "fractional cents",
			input:   &IncomeInput{Amount: amount("1.005"), Date: "2024-03-10", Category: IncomeTithe},
			wantErr: "two decimal places",
		},
		{
			name:    "missing date",
			input:   &IncomeInput{Amount: amount("1"), Category: IncomeTithe},
			wantErr: "date is required",
		},
		{
			name:    "unknown income category",
			input:   &IncomeInput{Amount: amount("1"), Date: "2024-03-10", Category: "Colecta"},
			wantErr: "unknown income category",
		},
		{
			name:  "expense",
			input: &ExpenseInput{Amount: amount("40"), Date: "2024-03-10", Category: ExpenseMaintenance, Description: "Pintura", FundingSource: IncomeBuildingFund},
		},
		{
			name:    "expense without description",
			input:   &ExpenseInput{Amount: amount("40"), Date: "2024-03-10", Category: ExpenseMaintenance},
			wantErr: "description is required",
		},
		{
			name:    "unknown funding source",
			input:   &ExpenseInput{Amount: amount("40"), Date: "2024-03-10", Category: ExpenseMaintenance, Description: "x", FundingSource: "Banco"},
			wantErr: "unknown funding source",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.input.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAmountKeepsExactDecimalText(t *testing.T) {
	in := IncomeInput{Amount: decimal.RequireFromString("0.1").Add(decimal.RequireFromString("0.2")), Date: "2024-03-10", Category: IncomeTithe}
	record := in.Record()
	assert.Equal(t, json.Number("0.30"), record["amount"])

	entry, err := decode[Income](record.Merge(entity.Record{entity.FieldID: "i-1"}))
	require.NoError(t, err)
	assert.True(t, entry.Amount.Equal(decimal.RequireFromString("0.3")))
}
