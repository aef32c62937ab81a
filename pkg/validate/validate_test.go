package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsLuna(t *testing.T) {
	tests := []struct {
		name   string
		number string
		want   bool
	}{
		{name: "valid number", number: "2404815702", want: true},
		{name: "valid long number", number: "79927398713", want: true},
		{name: "bad check digit", number: "2404815703", want: false},
		{name: "letters", number: "abc", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsLuna(tt.number))
		})
	}
}

type sample struct {
	Number string  `validate:"required,luhn"`
	Amount int64   `validate:"gt=0"`
	IDs    []int64 `validate:"required,min=1"`
}

func TestStruct(t *testing.T) {
	tests := []struct {
		name    string
		input   sample
		wantErr string
	}{
		{
			name:  "valid",
			input: sample{Number: "79927398713", Amount: 10, IDs: []int64{1}},
		},
		{
			name:    "bad luhn",
			input:   sample{Number: "79927398710", Amount: 10, IDs: []int64{1}},
			wantErr: "Number must satisfy luhn",
		},
		{
			name:    "non positive amount",
			input:   sample{Number: "79927398713", Amount: 0, IDs: []int64{1}},
			wantErr: "Amount must satisfy gt=0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct(tt.input)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}
