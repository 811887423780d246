package cli

import (
	"reflect"
	"strings"
	"testing"
)

func TestExpandIndexes(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		want    []int
		wantErr bool
		errMsg  string
	}{
		{
			name:  "simple range",
			input: []string{"0-4"},
			want:  []int{0, 1, 2, 3, 4},
		},
		{
			name:  "single index",
			input: []string{"42"},
			want:  []int{42},
		},
		{
			name:  "mixed ranges and indexes",
			input: []string{"1", "3-5", "8"},
			want:  []int{1, 3, 4, 5, 8},
		},
		{
			name:  "comma-separated mixed",
			input: []string{"1,3-5,8"},
			want:  []int{1, 3, 4, 5, 8},
		},
		{
			name:  "range with same start and end",
			input: []string{"5-5"},
			want:  []int{5},
		},
		{
			name:  "whitespace handling",
			input: []string{" 1 , 3-5 , 8 "},
			want:  []int{1, 3, 4, 5, 8},
		},
		{
			name:  "empty input",
			input: []string{},
			want:  nil,
		},
		{
			name:  "empty string in input",
			input: []string{""},
			want:  nil,
		},
		// Error cases
		{
			name:    "start greater than end",
			input:   []string{"5-2"},
			wantErr: true,
			errMsg:  "start (5) is greater than end (2)",
		},
		{
			name:    "non-numeric start",
			input:   []string{"abc-5"},
			wantErr: true,
			errMsg:  "start value \"abc\" is not a valid index",
		},
		{
			name:    "non-numeric end",
			input:   []string{"1-xyz"},
			wantErr: true,
			errMsg:  "end value \"xyz\" is not a valid index",
		},
		{
			name:    "negative index",
			input:   []string{"-3"},
			wantErr: true,
			errMsg:  "not a valid index",
		},
		{
			name:    "one bad value",
			input:   []string{"1", "bad", "3"},
			wantErr: true,
			errMsg:  "not a valid index",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandIndexes(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ExpandIndexes() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				if tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("ExpandIndexes() error = %q, want error containing %q", err.Error(), tt.errMsg)
				}
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExpandIndexes() = %v, want %v", got, tt.want)
			}
		})
	}
}
