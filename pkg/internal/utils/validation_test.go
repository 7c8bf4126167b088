package utils

import (
	"strings"
	"testing"
)

// connectionStruct mirrors the shape of the database section of the config
type connectionStruct struct {
	Host   string `validate:"required" mapstructure:"host"`
	Port   int    `validate:"gte=1,lte=65535" mapstructure:"port"`
	DBName string `validate:"required" mapstructure:"dbname"`
	Schema string `mapstructure:"schema"`
}

type policyStruct struct {
	FreezePct int    `validate:"gte=10,lte=99" mapstructure:"freeze_pct"`
	Inquiry   string `validate:"omitempty,oneof=all found" mapstructure:"inquiry"`
}

type nestedStruct struct {
	Connection connectionStruct `mapstructure:",squash"`
	Policy     policyStruct     `mapstructure:",squash"`
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name          string
		input         interface{}
		expectError   bool
		errorContains []string
	}{
		{
			name: "Valid config",
			input: &connectionStruct{
				Host:   "localhost",
				Port:   5432,
				DBName: "app",
			},
			expectError: false,
		},
		{
			name: "Missing required fields",
			input: &connectionStruct{
				Port: 5432,
			},
			expectError:   true,
			errorContains: []string{"host is required", "dbname is required"},
		},
		{
			name: "Port out of range",
			input: &connectionStruct{
				Host:   "localhost",
				Port:   70000,
				DBName: "app",
			},
			expectError:   true,
			errorContains: []string{"port is required or invalid"},
		},
		{
			name: "Nested freeze percent too low",
			input: &nestedStruct{
				Connection: connectionStruct{Host: "localhost", Port: 5432, DBName: "app"},
				Policy:     policyStruct{FreezePct: 5},
			},
			expectError:   true,
			errorContains: []string{"freeze_pct"},
		},
		{
			name: "Nested inquiry value invalid",
			input: &nestedStruct{
				Connection: connectionStruct{Host: "localhost", Port: 5432, DBName: "app"},
				Policy:     policyStruct{FreezePct: 90, Inquiry: "some"},
			},
			expectError:   true,
			errorContains: []string{"inquiry"},
		},
		{
			name: "Nested valid with empty inquiry",
			input: &nestedStruct{
				Connection: connectionStruct{Host: "localhost", Port: 5432, DBName: "app"},
				Policy:     policyStruct{FreezePct: 90},
			},
			expectError: false,
		},
		{
			name:          "Nil input",
			input:         nil,
			expectError:   true,
			errorContains: []string{"invalid validation"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(tt.input)

			// Check if error was expected
			if tt.expectError && err == nil {
				t.Errorf("expected error but got nil")
				return
			}

			if !tt.expectError && err != nil {
				t.Errorf("expected no error but got: %v", err)
				return
			}

			// If error was expected, check error message contains expected strings
			if tt.expectError && err != nil {
				errStr := err.Error()
				for _, expected := range tt.errorContains {
					if !strings.Contains(errStr, expected) {
						t.Errorf("error message '%s' does not contain '%s'", errStr, expected)
					}
				}
			}
		})
	}
}
